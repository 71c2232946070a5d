package postgres_test

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"

	"github.com/revline/authcore/internal/repository"
	"github.com/revline/authcore/internal/repository/postgres"
)

func TestUserRepository_Create(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()
	repo := postgres.NewUserRepository(db)
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		user := &repository.User{
			Email:        "alice@example.com",
			Name:         "Alice",
			PasswordHash: "$argon2id$v=19$m=65536,t=3,p=2$salt$hash",
		}
		created := time.Now()
		mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO users (email, name, password_hash)`)).
			WithArgs(user.Email, user.Name, user.PasswordHash).
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(1), created))

		err := repo.Create(ctx, user)
		assert.NoError(t, err)
		assert.Equal(t, int64(1), user.ID)
		assert.Equal(t, created, user.CreatedAt)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("DuplicateEmail", func(t *testing.T) {
		user := &repository.User{
			Email:        "alice@example.com",
			Name:         "Alice",
			PasswordHash: "hash",
		}
		mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO users`)).
			WithArgs(user.Email, user.Name, user.PasswordHash).
			WillReturnError(&pq.Error{Code: "23505"})

		err := repo.Create(ctx, user)
		assert.ErrorIs(t, err, repository.ErrEmailExists)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("NilUser", func(t *testing.T) {
		err := repo.Create(ctx, nil)
		assert.Error(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("MissingEmail", func(t *testing.T) {
		err := repo.Create(ctx, &repository.User{PasswordHash: "hash"})
		assert.Error(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestUserRepository_GetByEmail(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()
	repo := postgres.NewUserRepository(db)
	ctx := context.Background()

	query := regexp.QuoteMeta(`SELECT id, email, name, password_hash, created_at FROM users WHERE email = $1`)

	t.Run("Success", func(t *testing.T) {
		created := time.Now()
		mock.ExpectQuery(query).
			WithArgs("alice@example.com").
			WillReturnRows(sqlmock.NewRows([]string{"id", "email", "name", "password_hash", "created_at"}).
				AddRow(int64(7), "alice@example.com", "Alice", "hash", created))

		user, err := repo.GetByEmail(ctx, "alice@example.com")
		assert.NoError(t, err)
		assert.Equal(t, int64(7), user.ID)
		assert.Equal(t, "Alice", user.Name)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("NotFound", func(t *testing.T) {
		mock.ExpectQuery(query).
			WithArgs("nobody@example.com").
			WillReturnError(sql.ErrNoRows)

		_, err := repo.GetByEmail(ctx, "nobody@example.com")
		assert.ErrorIs(t, err, repository.ErrUserNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("EmptyEmail", func(t *testing.T) {
		_, err := repo.GetByEmail(ctx, "")
		assert.Error(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestUserRepository_GetByID(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()
	repo := postgres.NewUserRepository(db)
	ctx := context.Background()

	query := regexp.QuoteMeta(`SELECT id, email, name, password_hash, created_at FROM users WHERE id = $1`)

	t.Run("Success", func(t *testing.T) {
		mock.ExpectQuery(query).
			WithArgs(int64(7)).
			WillReturnRows(sqlmock.NewRows([]string{"id", "email", "name", "password_hash", "created_at"}).
				AddRow(int64(7), "alice@example.com", "Alice", "hash", time.Now()))

		user, err := repo.GetByID(ctx, 7)
		assert.NoError(t, err)
		assert.Equal(t, "alice@example.com", user.Email)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("NotFound", func(t *testing.T) {
		mock.ExpectQuery(query).
			WithArgs(int64(404)).
			WillReturnError(sql.ErrNoRows)

		_, err := repo.GetByID(ctx, 404)
		assert.ErrorIs(t, err, repository.ErrUserNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestUserRepository_UpdatePasswordHash(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()
	repo := postgres.NewUserRepository(db)
	ctx := context.Background()

	query := regexp.QuoteMeta(`UPDATE users SET password_hash = $1 WHERE id = $2`)

	t.Run("Success", func(t *testing.T) {
		mock.ExpectExec(query).
			WithArgs("new-hash", int64(7)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, repo.UpdatePasswordHash(ctx, 7, "new-hash"))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("NotFound", func(t *testing.T) {
		mock.ExpectExec(query).
			WithArgs("new-hash", int64(404)).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.UpdatePasswordHash(ctx, 404, "new-hash")
		assert.ErrorIs(t, err, repository.ErrUserNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
