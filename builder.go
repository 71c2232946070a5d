package authcore

import (
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/revline/authcore/internal/events"
	"github.com/revline/authcore/internal/rate"
	"github.com/revline/authcore/internal/repository"
	"github.com/revline/authcore/jwt"
	"github.com/revline/authcore/password"
	"github.com/revline/authcore/session"
)

// Builder defines a public type used by authcore APIs.
//
// Builder instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Builder struct {
	config    Config
	redis     redis.UniversalClient
	users     repository.UserRepository
	publisher events.Publisher
	logger    *slog.Logger

	built bool
}

// New describes the new operation and its observable behavior.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig describes the withconfig operation and its observable behavior.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis describes the withredis operation and its observable behavior.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithUsers describes the withusers operation and its observable behavior.
func (b *Builder) WithUsers(users repository.UserRepository) *Builder {
	b.users = users
	return b
}

// WithPublisher describes the withpublisher operation and its observable behavior.
func (b *Builder) WithPublisher(p events.Publisher) *Builder {
	b.publisher = p
	return b
}

// WithLogger describes the withlogger operation and its observable behavior.
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// Build validates the configuration and assembles the [Engine]. A
// configuration the service must not run with (production mode without
// issuer/audience, unusable TTLs) fails here, before any request is served.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.users == nil {
		return nil, errors.New("user repository required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}

	publisher := b.publisher
	if publisher == nil {
		publisher = events.NopPublisher{}
	}

	tokens, err := jwt.NewManager(jwt.Config{
		Secret:        []byte(cfg.JWT.Secret),
		SigningMethod: jwt.SigningMethod(cfg.JWT.SigningMethod),
		AccessTTL:     cfg.JWT.AccessTTL,
		RefreshTTL:    cfg.JWT.RefreshTTL,
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		Leeway:        cfg.JWT.Leeway,
	})
	if err != nil {
		return nil, err
	}

	hasher, err := password.NewArgon2(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		return nil, err
	}

	// A throwaway hash verified against when an email lookup misses.
	dummyHash, err := hasher.Hash(uuid.NewString())
	if err != nil {
		return nil, err
	}

	store := session.NewStore(b.redis)
	strategy, err := session.NewStrategy(cfg.Session.RotationStrategy, store)
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		config:    cfg,
		logger:    logger,
		users:     b.users,
		tokens:    tokens,
		strategy:  strategy,
		limiter:   rate.New(b.redis, logger),
		hasher:    hasher,
		events:    publisher,
		dummyHash: dummyHash,
	}

	b.built = true

	return engine, nil
}
