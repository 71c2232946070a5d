// Package password implements credential hashing and verification with
// Argon2id.
//
// # Output format
//
// Hashes are encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// Comparison is constant time. [Hasher.NeedsUpgrade] reports when a stored
// hash was produced with weaker parameters so the caller can re-hash on the
// next successful login.
//
// # What this package must NOT do
//
//   - Store or retrieve credentials; callers supply plaintext and receive hashes.
//   - Import any other authcore package.
//   - Log plaintext passwords or hash parameters at runtime.
package password
