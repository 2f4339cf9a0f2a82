// Package awscache implements the caching and payload-encryption core of the
// awsideman CLI: pluggable TTL byte stores, envelope encryption with managed
// key material, and the security plumbing both depend on.
//
// Components:
//   - backend: the byte-store contract plus file, DynamoDB, hybrid
//     (local+remote with promotion), in-memory and Redis implementations.
//   - crypto: encryption providers (pass-through, AES-256-CBC,
//     password-derived AES-GCM, key-manager AES-GCM) and a transit decorator
//     adding anti-replay framing.
//   - keys: 32-byte key lifecycle over the OS credential store with a
//     file fallback; the in-process copy is memory-locked while cached.
//   - secure: memory locking/zeroing, constant-time comparison, timing
//     jitter, key validation and log redaction.
//
// Typical wiring:
//
//	km   := keys.New(keys.Config{})
//	c, _ := awscache.New(ctx,
//	        awscache.Config{Backend: backend.TypeFile},
//	        awscache.EncryptionConfig{Enabled: true}, km)
//	_ = c.Set(ctx, "user:list:all", users, "list_users")
package awscache
