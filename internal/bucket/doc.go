// Package bucket implements the disk-backed bucket cache: each entry lives
// under StoragePath/<namespace>/<domain>/__<key>.bucket as a fixed 24-byte
// header (magic tag + end-of-life timestamp) followed by the raw payload.
// The package exposes whole-buffer and streaming read/write primitives with
// atomic publishing (exclusive-create temp file + rename) and serializes
// concurrent writers of the same key through an injectable Locker. Reads are
// never blocked by writers; a reader observes either the previous complete
// bucket or the newly published one. The filename sanitizer is deterministic
// but not collision-free: two distinct keys may map to the same file, which
// is an accepted limitation of the layout, not something this package tries
// to detect.
package bucket
