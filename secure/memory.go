// Package secure holds the hardening utilities shared by the cache backends
// and the encryption layer: best-effort memory locking for key material,
// constant-time comparison helpers, timing jitter, input validation and log
// redaction.
package secure

import (
	"crypto/rand"
	"sync"

	"github.com/awnumar/memcall"
)

var (
	probeOnce   sync.Once
	lockCapable bool
)

// MemoryLockSupported reports whether the platform allows page locking.
// The capability is probed once; absence degrades Lock/Unlock to no-ops.
func MemoryLockSupported() bool {
	probeOnce.Do(func() {
		probe := make([]byte, 16)
		if err := memcall.Lock(probe); err == nil {
			lockCapable = true
			_ = memcall.Unlock(probe)
		}
	})
	return lockCapable
}

// Lock pins the pages backing b into memory so key material cannot be
// swapped to disk. On platforms without the capability it is a no-op.
func Lock(b []byte) {
	if len(b) == 0 || !MemoryLockSupported() {
		return
	}
	_ = memcall.Lock(b)
}

// Unlock releases pages previously pinned by Lock.
func Unlock(b []byte) {
	if len(b) == 0 || !MemoryLockSupported() {
		return
	}
	_ = memcall.Unlock(b)
}

// Zero overwrites b with random bytes and then with zeros. The random pass
// stops a sufficiently clever compiler or OS from eliding the wipe.
func Zero(b []byte) {
	if len(b) == 0 {
		return
	}
	_, _ = rand.Read(b)
	for i := range b {
		b[i] = 0
	}
}

// Buffer owns a locked byte slice holding sensitive material. Destroy zeroes
// and unlocks it; using the bytes after Destroy is a caller bug.
type Buffer struct {
	mu        sync.Mutex
	data      []byte
	destroyed bool
}

// NewBuffer copies src into a fresh locked buffer.
func NewBuffer(src []byte) *Buffer {
	b := make([]byte, len(src))
	copy(b, src)
	Lock(b)
	return &Buffer{data: b}
}

// Bytes returns the underlying slice, or nil after Destroy.
func (s *Buffer) Bytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return nil
	}
	return s.data
}

// Destroy zeroes and unlocks the buffer. Safe to call multiple times.
func (s *Buffer) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return
	}
	Zero(s.data)
	Unlock(s.data)
	s.data = nil
	s.destroyed = true
}
