package secure

import (
	"crypto/subtle"
	"math/rand"
	"time"
)

// ConstantTimeEqual compares a and b without leaking where they differ. When
// the lengths differ it still scans the shorter input against itself so the
// duration does not reveal the length mismatch early.
func ConstantTimeEqual(a, b []byte) bool {
	if len(a) != len(b) {
		if len(a) < len(b) {
			subtle.ConstantTimeCompare(a, a)
		} else {
			subtle.ConstantTimeCompare(b, b)
		}
		return false
	}
	return subtle.ConstantTimeCompare(a, b) == 1
}

// ConstantTimeSelect returns a when pick is true and b otherwise, examining
// both inputs regardless of the choice. The slices must be the same length.
func ConstantTimeSelect(pick bool, a, b []byte) []byte {
	if len(a) != len(b) {
		panic("secure: ConstantTimeSelect length mismatch")
	}
	v := 0
	if pick {
		v = 1
	}
	out := make([]byte, len(a))
	for i := range a {
		out[i] = byte(subtle.ConstantTimeSelect(v, int(a[i]), int(b[i])))
	}
	return out
}

// Jitter sleeps for a random duration in [min, max]. Both validation and
// success paths of a decrypt call the same jitter so failure-mode timing does
// not identify which check tripped.
func Jitter(min, max time.Duration) {
	if max <= min {
		time.Sleep(min)
		return
	}
	time.Sleep(min + time.Duration(rand.Int63n(int64(max-min))))
}

// DecryptJitter is the default 1-5ms jitter applied on decrypt exit paths.
func DecryptJitter() {
	Jitter(time.Millisecond, 5*time.Millisecond)
}
