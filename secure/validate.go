package secure

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// MaxKeyLength is the longest accepted cache key.
const MaxKeyLength = 255

var (
	ErrEmptyKey     = errors.New("secure: cache key is empty")
	ErrKeyTooLong   = errors.New("secure: cache key exceeds 255 characters")
	ErrKeyBadChar   = errors.New("secure: cache key contains disallowed characters")
	ErrKeyTraversal = errors.New("secure: cache key must not contain '..'")
	ErrKeyAbsolute  = errors.New("secure: cache key must not start with '/'")
)

var (
	keyPattern       = regexp.MustCompile(`^[A-Za-z0-9_\-./:]+$`)
	accountIDPattern = regexp.MustCompile(`^\d{12}$`)
	uuidPattern      = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)
	emailPattern     = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
	arnPattern       = regexp.MustCompile(`^arn:aws[a-z\-]*:[a-z0-9\-]+:[a-z0-9\-]*:\d{0,12}:.+$`)
)

// ValidateKey enforces the cache-key rule shared by every backend:
// [A-Za-z0-9_\-./:]{1,255}, no "..", no leading "/", no backslash.
func ValidateKey(key string) error {
	switch {
	case key == "":
		return ErrEmptyKey
	case len(key) > MaxKeyLength:
		return ErrKeyTooLong
	case strings.Contains(key, "\\"):
		return ErrKeyBadChar
	case strings.Contains(key, ".."):
		return ErrKeyTraversal
	case strings.HasPrefix(key, "/"):
		return ErrKeyAbsolute
	case !keyPattern.MatchString(key):
		return ErrKeyBadChar
	}
	return nil
}

// ValidateAccountID checks a 12-digit AWS account id.
func ValidateAccountID(id string) error {
	if !accountIDPattern.MatchString(id) {
		return fmt.Errorf("secure: invalid account id %q", Redact(id))
	}
	return nil
}

// ValidateARN checks the general shape of an AWS ARN.
func ValidateARN(arn string) error {
	if !arnPattern.MatchString(arn) {
		return fmt.Errorf("secure: invalid ARN %q", Redact(arn))
	}
	return nil
}

// ValidateUUID checks the canonical 8-4-4-4-12 form.
func ValidateUUID(s string) error {
	if !uuidPattern.MatchString(s) {
		return fmt.Errorf("secure: invalid UUID %q", Redact(s))
	}
	return nil
}

// ValidateEmail checks a conservative email shape.
func ValidateEmail(s string) error {
	if !emailPattern.MatchString(s) {
		return errors.New("secure: invalid email address")
	}
	return nil
}
