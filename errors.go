package awscache

import "errors"

var (
	// ErrUnknownBackend is returned by NewBackend for an unrecognized backend type.
	ErrUnknownBackend = errors.New("awscache: unknown backend type")

	// ErrUnknownAlgorithm is returned by NewProvider for an unrecognized encryption type.
	ErrUnknownAlgorithm = errors.New("awscache: unknown encryption algorithm")

	// ErrNilBackend is returned when a facade is constructed without a backend.
	ErrNilBackend = errors.New("awscache: backend is required")

	// ErrNilProvider is returned when a facade is constructed without an encryption provider.
	ErrNilProvider = errors.New("awscache: encryption provider is required")
)
