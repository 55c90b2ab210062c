package domain

import "errors"

var (
	// Auth errors

	// ErrNoRefreshToken indicates no refresh token is on file for the session key
	ErrNoRefreshToken = errors.New("auth: no refresh token on file")

	// ErrTokenExchangeFailed indicates the token endpoint rejected a code or refresh grant
	ErrTokenExchangeFailed = errors.New("auth: token exchange failed")

	// ErrUnauthorized indicates the upstream still rejected the call after one refresh-and-retry
	ErrUnauthorized = errors.New("auth: unauthorized")

	// Catalog errors

	// ErrTokenExpired indicates the upstream answered 401 for the access token in use
	ErrTokenExpired = errors.New("catalog: access token expired")

	// ErrRateLimited indicates the upstream answered 429
	ErrRateLimited = errors.New("catalog: rate limited")

	// ErrUpstreamUnavailable indicates a 5xx answer, a transport failure or a request timeout
	ErrUpstreamUnavailable = errors.New("catalog: upstream unavailable")

	// ErrPropertyNotFound indicates a read-by-name found no property
	ErrPropertyNotFound = errors.New("catalog: property not found")

	// Mapping errors

	// ErrPersistenceFailed indicates the profile store could not be read or written
	ErrPersistenceFailed = errors.New("mapping: persistence failed")

	// ErrAmbiguousIdentity indicates a label resolves to more than one property
	ErrAmbiguousIdentity = errors.New("mapping: ambiguous identity")

	// ErrImmutableMapping indicates a built-in default was redeclared as user-defined
	ErrImmutableMapping = errors.New("mapping: default mappings are immutable")

	// ErrMappingConflict indicates the mapping record changed since the caller read it
	ErrMappingConflict = errors.New("mapping: record was modified concurrently")

	// ErrRevisionConflict indicates the changes document revision moved under a write
	ErrRevisionConflict = errors.New("mapping: document revision conflict")

	// ErrInvalidMapping indicates an edit is missing its source or target
	ErrInvalidMapping = errors.New("mapping: invalid mapping")

	// Migration errors

	// ErrAlreadyExists is the soft outcome of a create whose property is already present
	ErrAlreadyExists = errors.New("migration: property already exists")

	// ErrCreateFailed is the hard outcome of a create that did not succeed
	ErrCreateFailed = errors.New("migration: property creation failed")
)
