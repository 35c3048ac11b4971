// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers such as handlers
// to distinguish between different failure scenarios and translate them to
// the right HTTP status: absent records map to 404, uniqueness violations
// to 409, and broken business rules (expired code, ownership mismatch) to 400.
package repository

import "errors"

// ErrUserNotFound is returned when a user referenced by email or id does
// not exist. Handlers should translate this into an HTTP 404 response.
var ErrUserNotFound = errors.New("user not found")

// ErrEmailExists is returned when registration or a profile update would
// store an email that another user already owns. Maps to HTTP 409.
var ErrEmailExists = errors.New("email already exists")

// ErrCodeNotFound is returned when a referral code value is not stored.
// Maps to HTTP 404.
var ErrCodeNotFound = errors.New("referal code not found")

// ErrCodeExists is returned when creating a referral code whose value is
// already stored, regardless of who owns the existing one. Maps to HTTP 409.
var ErrCodeExists = errors.New("referal code already exists")

// ErrActiveCodeExists is returned when an operation would result in a second
// active referral code. At most one code system-wide may be active.
var ErrActiveCodeExists = errors.New("active referal code already exists")

// ErrNotOwner is returned when a user tries to activate or delete a code
// created by someone else. Maps to HTTP 400.
var ErrNotOwner = errors.New("not the owner of the referal code")
