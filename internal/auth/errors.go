package auth

import "errors"

var (
	// ErrUnauthorized is the single failure reported for rejected token operations.
	ErrUnauthorized = errors.New("auth: unauthorized")
	// ErrForbidden is returned when a user acts on another user's session.
	ErrForbidden = errors.New("session: forbidden")
	// ErrSessionNotFound indicates that no session exists for the device.
	ErrSessionNotFound = errors.New("session: not found")
	// ErrMissingTokenID is returned when a freshly signed refresh token carries no jti.
	ErrMissingTokenID = errors.New("auth: refresh token has no token id")

	errTokenNotRedeemable  = errors.New("auth: refresh token is no longer valid")
	errIncompleteClaims    = errors.New("auth: token is missing required claims")
	errTokenStateContended = errors.New("auth: token state kept changing during update")
)
