package auth

import "errors"

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrMFARequired        = errors.New("mfa code required")
	ErrMFAInvalid         = errors.New("invalid mfa code")
	ErrMFANotSetUp        = errors.New("mfa has not been set up")
	ErrBranchForbidden    = errors.New("branch not accessible")
	ErrSessionExpired     = errors.New("session expired")
	ErrForbidden          = errors.New("action not permitted for this role")
)
