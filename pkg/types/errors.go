package types

import "errors"

// Field validation errors. Messages are shown to API clients as they are.
var (
	ErrUsernameRequired   = errors.New("username is required")
	ErrUsernameTooLong    = errors.New("username cannot be longer than 100 characters")
	ErrPasswordRequired   = errors.New("password is required")
	ErrPasswordTooLong    = errors.New("password cannot be longer than 250 characters")
	ErrFamilyNameRequired = errors.New("family name is required")
	ErrFamilyNameTooLong  = errors.New("family name cannot be longer than 100 characters")
	ErrGivenNameRequired  = errors.New("given name is required")
	ErrGivenNameTooLong   = errors.New("given name cannot be longer than 100 characters")
	ErrSexRequired        = errors.New("sex is required")
	ErrSexTooLong         = errors.New("sex cannot be longer than 10 characters")
	ErrParamNameRequired  = errors.New("parameter name is required")
	ErrParamNameTooLong   = errors.New("parameter name cannot be longer than 100 characters")
	ErrParamValueRequired = errors.New("parameter value is required")
	ErrInvalidBirthDate   = errors.New("birth date must be a date such as 1949-05-25")
)
