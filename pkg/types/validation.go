package types

import (
	"strings"
	"unicode/utf8"
)

// Field limits carried over from the request models.
const (
	MaxUsernameLength  = 100
	MaxPasswordLength  = 250
	MaxNameLength      = 100
	MaxSexLength       = 10
	MaxParamNameLength = 100
)

// Validate checks the credentials are present and within limits.
func (a *AuthRequest) Validate() error {
	return validateCredentials(a.Username, a.Password)
}

// Validate checks the user body the same way as registration does.
func (u *UserRequest) Validate() error {
	return validateCredentials(u.Username, u.Password)
}

func validateCredentials(username, password string) error {
	if isBlank(username) {
		return ErrUsernameRequired
	}
	if utf8.RuneCountInString(username) > MaxUsernameLength {
		return ErrUsernameTooLong
	}
	if password == "" {
		return ErrPasswordRequired
	}
	if utf8.RuneCountInString(password) > MaxPasswordLength {
		return ErrPasswordTooLong
	}
	return nil
}

// Validate checks the demographic fields and every parameter.
func (p *Patient) Validate() error {
	if isBlank(p.FamilyName) {
		return ErrFamilyNameRequired
	}
	if utf8.RuneCountInString(p.FamilyName) > MaxNameLength {
		return ErrFamilyNameTooLong
	}
	if isBlank(p.GivenName) {
		return ErrGivenNameRequired
	}
	if utf8.RuneCountInString(p.GivenName) > MaxNameLength {
		return ErrGivenNameTooLong
	}
	if isBlank(p.Sex) {
		return ErrSexRequired
	}
	if utf8.RuneCountInString(p.Sex) > MaxSexLength {
		return ErrSexTooLong
	}
	for i := range p.Parameters {
		if err := p.Parameters[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks name and value are present. Value is free text.
func (p *Parameter) Validate() error {
	if isBlank(p.Name) {
		return ErrParamNameRequired
	}
	if utf8.RuneCountInString(p.Name) > MaxParamNameLength {
		return ErrParamNameTooLong
	}
	if p.Value == "" {
		return ErrParamValueRequired
	}
	return nil
}

// NormalizeUsername is the case-insensitive key for a username.
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
