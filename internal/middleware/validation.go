package middleware

import (
	"errors"
	"regexp"
	"unicode"
)

// Validation limits.
const (
	// MaxUserIDLength bounds visitor identifiers sent by tracked sites.
	MaxUserIDLength = 128

	// MaxDomainNameLength is the DNS limit for a host name.
	MaxDomainNameLength = 253

	// MaxUsernameLength bounds admin usernames.
	MaxUsernameLength = 64
)

// Validation errors.
var (
	ErrUserIDMissing     = errors.New("user_id is required")
	ErrUserIDTooLong     = errors.New("user_id exceeds maximum length")
	ErrUserIDInvalid     = errors.New("user_id contains invalid characters")
	ErrDomainNameMissing = errors.New("domain_name is required")
	ErrDomainNameTooLong = errors.New("domain_name exceeds maximum length")
	ErrDomainNameInvalid = errors.New("domain_name is not a host name")
	ErrUsernameTooLong   = errors.New("username exceeds maximum length")
	ErrUsernameNotASCII  = errors.New("username must be ASCII")
)

// validUserIDPattern allows UUIDs, ULIDs, Mongo-style hex ids and similar.
var validUserIDPattern = regexp.MustCompile(`^[A-Za-z0-9_.:-]+$`)

// validDomainPattern matches a normalized host name or IPv6 literal.
var validDomainPattern = regexp.MustCompile(`^([a-z0-9]([a-z0-9-]*[a-z0-9])?\.)*[a-z0-9]([a-z0-9-]*[a-z0-9])?$|^\[[0-9a-f:.]+\]$`)

// ValidateUserID validates the visitor id of an event connection.
func ValidateUserID(id string) error {
	if id == "" {
		return ErrUserIDMissing
	}
	if len(id) > MaxUserIDLength {
		return ErrUserIDTooLong
	}
	if !validUserIDPattern.MatchString(id) {
		return ErrUserIDInvalid
	}
	return nil
}

// ValidateDomainName validates an already normalized domain name.
func ValidateDomainName(domain string) error {
	if domain == "" {
		return ErrDomainNameMissing
	}
	if len(domain) > MaxDomainNameLength {
		return ErrDomainNameTooLong
	}
	if !validDomainPattern.MatchString(domain) {
		return ErrDomainNameInvalid
	}
	return nil
}

// ValidateUsername rejects overlong and non-ASCII usernames.
// Non-ASCII is refused outright to rule out lookalike characters.
func ValidateUsername(name string) error {
	if len(name) > MaxUsernameLength {
		return ErrUsernameTooLong
	}
	for _, r := range name {
		if r > unicode.MaxASCII || unicode.IsControl(r) {
			return ErrUsernameNotASCII
		}
	}
	return nil
}
