package model

import "errors"

// Lookup errors shared by every store implementation.
var (
	ErrUserNotFound   = errors.New("user not found")
	ErrAdminNotFound  = errors.New("admin not found")
	ErrUsernameExists = errors.New("username already exists")
	ErrDomainClaimed  = errors.New("domain already has an admin")
)
