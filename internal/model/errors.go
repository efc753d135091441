package model

import "errors"

// Common errors used across the application
var (
	// Credential errors
	ErrInvalidUsername = errors.New("invalid username")
	ErrWrongCredential = errors.New("wrong credential")
	ErrAccountNotFound = errors.New("account not found")
	ErrAccountExists   = errors.New("account already exists")

	// Token errors
	ErrTokenNotFound = errors.New("token not found")
	ErrTokenExists   = errors.New("token already exists")

	// Presence errors
	ErrSessionNotFound = errors.New("session not found")
	ErrInvalidStatus   = errors.New("invalid status")

	// Chat errors
	ErrRateLimited      = errors.New("rate limited")
	ErrNotAuthenticated = errors.New("connection is not authenticated")
)
