package service

import "errors"

// Common service errors
var (
	// ErrNotFound is returned when a resource is not found
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput is returned when input validation fails
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidCredentials is returned when an email/password pair does not match
	ErrInvalidCredentials = errors.New("incorrect email or password")

	// ErrAlreadyRegistered is returned when registering an email that already has an account
	ErrAlreadyRegistered = errors.New("user is already registered")

	// ErrNotRegistered is returned when logging in with an email that has no account
	ErrNotRegistered = errors.New("user is not registered")

	// ErrUnknownUser is returned when the CRM does not know the email
	ErrUnknownUser = errors.New("user not found in CRM")

	// ErrCRMUnavailable is returned when the CRM could not be reached
	ErrCRMUnavailable = errors.New("CRM is unavailable")

	// ErrUnknownItem is returned for a dashboard item id that does not exist
	ErrUnknownItem = errors.New("unknown dashboard item")

	// ErrCustomQueryDisabled is returned when ad-hoc queries are turned off
	ErrCustomQueryDisabled = errors.New("custom queries are disabled")
)
