package domain

import "errors"

var (
	ErrValidation         = errors.New("validation failed")
	ErrOrderNotFound      = errors.New("order not found")
	ErrUserNotFound       = errors.New("user not found")
	ErrForbidden          = errors.New("forbidden")
	ErrInsufficientPoints = errors.New("insufficient points")
	ErrEventNotFound      = errors.New("event not found")
	ErrEventOverlap       = errors.New("another event is already scheduled during this time period")
)
