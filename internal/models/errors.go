package models

import "errors"

var (
	// ErrNotFound is returned when a referenced entity is absent or soft-deleted
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists is returned on duplicate handles or subscriptions
	ErrAlreadyExists = errors.New("already exists")
)
