package models

import "errors"

var (
	// ErrTaskNotFound is returned when no record exists for a task ID.
	ErrTaskNotFound = errors.New("task not found")

	// ErrTaskExists is returned when creating a record whose ID is taken.
	ErrTaskExists = errors.New("task already exists")
)
