package models

import "errors"

var (
	// ErrProjectKindRequired indicates a required project kind field is empty.
	ErrProjectKindRequired = errors.New("project kind is required")

	// ErrOwnerRequired indicates a required owner id field is empty.
	ErrOwnerRequired = errors.New("project owner id is required")
)
