package core

import "errors"

// Operation-level error kinds. Engines wrap these with context; callers
// branch with errors.Is at the boundary.
var (
	// ErrNotFound reports a series, card or record id that does not exist.
	ErrNotFound = errors.New("not found")

	// ErrNoOwner reports a write attempted without an owner identity.
	ErrNoOwner = errors.New("missing owner identity")

	// ErrAtomicity reports an underlying batch commit failure. Nothing
	// from the batch is visible when this is returned.
	ErrAtomicity = errors.New("atomic batch failed")

	// ErrUnknownCategory reports a category name absent from the
	// owner's registry.
	ErrUnknownCategory = errors.New("category not registered")

	// ErrExpenseBilled reports a write against a card expense that has
	// already been rolled into a closed bill. Billed records are frozen.
	ErrExpenseBilled = errors.New("card expense already billed")

	// ErrNoOpenBalance reports a bill close on a cycle with nothing
	// left to settle, including a cycle that was already closed.
	ErrNoOpenBalance = errors.New("billing cycle has no open balance")

	// ErrCategoryExists reports an add or rename colliding with a name
	// already registered for the type, compared case-insensitively.
	ErrCategoryExists = errors.New("category already registered")

	// ErrDefaultCategory reports a rename or removal of a system
	// default category. Defaults are permanent.
	ErrDefaultCategory = errors.New("system default category is permanent")
)
