package types

import "errors"

// Content errors.
var (
	ErrInvalidTree     = errors.New("content tree must be a JSON array")
	ErrMalformedBlock  = errors.New("malformed block")
	ErrAlreadyMigrated = errors.New("value already in target shape")
	ErrParse           = errors.New("value could not be parsed")
)

// Rule and migration errors.
var (
	ErrDuplicateRule    = errors.New("block type claimed by more than one rule")
	ErrUnknownMigration = errors.New("unknown migration")
	ErrDuplicateName    = errors.New("duplicate migration name")
	ErrNotApplied       = errors.New("migration has not been applied")
	ErrUnknownRuleKind  = errors.New("unknown rule kind")
)

// Storage errors.
var (
	ErrNotFound          = errors.New("row not found")
	ErrInvalidIdentifier = errors.New("invalid SQL identifier")
	ErrStoreClosed       = errors.New("store is closed")
	ErrBackendUnknown    = errors.New("unknown backend")
)
