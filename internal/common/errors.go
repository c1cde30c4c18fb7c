package common

import "errors"

// Error kinds shared across services. Repos translate driver errors
// (e.g. gorm.ErrRecordNotFound) into these at their boundary so that
// handlers never depend on persistence internals.
var (
	ErrNotFound     = errors.New("not found")
	ErrAccessDenied = errors.New("access denied")
)
