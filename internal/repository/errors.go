// Package repository defines the SQL-backed credential store and the
// sentinel errors it returns.  Handlers and services match these with
// errors.Is to tell an absent record apart from a storage failure.
package repository

import "errors"

// ErrNotFound is returned when no credential is stored for a subject.
// Callers that authenticate requests translate it into a 401.
var ErrNotFound = errors.New("credential not found")
