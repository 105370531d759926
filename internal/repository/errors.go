// Package repository contains data access logic separated from HTTP handlers.
// Sentinel errors let handlers distinguish failure scenarios without parsing
// driver errors: ErrNotFound covers both "no such row" and "row owned by
// someone else", so cross-tenant probes can never learn whether a record
// exists.
package repository

import "errors"

// ErrNotFound is returned when the scoped target row does not exist.
// Handlers translate it into HTTP 404.
var ErrNotFound = errors.New("not found")

// ErrEmailExists is returned when an identity insert collides with a live
// row's email. Handlers translate it into HTTP 409.
var ErrEmailExists = errors.New("email already exists")
