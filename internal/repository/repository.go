// Package repository contains the record store abstraction.
// Implementations live in subpackages (e.g., sqldb) inside this directory.
package repository

import "errors"

// ErrNotFound is returned by lookups when no record matches.
var ErrNotFound = errors.New("record not found")
