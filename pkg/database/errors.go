// Copyright 2025 Ukweli Project
//
// Package database provides sentinel errors for mirror repository operations.

package database

import "errors"

// Sentinel errors for mirror operations
var (
	// ErrRecordNotFound is returned when a mirrored record is not found
	ErrRecordNotFound = errors.New("mirrored record not found")
)
