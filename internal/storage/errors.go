package storage

import "errors"

// ErrPositionNotFound is returned when a position ID has no record
var ErrPositionNotFound = errors.New("position not found")

// ErrDuplicatePosition is returned when adding a position whose ID already exists
var ErrDuplicatePosition = errors.New("position already exists")
