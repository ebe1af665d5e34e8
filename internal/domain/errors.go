package domain

import "errors"

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrNotPaired       = errors.New("session is not paired yet")
)
