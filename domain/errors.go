package domain

import (
	"errors"
	"strings"
)

var (
	// ErrUnknownEvent is returned for notification names outside the board protocol.
	ErrUnknownEvent = errors.New("unknown event")
	// ErrInvalidPayload indicates a notification failed boundary validation.
	ErrInvalidPayload = errors.New("invalid event payload")

	ErrEmptyName  = errors.New("name is required")
	ErrEmptyTitle = errors.New("title is required")
)

// ValidateName trims name and rejects it when nothing is left.
func ValidateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrEmptyName
	}
	return name, nil
}

// ValidateTitle trims title and rejects it when nothing is left.
func ValidateTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", ErrEmptyTitle
	}
	return title, nil
}
