package services

import (
	"errors"

	"github.com/saeid-a/CoachCareBack/internal/repository"
)

var (
	ErrUnauthorized           = errors.New("authentication required")
	ErrAccessDenied           = errors.New("access denied")
	ErrNotFound               = errors.New("not found")
	ErrInvalidRange           = errors.New("end must be after start")
	ErrOverlapConflict        = errors.New("time slot overlaps an existing appointment")
	ErrSubscriptionInactive   = errors.New("subscription is not active")
	ErrInvalidInput           = errors.New("invalid input")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrStorageUnavailable     = errors.New("media storage is not configured")
)

// notFound maps a missing row to ErrNotFound and leaves other errors alone.
func notFound(err error) error {
	if repository.IsNotFound(err) {
		return ErrNotFound
	}
	return err
}
