package repositories

import (
	"fmt"

	"github.com/sensorbridge/sensorbridge-engine/pkg/apperrors"
)

// notFound wraps the not-found sentinel with the entity kind.
func notFound(entity string) error {
	return fmt.Errorf("%s: %w", entity, apperrors.ErrNotFound)
}
