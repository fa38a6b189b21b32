package store

import (
	"errors"

	"github.com/treeshop/treeshop-ops-go/internal/domain"
)

func isNotFound(err error) bool {
	var notFound *domain.ErrNotFound
	return errors.As(err, &notFound)
}

// IsVersionConflict reports whether err is an optimistic-concurrency failure.
func IsVersionConflict(err error) bool {
	var conflict *domain.ErrVersionConflict
	return errors.As(err, &conflict)
}
