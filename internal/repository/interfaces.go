// internal/repository/interfaces.go
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"glider-device-service/internal/model"
)

var ErrNotFound = errors.New("not found")

// ProfileRepository stores the key/value profile the device slot
// configuration is persisted in
type ProfileRepository interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	All(ctx context.Context) (map[string]string, error)
}

// OperationRepository stores the history of long running device operations
type OperationRepository interface {
	Create(ctx context.Context, operation *model.DeviceOperation) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.DeviceOperation, error)
	Update(ctx context.Context, operation *model.DeviceOperation) error
	List(ctx context.Context, filter *model.OperationFilter) ([]*model.DeviceOperation, int, error)
	DeleteOldOperations(ctx context.Context, olderThan time.Time) (int64, error)
}

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

func listLimit(filter *model.OperationFilter) int {
	switch {
	case filter.Limit <= 0:
		return defaultListLimit
	case filter.Limit > maxListLimit:
		return maxListLimit
	}
	return filter.Limit
}
