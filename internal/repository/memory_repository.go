// internal/repository/memory_repository.go
package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"glider-device-service/internal/model"
)

// MemoryProfileRepository keeps the profile in process memory. It backs
// the service when no database is configured.
type MemoryProfileRepository struct {
	mu     sync.RWMutex
	values map[string]string
}

func NewMemoryProfileRepository() *MemoryProfileRepository {
	return &MemoryProfileRepository{values: map[string]string{}}
}

func (r *MemoryProfileRepository) Get(_ context.Context, key string) (string, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	value, ok := r.values[key]
	return value, ok, nil
}

func (r *MemoryProfileRepository) Set(_ context.Context, key, value string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values[key] = value
	return nil
}

func (r *MemoryProfileRepository) Delete(_ context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.values, key)
	return nil
}

func (r *MemoryProfileRepository) All(_ context.Context) (map[string]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	values := make(map[string]string, len(r.values))
	for k, v := range r.values {
		values[k] = v
	}
	return values, nil
}

// MemoryOperationRepository keeps the operation history in process memory
type MemoryOperationRepository struct {
	mu         sync.RWMutex
	operations map[uuid.UUID]*model.DeviceOperation
}

func NewMemoryOperationRepository() *MemoryOperationRepository {
	return &MemoryOperationRepository{operations: map[uuid.UUID]*model.DeviceOperation{}}
}

func copyOperation(op *model.DeviceOperation) *model.DeviceOperation {
	c := *op
	return &c
}

func (r *MemoryOperationRepository) Create(_ context.Context, operation *model.DeviceOperation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.operations[operation.ID]; exists {
		return fmt.Errorf("operation %s already exists", operation.ID)
	}
	if operation.CreatedAt.IsZero() {
		operation.CreatedAt = time.Now()
	}
	r.operations[operation.ID] = copyOperation(operation)
	return nil
}

func (r *MemoryOperationRepository) GetByID(_ context.Context, id uuid.UUID) (*model.DeviceOperation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	operation, ok := r.operations[id]
	if !ok {
		return nil, fmt.Errorf("%w: operation %s", ErrNotFound, id)
	}
	return copyOperation(operation), nil
}

func (r *MemoryOperationRepository) Update(_ context.Context, operation *model.DeviceOperation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.operations[operation.ID]
	if !ok {
		return fmt.Errorf("%w: operation %s", ErrNotFound, operation.ID)
	}
	updated := copyOperation(operation)
	updated.CreatedAt = stored.CreatedAt
	r.operations[operation.ID] = updated
	return nil
}

func matchesFilter(op *model.DeviceOperation, filter *model.OperationFilter) bool {
	if filter.DeviceIndex != nil && op.DeviceIndex != *filter.DeviceIndex {
		return false
	}
	if filter.OperationType != nil && op.OperationType != *filter.OperationType {
		return false
	}
	if filter.Status != nil && op.Status != *filter.Status {
		return false
	}
	if filter.StartDate != nil && op.CreatedAt.Before(*filter.StartDate) {
		return false
	}
	if filter.EndDate != nil && op.CreatedAt.After(*filter.EndDate) {
		return false
	}
	return true
}

func (r *MemoryOperationRepository) List(_ context.Context, filter *model.OperationFilter) ([]*model.DeviceOperation, int, error) {
	if filter == nil {
		filter = &model.OperationFilter{}
	}

	r.mu.RLock()
	matches := []*model.DeviceOperation{}
	for _, op := range r.operations {
		if matchesFilter(op, filter) {
			matches = append(matches, copyOperation(op))
		}
	}
	r.mu.RUnlock()

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].CreatedAt.After(matches[j].CreatedAt)
	})

	total := len(matches)
	start := filter.Offset
	if start > total {
		start = total
	}
	end := start + listLimit(filter)
	if end > total {
		end = total
	}
	return matches[start:end], total, nil
}

func (r *MemoryOperationRepository) DeleteOldOperations(_ context.Context, olderThan time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var deleted int64
	for id, op := range r.operations {
		if op.CreatedAt.Before(olderThan) {
			delete(r.operations, id)
			deleted++
		}
	}
	return deleted, nil
}
