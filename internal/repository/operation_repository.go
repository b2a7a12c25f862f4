// internal/repository/operation_repository.go
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"glider-device-service/internal/database"
	"glider-device-service/internal/model"
)

const operationColumns = `
	id, device_index, operation_type, operation_data, status,
	progress_range, progress_position, message, started_at, completed_at,
	duration_ms, error_message, result, created_at`

type operationRepository struct {
	db     *database.DB
	logger *zap.Logger
}

// NewOperationRepository creates a postgres backed operation history
func NewOperationRepository(db *database.DB, logger *zap.Logger) OperationRepository {
	return &operationRepository{
		db:     db,
		logger: logger,
	}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOperation(row rowScanner) (*model.DeviceOperation, error) {
	operation := &model.DeviceOperation{}
	err := row.Scan(
		&operation.ID, &operation.DeviceIndex, &operation.OperationType,
		&operation.OperationData, &operation.Status, &operation.ProgressRange,
		&operation.ProgressPosition, &operation.Message, &operation.StartedAt,
		&operation.CompletedAt, &operation.DurationMs, &operation.ErrorMessage,
		&operation.Result, &operation.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return operation, nil
}

func (r *operationRepository) Create(ctx context.Context, operation *model.DeviceOperation) error {
	query := `
		INSERT INTO device_operations (
			id, device_index, operation_type, operation_data, status,
			progress_range, progress_position, message, started_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	if operation.CreatedAt.IsZero() {
		operation.CreatedAt = time.Now()
	}

	_, err := r.db.ExecContext(ctx, query,
		operation.ID, operation.DeviceIndex, operation.OperationType,
		operation.OperationData, operation.Status, operation.ProgressRange,
		operation.ProgressPosition, operation.Message, operation.StartedAt,
		operation.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create operation", zap.Error(err))
		return fmt.Errorf("failed to create operation: %w", err)
	}
	return nil
}

func (r *operationRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.DeviceOperation, error) {
	query := `SELECT ` + operationColumns + ` FROM device_operations WHERE id = $1`

	operation, err := scanOperation(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: operation %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get operation: %w", err)
	}
	return operation, nil
}

func (r *operationRepository) Update(ctx context.Context, operation *model.DeviceOperation) error {
	query := `
		UPDATE device_operations SET
			status = $2, progress_range = $3, progress_position = $4, message = $5,
			completed_at = $6, duration_ms = $7, error_message = $8, result = $9
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query,
		operation.ID, operation.Status, operation.ProgressRange,
		operation.ProgressPosition, operation.Message, operation.CompletedAt,
		operation.DurationMs, operation.ErrorMessage, operation.Result,
	)
	if err != nil {
		return fmt.Errorf("failed to update operation: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: operation %s", ErrNotFound, operation.ID)
	}
	return nil
}

// List returns the newest operations matching filter and the total match count
func (r *operationRepository) List(ctx context.Context, filter *model.OperationFilter) ([]*model.DeviceOperation, int, error) {
	if filter == nil {
		filter = &model.OperationFilter{}
	}

	whereConditions := []string{}
	args := []interface{}{}
	argIndex := 1

	if filter.DeviceIndex != nil {
		whereConditions = append(whereConditions, fmt.Sprintf("device_index = $%d", argIndex))
		args = append(args, *filter.DeviceIndex)
		argIndex++
	}

	if filter.OperationType != nil {
		whereConditions = append(whereConditions, fmt.Sprintf("operation_type = $%d", argIndex))
		args = append(args, *filter.OperationType)
		argIndex++
	}

	if filter.Status != nil {
		whereConditions = append(whereConditions, fmt.Sprintf("status = $%d", argIndex))
		args = append(args, *filter.Status)
		argIndex++
	}

	if filter.StartDate != nil {
		whereConditions = append(whereConditions, fmt.Sprintf("created_at >= $%d", argIndex))
		args = append(args, *filter.StartDate)
		argIndex++
	}

	if filter.EndDate != nil {
		whereConditions = append(whereConditions, fmt.Sprintf("created_at <= $%d", argIndex))
		args = append(args, *filter.EndDate)
		argIndex++
	}

	whereClause := ""
	if len(whereConditions) > 0 {
		whereClause = "WHERE " + strings.Join(whereConditions, " AND ")
	}

	var total int
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM device_operations %s", whereClause)
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count operations: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM device_operations %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`, operationColumns, whereClause, argIndex, argIndex+1)
	args = append(args, listLimit(filter), filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list operations: %w", err)
	}
	defer rows.Close()

	operations := []*model.DeviceOperation{}
	for rows.Next() {
		operation, err := scanOperation(rows)
		if err != nil {
			r.logger.Error("Failed to scan operation row", zap.Error(err))
			continue
		}
		operations = append(operations, operation)
	}

	return operations, total, rows.Err()
}

func (r *operationRepository) DeleteOldOperations(ctx context.Context, olderThan time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM device_operations WHERE created_at < $1`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old operations: %w", err)
	}
	return result.RowsAffected()
}
