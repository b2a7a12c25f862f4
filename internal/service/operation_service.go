// internal/service/operation_service.go
package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"glider-device-service/internal/device"
	"glider-device-service/internal/model"
	"glider-device-service/internal/operation"
	"glider-device-service/internal/repository"
	"glider-device-service/internal/utils"
)

var (
	ErrOperationNotRunning = errors.New("operation is not running")
	ErrInvalidRequest      = errors.New("invalid request")
)

// runningOperation is an operation whose worker goroutine has not finished
type runningOperation struct {
	mu     sync.Mutex
	op     *model.DeviceOperation
	cancel context.CancelFunc
}

func (r *runningOperation) snapshot() *model.DeviceOperation {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *r.op
	return &c
}

// OperationService runs long device operations (task declaration, flight
// list, flight download) in the background and records their history
type OperationService struct {
	manager     *device.Manager
	repo        repository.OperationRepository
	publisher   model.EventPublisher
	downloadDir string
	logger      *zap.Logger

	baseCtx context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup

	mu      sync.Mutex
	running map[uuid.UUID]*runningOperation
}

func NewOperationService(manager *device.Manager, repo repository.OperationRepository,
	publisher model.EventPublisher, downloadDir string, logger *zap.Logger) *OperationService {
	ctx, stop := context.WithCancel(context.Background())
	return &OperationService{
		manager:     manager,
		repo:        repo,
		publisher:   publisher,
		downloadDir: downloadDir,
		logger:      logger.With(zap.String("component", "operation_service")),
		baseCtx:     ctx,
		stop:        stop,
		running:     map[uuid.UUID]*runningOperation{},
	}
}

// Declare uploads a task declaration to the logger of slot index
func (s *OperationService) Declare(ctx context.Context, index int, req *model.DeclareRequest) (*model.DeviceOperation, error) {
	if req == nil || len(req.Declaration.Turnpoints) < 2 {
		return nil, fmt.Errorf("%w: a declaration needs at least two turnpoints", ErrInvalidRequest)
	}

	data := model.JSONObject{
		"pilot":      req.Declaration.PilotName,
		"turnpoints": len(req.Declaration.Turnpoints),
	}
	return s.start(ctx, index, model.OperationTypeDeclare, data,
		func(d *device.Descriptor, env operation.Env) (model.JSONObject, error) {
			if err := d.Declare(req.Declaration, req.Home, env); err != nil {
				return nil, err
			}
			return model.JSONObject{"declared": true}, nil
		})
}

// ListFlights reads the flights stored in the logger of slot index
func (s *OperationService) ListFlights(ctx context.Context, index int) (*model.DeviceOperation, error) {
	return s.start(ctx, index, model.OperationTypeListFlights, nil,
		func(d *device.Descriptor, env operation.Env) (model.JSONObject, error) {
			flights, err := d.ReadFlightList(env)
			if err != nil {
				return nil, err
			}

			list := make([]interface{}, len(flights))
			for i, f := range flights {
				list[i] = map[string]interface{}{
					"index":      f.Index,
					"date":       f.Date.Format("2006-01-02"),
					"start_time": f.StartTime.Format("15:04"),
					"end_time":   f.EndTime.Format("15:04"),
					"text":       f.String(),
				}
			}
			return model.JSONObject{"flights": list, "count": len(flights)}, nil
		})
}

// DownloadFlight copies one flight from the logger of slot index into the
// download directory
func (s *OperationService) DownloadFlight(ctx context.Context, index int, req *model.DownloadFlightRequest) (*model.DeviceOperation, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: missing flight", ErrInvalidRequest)
	}
	flight := req.Flight
	path := filepath.Join(s.downloadDir, fmt.Sprintf("%s-slot%d-%d.igc",
		flight.Date.Format("2006-01-02"), index, flight.Index))

	data := model.JSONObject{
		"flight_index": flight.Index,
		"flight":       flight.String(),
		"path":         path,
	}
	return s.start(ctx, index, model.OperationTypeDownloadFlight, data,
		func(d *device.Descriptor, env operation.Env) (model.JSONObject, error) {
			if err := os.MkdirAll(s.downloadDir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create download directory: %w", err)
			}
			if err := d.DownloadFlight(flight, path, env); err != nil {
				os.Remove(path)
				return nil, err
			}
			return model.JSONObject{"path": path}, nil
		})
}

type operationFunc func(d *device.Descriptor, env operation.Env) (model.JSONObject, error)

// start borrows the device and runs fn in the background. The device is
// switched back to NMEA and returned when fn finishes.
func (s *OperationService) start(ctx context.Context, index int, opType model.OperationType,
	data model.JSONObject, fn operationFunc) (*model.DeviceOperation, error) {
	d, err := s.manager.Descriptor(index)
	if err != nil {
		return nil, err
	}
	if !d.IsOpen() {
		return nil, fmt.Errorf("device %d: %w", index, device.ErrNotOpen)
	}
	if !d.Borrow() {
		return nil, fmt.Errorf("device %d: %w", index, device.ErrOccupied)
	}

	now := time.Now()
	op := &model.DeviceOperation{
		ID:            uuid.New(),
		DeviceIndex:   index,
		OperationType: opType,
		OperationData: data,
		Status:        model.OperationStatusProcessing,
		StartedAt:     now,
		CreatedAt:     now,
	}
	if err := s.repo.Create(ctx, op); err != nil {
		d.Return()
		return nil, fmt.Errorf("failed to record operation: %w", err)
	}

	opCtx, cancel := context.WithCancel(s.baseCtx)
	running := &runningOperation{op: op, cancel: cancel}

	s.mu.Lock()
	s.running[op.ID] = running
	s.mu.Unlock()

	s.publish(model.EventOperationStarted, running.snapshot())

	snapshot := running.snapshot()
	s.wg.Add(1)
	go s.run(opCtx, d, running, fn)
	return snapshot, nil
}

func (s *OperationService) run(ctx context.Context, d *device.Descriptor, running *runningOperation, fn operationFunc) {
	defer s.wg.Done()
	defer running.cancel()

	op := running.snapshot()
	opLogger := utils.NewOperationLogger(s.logger, string(op.OperationType), op.ID.String(), op.DeviceIndex)
	opLogger.Start()

	env := operation.NewContextEnv(ctx, opLogger.Logger(), func(p operation.Progress) {
		running.mu.Lock()
		running.op.ProgressRange = p.Range
		running.op.ProgressPosition = p.Position
		running.op.Message = p.Text
		running.mu.Unlock()

		opLogger.Progress(p.Text, p.Position, p.Range)
		s.publish(model.EventOperationProgress, running.snapshot())
	})

	result, err := fn(d, env)
	cancelled := err != nil && (errors.Is(err, operation.ErrCancelled) || env.IsCancelled())

	// the device goes back to NMEA even when the operation was cancelled
	if nmeaErr := d.EnableNMEA(operation.NewContextEnv(context.Background(), opLogger.Logger(), nil)); nmeaErr != nil {
		s.logger.Warn("Failed to restore NMEA mode",
			zap.Int("device_index", op.DeviceIndex), zap.Error(nmeaErr))
	}
	d.Return()

	running.mu.Lock()
	switch {
	case err == nil:
		running.op.Result = result
		running.op.Complete(model.OperationStatusSuccess, nil)
	case cancelled:
		running.op.Complete(model.OperationStatusCancelled, err)
	default:
		running.op.Complete(model.OperationStatusFailed, err)
	}
	final := *running.op
	running.mu.Unlock()

	switch final.Status {
	case model.OperationStatusSuccess:
		opLogger.Success()
		s.publish(model.EventOperationCompleted, &final)
	case model.OperationStatusCancelled:
		opLogger.Cancelled()
		s.publish(model.EventOperationCompleted, &final)
	default:
		opLogger.Error(err)
		s.publish(model.EventOperationFailed, &final)
	}

	if updateErr := s.repo.Update(context.Background(), &final); updateErr != nil {
		s.logger.Error("Failed to record operation result",
			zap.String("operation_id", final.ID.String()), zap.Error(updateErr))
	}

	s.mu.Lock()
	delete(s.running, final.ID)
	s.mu.Unlock()
}

// Get returns an operation, including the live progress of a running one
func (s *OperationService) Get(ctx context.Context, id uuid.UUID) (*model.DeviceOperation, error) {
	s.mu.Lock()
	running, ok := s.running[id]
	s.mu.Unlock()
	if ok {
		return running.snapshot(), nil
	}
	return s.repo.GetByID(ctx, id)
}

func (s *OperationService) List(ctx context.Context, filter *model.OperationFilter) ([]*model.DeviceOperation, int, error) {
	operations, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list operations: %w", err)
	}

	s.mu.Lock()
	for i, op := range operations {
		if running, ok := s.running[op.ID]; ok {
			operations[i] = running.snapshot()
		}
	}
	s.mu.Unlock()
	return operations, total, nil
}

// Cancel requests cancellation of a running operation. The operation
// finishes asynchronously with status CANCELLED.
func (s *OperationService) Cancel(id uuid.UUID) error {
	s.mu.Lock()
	running, ok := s.running[id]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrOperationNotRunning, id)
	}

	running.cancel()
	s.logger.Info("Operation cancellation requested", zap.String("operation_id", id.String()))
	return nil
}

// Wait blocks until every running operation has finished
func (s *OperationService) Wait() {
	s.wg.Wait()
}

// Shutdown cancels every running operation and waits for them
func (s *OperationService) Shutdown() {
	s.stop()
	s.wg.Wait()
}

// Cleanup removes history older than maxAge
func (s *OperationService) Cleanup(ctx context.Context, maxAge time.Duration) (int64, error) {
	return s.repo.DeleteOldOperations(ctx, time.Now().Add(-maxAge))
}

func (s *OperationService) publish(eventType model.EventType, op *model.DeviceOperation) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(model.NewDeviceEvent(eventType, op.DeviceIndex, "operation_service", model.JSONObject{
		"operation_id":      op.ID.String(),
		"operation_type":    op.OperationType,
		"status":            op.Status,
		"progress":          op.Progress(),
		"progress_range":    op.ProgressRange,
		"progress_position": op.ProgressPosition,
		"message":           op.Message,
	}))
}
