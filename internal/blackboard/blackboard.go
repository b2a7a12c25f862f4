// internal/blackboard/blackboard.go
package blackboard

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"glider-device-service/internal/model"
)

const (
	DefaultAliveTimeout    = 10 * time.Second
	DefaultPublishInterval = time.Second
)

// Blackboard holds the state each device contributes and the merged
// aircraft state. Devices write their own slot and call ScheduleMerge;
// the merge runs on the Run goroutine.
type Blackboard struct {
	mu      sync.Mutex
	real    []model.NMEAInfo
	basic   model.NMEAInfo
	derived model.DerivedInfo

	start        time.Time
	aliveTimeout time.Duration

	merge chan struct{}

	publisher       model.EventPublisher
	publishInterval time.Duration
	lastPublish     time.Time

	logger *zap.Logger
}

// New creates a blackboard with one slot per device
func New(slots int, aliveTimeout time.Duration, publisher model.EventPublisher, logger *zap.Logger) *Blackboard {
	if aliveTimeout <= 0 {
		aliveTimeout = DefaultAliveTimeout
	}
	return &Blackboard{
		real:            make([]model.NMEAInfo, slots),
		start:           time.Now(),
		aliveTimeout:    aliveTimeout,
		merge:           make(chan struct{}, 1),
		publisher:       publisher,
		publishInterval: DefaultPublishInterval,
		logger:          logger,
	}
}

// Clock returns the monotonic time since the blackboard was created
func (b *Blackboard) Clock() time.Duration {
	return time.Since(b.start)
}

// Slots returns the number of device slots
func (b *Blackboard) Slots() int {
	return len(b.real)
}

// UpdateRealState runs fn on the state of device index under the lock.
// The state's clock is set to the current time first.
func (b *Blackboard) UpdateRealState(index int, fn func(info *model.NMEAInfo)) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if index < 0 || index >= len(b.real) {
		return
	}
	info := &b.real[index]
	info.UpdateClock(b.Clock())
	fn(info)
}

// RealState returns a copy of the state of device index
func (b *Blackboard) RealState(index int) model.NMEAInfo {
	b.mu.Lock()
	defer b.mu.Unlock()

	if index < 0 || index >= len(b.real) {
		return model.NMEAInfo{}
	}
	return b.real[index]
}

// ResetRealState clears the state of device index
func (b *Blackboard) ResetRealState(index int) {
	b.UpdateRealState(index, func(info *model.NMEAInfo) {
		info.Reset()
	})
}

// IsAlive reports whether device index sent data recently
func (b *Blackboard) IsAlive(index int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if index < 0 || index >= len(b.real) {
		return false
	}
	alive := b.real[index].Alive
	alive.Expire(b.Clock(), b.aliveTimeout)
	return alive.IsValid()
}

// ScheduleMerge requests a merge; requests made before the merge runs
// are coalesced
func (b *Blackboard) ScheduleMerge() {
	select {
	case b.merge <- struct{}{}:
	default:
	}
}

// Merge recomputes the aircraft state from the live devices, lower
// indices taking precedence
func (b *Blackboard) Merge() model.NMEAInfo {
	b.mu.Lock()
	defer b.mu.Unlock()

	clock := b.Clock()
	b.basic.Reset()
	for i := range b.real {
		info := &b.real[i]
		if info.Alive.Expire(clock, b.aliveTimeout) {
			b.logger.Debug("Device state expired", zap.Int("device_index", i))
		}
		b.basic.Complement(info)
	}
	b.basic.UpdateClock(clock)
	return b.basic
}

// Basic returns the last merged aircraft state
func (b *Blackboard) Basic() model.NMEAInfo {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.basic
}

// SetDerived stores the computed values pushed to instruments
func (b *Blackboard) SetDerived(derived model.DerivedInfo) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.derived = derived
}

// Derived returns the computed values pushed to instruments
func (b *Blackboard) Derived() model.DerivedInfo {
	b.mu.Lock()
	defer b.mu.Unlock()

	derived := b.derived
	if derived.MacCready == 0 && b.basic.Settings.MacCreadyAvailable.IsValid() {
		derived.MacCready = b.basic.Settings.MacCready
	}
	return derived
}

// Run merges whenever a merge was scheduled, until ctx is done
func (b *Blackboard) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-b.merge:
			basic := b.Merge()
			b.publish(basic)
		}
	}
}

func (b *Blackboard) publish(basic model.NMEAInfo) {
	if b.publisher == nil || time.Since(b.lastPublish) < b.publishInterval {
		return
	}
	b.lastPublish = time.Now()

	b.publisher.Publish(model.NewDeviceEvent(model.EventAircraftState, -1, "blackboard",
		model.JSONObject{"state": basic}))
}
