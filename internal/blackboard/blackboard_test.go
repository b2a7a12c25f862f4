package blackboard

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"glider-device-service/internal/model"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []model.DeviceEvent
}

func (r *recordingPublisher) Publish(event model.DeviceEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingPublisher) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func TestMergePrefersLowerIndex(t *testing.T) {
	b := New(2, time.Second, nil, zap.NewNop())

	b.UpdateRealState(1, func(info *model.NMEAInfo) {
		info.Alive.Update(info.Clock)
		info.ProvidePressureAltitude(1200)
		info.ProvideTotalEnergyVario(1.5)
	})
	b.UpdateRealState(0, func(info *model.NMEAInfo) {
		info.Alive.Update(info.Clock)
		info.ProvidePressureAltitude(1000)
	})

	basic := b.Merge()
	if basic.PressureAltitude != 1000 {
		t.Errorf("pressure altitude = %v, want 1000 from device 0", basic.PressureAltitude)
	}
	if !basic.TotalEnergyVarioAvailable.IsValid() || basic.TotalEnergyVario != 1.5 {
		t.Errorf("vario from device 1 missing: %+v", basic)
	}
	if b.Basic().PressureAltitude != 1000 {
		t.Error("Basic does not return the merged state")
	}
}

func TestDeadDevicesAreIgnored(t *testing.T) {
	b := New(1, 20*time.Millisecond, nil, zap.NewNop())

	b.UpdateRealState(0, func(info *model.NMEAInfo) {
		info.Alive.Update(info.Clock)
		info.ProvidePressureAltitude(1000)
	})
	if !b.IsAlive(0) {
		t.Fatal("device should be alive")
	}

	time.Sleep(40 * time.Millisecond)
	if b.IsAlive(0) {
		t.Fatal("device should have timed out")
	}
	if basic := b.Merge(); basic.PressureAltitudeAvailable.IsValid() {
		t.Error("state of a dead device was merged")
	}
}

func TestOutOfRangeSlots(t *testing.T) {
	b := New(1, time.Second, nil, zap.NewNop())

	called := false
	b.UpdateRealState(3, func(info *model.NMEAInfo) { called = true })
	if called {
		t.Error("update ran for a missing slot")
	}
	if b.IsAlive(-1) {
		t.Error("missing slot reported alive")
	}
	if b.Slots() != 1 {
		t.Errorf("Slots() = %d", b.Slots())
	}
}

func TestResetRealState(t *testing.T) {
	b := New(1, time.Second, nil, zap.NewNop())
	b.UpdateRealState(0, func(info *model.NMEAInfo) {
		info.Alive.Update(info.Clock)
	})

	b.ResetRealState(0)
	if b.IsAlive(0) {
		t.Error("reset slot still alive")
	}
}

func TestDerivedFallsBackToMergedMacCready(t *testing.T) {
	b := New(1, time.Second, nil, zap.NewNop())
	b.UpdateRealState(0, func(info *model.NMEAInfo) {
		info.Alive.Update(info.Clock)
		info.Settings.ProvideMacCready(1.5, info.Clock)
	})
	b.Merge()

	if got := b.Derived().MacCready; got != 1.5 {
		t.Errorf("MacCready = %v, want 1.5", got)
	}

	b.SetDerived(model.DerivedInfo{MacCready: 2})
	if got := b.Derived().MacCready; got != 2 {
		t.Errorf("MacCready = %v, want 2", got)
	}
}

func TestRunPublishesMergedState(t *testing.T) {
	publisher := &recordingPublisher{}
	b := New(1, time.Second, publisher, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	b.UpdateRealState(0, func(info *model.NMEAInfo) {
		info.Alive.Update(info.Clock)
		info.ProvidePressureAltitude(500)
	})
	b.ScheduleMerge()

	deadline := time.Now().Add(2 * time.Second)
	for publisher.count() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("no aircraft state published")
		}
		time.Sleep(5 * time.Millisecond)
	}

	// merges within the publish interval are not published again
	b.ScheduleMerge()
	time.Sleep(50 * time.Millisecond)
	if publisher.count() != 1 {
		t.Errorf("published %d events, want 1", publisher.count())
	}

	publisher.mu.Lock()
	event := publisher.events[0]
	publisher.mu.Unlock()
	if event.EventType != model.EventAircraftState {
		t.Errorf("event type = %s", event.EventType)
	}
}
