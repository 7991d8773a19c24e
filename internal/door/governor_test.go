package door

import (
	"errors"
	"testing"
	"time"

	"reflow_oven/internal/config"
	"reflow_oven/internal/events"
	"reflow_oven/internal/logger"
	"reflow_oven/internal/models"
	"reflow_oven/internal/simulator"
)

// ---- Test doubles ----

type fakeServo struct {
	powered  bool
	attached bool
	angles   []float64
	calls    []string
	writeErr error
}

func (s *fakeServo) PowerOn() error {
	s.calls = append(s.calls, "power_on")
	s.powered = true
	return nil
}

func (s *fakeServo) PowerOff() error {
	s.calls = append(s.calls, "power_off")
	s.powered = false
	return nil
}

func (s *fakeServo) AttachPins() error {
	s.calls = append(s.calls, "attach")
	s.attached = true
	return nil
}

func (s *fakeServo) ReleasePins() error {
	s.calls = append(s.calls, "release")
	s.attached = false
	return nil
}

func (s *fakeServo) WriteAngle(deg float64) error {
	if s.writeErr != nil {
		return s.writeErr
	}
	s.angles = append(s.angles, deg)
	return nil
}

type fakeSwitches struct {
	open, closed bool
}

func (f *fakeSwitches) OpenTriggered() bool { return f.open }

func (f *fakeSwitches) ClosedTriggered() bool { return f.closed }

func newTestGovernor(t *testing.T, cfg Config) (*Governor, *fakeServo, *fakeSwitches, *events.Listener, *time.Time) {
	t.Helper()
	if cfg.OpenAngle == cfg.ClosedAngle {
		cfg.ClosedAngle, cfg.OpenAngle = 0, 90
	}
	if cfg.CommandPeriod == 0 {
		cfg.CommandPeriod = 20 * time.Millisecond
		cfg.SafetyPeriod = 100 * time.Millisecond
	}
	bus := events.NewBus()
	l := bus.SubscribeTopic(events.TopicDoor, 64)
	servo := &fakeServo{}
	sw := &fakeSwitches{}
	g, err := New(cfg, servo, sw, bus, logger.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return now }
	return g, servo, sw, l, &now
}

func names(l *events.Listener) []string {
	var out []string
	for {
		select {
		case e := <-l.C():
			out = append(out, e.Name)
		default:
			return out
		}
	}
}

func count(ns []string, name string) int {
	n := 0
	for _, x := range ns {
		if x == name {
			n++
		}
	}
	return n
}

// ---- Tests ----

func TestNew_RejectsDegenerateRange(t *testing.T) {
	_, err := New(Config{ClosedAngle: 10, OpenAngle: 10}, &fakeServo{}, &fakeSwitches{}, nil, logger.Nop())
	if !errors.Is(err, ErrBadRange) {
		t.Fatalf("expected ErrBadRange, got %v", err)
	}
}

func TestSetPosition_NoopWhenDisabled(t *testing.T) {
	g, servo, _, _, _ := newTestGovernor(t, Config{})
	if err := g.SetPosition(50); !errors.Is(err, ErrServoDisabled) {
		t.Fatalf("expected ErrServoDisabled, got %v", err)
	}
	if len(servo.angles) != 0 {
		t.Fatalf("no angle must be written while disabled")
	}
}

func TestEnableDisable_PinOrdering(t *testing.T) {
	g, servo, _, _, _ := newTestGovernor(t, Config{})
	if err := g.EnableServo(); err != nil {
		t.Fatalf("EnableServo: %v", err)
	}
	g.DisableServo()

	want := []string{"power_on", "attach", "release", "power_off"}
	if len(servo.calls) != len(want) {
		t.Fatalf("calls=%v; want %v", servo.calls, want)
	}
	for i := range want {
		if servo.calls[i] != want[i] {
			t.Fatalf("calls=%v; want %v", servo.calls, want)
		}
	}
	if g.State().ServoEnabled {
		t.Fatalf("servo should be disabled")
	}
}

func TestSetPosition_MapsPercentToCalibratedAngle(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		percent float64
		want    float64
	}{
		{name: "half open", cfg: Config{ClosedAngle: 20, OpenAngle: 120}, percent: 50, want: 70},
		{name: "fully open", cfg: Config{ClosedAngle: 20, OpenAngle: 120}, percent: 100, want: 120},
		{name: "clamped above 100", cfg: Config{ClosedAngle: 20, OpenAngle: 120}, percent: 150, want: 120},
		{name: "inverted", cfg: Config{ClosedAngle: 0, OpenAngle: 90, Inverted: true}, percent: 25, want: 67.5},
		{name: "descending range", cfg: Config{ClosedAngle: 170, OpenAngle: 80}, percent: 50, want: 125},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			g, servo, _, _, _ := newTestGovernor(t, tc.cfg)
			if err := g.EnableServo(); err != nil {
				t.Fatalf("EnableServo: %v", err)
			}
			if err := g.SetPosition(tc.percent); err != nil {
				t.Fatalf("SetPosition: %v", err)
			}
			if got := servo.angles[len(servo.angles)-1]; got != tc.want {
				t.Fatalf("angle=%v; want %v", got, tc.want)
			}
		})
	}
}

func TestSetPosition_EmitsDirectionThenPosition(t *testing.T) {
	g, _, _, l, _ := newTestGovernor(t, Config{})
	_ = g.EnableServo()
	names(l)

	if err := g.SetPosition(60); err != nil {
		t.Fatalf("SetPosition: %v", err)
	}
	got := names(l)
	if len(got) != 2 || got[0] != EventOpening || got[1] != EventPosition {
		t.Fatalf("events=%v", got)
	}
	if st := g.State(); st.Direction != models.DirectionOpening || st.TargetAngle != 54 {
		t.Fatalf("unexpected state: %+v", st)
	}
}

func TestSetPosition_RejectsMoveIntoTriggeredLimit(t *testing.T) {
	g, servo, sw, l, _ := newTestGovernor(t, Config{})
	_ = g.EnableServo()
	sw.open = true
	before := len(servo.angles)

	err := g.SetPosition(100)
	if !errors.Is(err, ErrUnsafeMove) {
		t.Fatalf("expected ErrUnsafeMove, got %v", err)
	}
	if len(servo.angles) != before {
		t.Fatalf("raw angle must not change on an unsafe move")
	}
	st := g.State()
	if st.ServoEnabled {
		t.Fatalf("servo must be disabled as a side effect")
	}
	if st.Direction != models.DirectionNone || st.CurrentAngle != st.TargetAngle {
		t.Fatalf("direction must be NONE after safety stop: %+v", st)
	}
	if count(names(l), EventSafetyStop) != 1 {
		t.Fatalf("expected a safety stop event")
	}
}

func TestSetPosition_AwayFromTriggeredLimitIsAllowed(t *testing.T) {
	g, servo, sw, _, _ := newTestGovernor(t, Config{})
	_ = g.EnableServo()
	sw.closed = true // door sits on the closed stop

	if err := g.SetPosition(40); err != nil {
		t.Fatalf("opening away from the closed stop must be allowed: %v", err)
	}
	if len(servo.angles) != 1 {
		t.Fatalf("expected one angle write, got %v", servo.angles)
	}
}

func TestStep_SlewsAndClearsDirectionOnArrival(t *testing.T) {
	g, _, _, l, now := newTestGovernor(t, Config{SlewDegPerSec: 90})
	_ = g.EnableServo()
	_ = g.SetPosition(100) // 90°

	*now = now.Add(500 * time.Millisecond)
	g.Step()
	st := g.State()
	if st.CurrentAngle != 45 || st.Direction != models.DirectionOpening {
		t.Fatalf("half way expected: %+v", st)
	}

	*now = now.Add(time.Second)
	g.Step()
	st = g.State()
	if st.CurrentAngle != 90 || st.Direction != models.DirectionNone {
		t.Fatalf("arrival should clear direction: %+v", st)
	}
	if count(names(l), EventArrived) != 1 {
		t.Fatalf("expected one arrival event")
	}
}

func TestCheckSafety_EdgeTriggeredEvents(t *testing.T) {
	g, _, sw, l, _ := newTestGovernor(t, Config{})
	names(l)

	sw.closed = true
	g.CheckSafety()
	g.CheckSafety()
	g.CheckSafety()
	sw.closed = false
	g.CheckSafety()
	sw.closed = true
	g.CheckSafety()

	if n := count(names(l), EventClosed); n != 2 {
		t.Fatalf("expected exactly one CLOSED per rising edge (2), got %d", n)
	}
}

func TestCheckSafety_StopsTravelPastTheEnd(t *testing.T) {
	g, _, sw, l, _ := newTestGovernor(t, Config{})
	_ = g.EnableServo()
	if err := g.SetRawAngle(120); err != nil { // 30° past the open end
		t.Fatalf("SetRawAngle: %v", err)
	}

	sw.open = true
	g.CheckSafety()

	st := g.State()
	if st.ServoEnabled || st.Direction != models.DirectionNone {
		t.Fatalf("safety monitor must disable the servo: %+v", st)
	}
	if !st.OpenLimitHit {
		t.Fatalf("limit flag should be recorded")
	}
	if count(names(l), EventSafetyStop) != 1 {
		t.Fatalf("expected a safety stop event")
	}
}

func TestCheckSafety_SwitchAtTargetEndIsArrival(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		from    float64
		to      float64
		trigger func(*fakeSwitches)
		edge    string
		angle   float64
	}{
		{name: "open", cfg: Config{ClosedAngle: 0, OpenAngle: 90}, from: 0, to: 100,
			trigger: func(f *fakeSwitches) { f.closed, f.open = false, true }, edge: EventOpened, angle: 90},
		{name: "close", cfg: Config{ClosedAngle: 0, OpenAngle: 90}, from: 100, to: 0,
			trigger: func(f *fakeSwitches) { f.open, f.closed = false, true }, edge: EventClosed, angle: 0},
		{name: "open descending range", cfg: Config{ClosedAngle: 170, OpenAngle: 80}, from: 0, to: 100,
			trigger: func(f *fakeSwitches) { f.closed, f.open = false, true }, edge: EventOpened, angle: 80},
		{name: "close inverted", cfg: Config{ClosedAngle: 0, OpenAngle: 90, Inverted: true}, from: 0, to: 100,
			trigger: func(f *fakeSwitches) { f.open, f.closed = false, true }, edge: EventClosed, angle: 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			g, _, sw, l, now := newTestGovernor(t, tc.cfg)
			_ = g.EnableServo()
			// settle at the starting aperture first
			_ = g.SetPosition(tc.from)
			*now = now.Add(time.Minute)
			g.Step()
			if err := g.SetPosition(tc.to); err != nil {
				t.Fatalf("SetPosition: %v", err)
			}
			names(l)

			// the switch trips before the tracked angle gets there
			tc.trigger(sw)
			g.CheckSafety()

			st := g.State()
			if !st.ServoEnabled {
				t.Fatalf("reaching the commanded end must not disable the servo: %+v", st)
			}
			if st.Direction != models.DirectionNone || st.CurrentAngle != tc.angle {
				t.Fatalf("expected arrival at %v: %+v", tc.angle, st)
			}
			got := names(l)
			if count(got, tc.edge) != 1 || count(got, EventArrived) != 1 || count(got, EventSafetyStop) != 0 {
				t.Fatalf("events=%v", got)
			}
		})
	}
}

func TestSimulatedDoor_FullOpenThenCloseKeepsServo(t *testing.T) {
	doorCfg := config.DoorConfig{ClosedAngle: 0, OpenAngle: 90}
	plant := simulator.New(config.SimulatorConfig{AmbientC: 25, LimitToleranceDeg: 0.5}, doorCfg)
	g, err := New(Config{
		ClosedAngle:   doorCfg.ClosedAngle,
		OpenAngle:     doorCfg.OpenAngle,
		CommandPeriod: 20 * time.Millisecond,
		SafetyPeriod:  100 * time.Millisecond,
		SlewDegPerSec: 180,
	}, plant, plant, nil, logger.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := g.EnableServo(); err != nil {
		t.Fatalf("EnableServo: %v", err)
	}

	for i, percent := range []float64{100, 0, 100, 40, 0} {
		if err := g.SetPosition(percent); err != nil {
			t.Fatalf("move %d to %v%%: %v", i, percent, err)
		}
		g.CheckSafety()
		if st := g.State(); !st.ServoEnabled {
			t.Fatalf("move %d to %v%%: servo disabled: %+v", i, percent, st)
		}
		if got, want := plant.Angle(), g.percentToAngle(percent); got != want {
			t.Fatalf("move %d: physical angle %v, want %v", i, got, want)
		}
	}
}

func TestSetRawAngle_BypassesMapping(t *testing.T) {
	g, servo, _, _, _ := newTestGovernor(t, Config{ClosedAngle: 10, OpenAngle: 110})
	_ = g.EnableServo()
	if err := g.SetRawAngle(33); err != nil {
		t.Fatalf("SetRawAngle: %v", err)
	}
	if servo.angles[0] != 33 {
		t.Fatalf("raw angle not passed through: %v", servo.angles)
	}
	if p := g.State().Percent; p != 23 {
		t.Fatalf("percent should reflect the raw angle, got %v", p)
	}
}

func TestSetCalibration_ChangesMapping(t *testing.T) {
	g, servo, _, _, _ := newTestGovernor(t, Config{})
	_ = g.EnableServo()
	if err := g.SetCalibration(30, 130); err != nil {
		t.Fatalf("SetCalibration: %v", err)
	}
	_ = g.SetPosition(50)
	if got := servo.angles[len(servo.angles)-1]; got != 80 {
		t.Fatalf("angle=%v; want 80", got)
	}
	if err := g.SetCalibration(5, 5); !errors.Is(err, ErrBadRange) {
		t.Fatalf("expected ErrBadRange, got %v", err)
	}
}
