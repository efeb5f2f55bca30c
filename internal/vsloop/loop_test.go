package vsloop_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vslope/internal/altitude"
	"vslope/internal/controller"
	"vslope/internal/logging"
	"vslope/internal/missionplan"
	"vslope/internal/navigation"
	"vslope/internal/phasemanager"
	"vslope/internal/vsloop"
)

type fixedNav struct{ frame *navigation.Frame }

func (f *fixedNav) Get() *navigation.Frame { return f.frame }

type fixedAltitude struct {
	value *float64
	err   error
}

func (f *fixedAltitude) Altitude(ctx context.Context, frame *navigation.Frame) (*float64, error) {
	return f.value, f.err
}

type countingSender struct{ count int }

func (s *countingSender) SendZCommand(ctx context.Context, z float64) bool {
	s.count++
	return true
}

func f64(v float64) *float64 { return &v }

func testParams() vsloop.Params {
	return vsloop.Params{
		SubphaseID:    "1-1",
		Plan:          missionplan.SubphasePlan{StartLat: 10, StartLon: 20, StartZ: 10, EndLat: 10.001, EndLon: 20, EndZ: 20, Speed: 1},
		PreviousStep:  0,
		CommandPeriod: 10 * time.Millisecond,
		MaxAngleDeg:   30,
		ControllerConfig: controller.Config{
			AltitudeThresholdLevel:  5,
			AltitudeThresholdAscend: 3,
			WaitTime:                time.Second,
			MinDepth:                0,
			MaxDepth:                100,
			TransitionTicks:         1,
		},
	}
}

func TestLoopStopsOnContextCancel(t *testing.T) {
	nav := &fixedNav{frame: &navigation.Frame{Depth: f64(10)}}
	alt := &fixedAltitude{value: f64(8)}
	sender := &countingSender{}
	mgr := phasemanager.New(nil, nav, nil, phasemanager.Tolerances{}, logging.New(nil))

	loop := vsloop.New(testParams(), nav, alt, sender, mgr, logging.New(nil), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()

	err := loop.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Greater(t, sender.count, 0, "loop should have dispatched at least one command before cancellation")
}

func TestLoopWritesLastStepOnExit(t *testing.T) {
	nav := &fixedNav{frame: &navigation.Frame{Depth: f64(10)}}
	alt := &fixedAltitude{value: f64(8)}
	sender := &countingSender{}
	mgr := phasemanager.New(nil, nav, nil, phasemanager.Tolerances{}, logging.New(nil))

	loop := vsloop.New(testParams(), nav, alt, sender, mgr, logging.New(nil), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 40*time.Millisecond)
	defer cancel()
	_ = loop.Run(ctx)

	assert.NotEqual(t, 0.0, mgr.LastStep(), "manager.LastStep must be populated on exit")
}

func TestLoopPropagatesAltitudeSourceError(t *testing.T) {
	nav := &fixedNav{}
	alt := &fixedAltitude{err: altitude.ErrUnavailable}
	sender := &countingSender{}
	mgr := phasemanager.New(nil, nav, nil, phasemanager.Tolerances{}, logging.New(nil))

	loop := vsloop.New(testParams(), nav, alt, sender, mgr, logging.New(nil), nil)

	err := loop.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, altitude.ErrUnavailable))
}

func TestStepComputation(t *testing.T) {
	plan := missionplan.SubphasePlan{StartLat: 0, StartLon: 0, StartZ: 0, EndLat: 0, EndLon: 0.001, EndZ: 10, Speed: 1}
	step := vsloop.Step(plan, 0, time.Second)
	assert.Greater(t, step, 0.0)
}

func TestMaxAngleStepScalesWithSpeedAndPeriod(t *testing.T) {
	a := vsloop.MaxAngleStep(1.0, 30, time.Second)
	b := vsloop.MaxAngleStep(2.0, 30, time.Second)
	assert.InDelta(t, a*2, b, 1e-9)
}
