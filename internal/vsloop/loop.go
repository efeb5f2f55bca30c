// Package vsloop drives one live subphase at a fixed cadence: fetch
// navigation, derive altitude, advance the depth controller, repeat.
package vsloop

import (
	"context"
	"fmt"
	"math"
	"time"

	"vslope/internal/altitude"
	"vslope/internal/controller"
	"vslope/internal/geo"
	"vslope/internal/logging"
	"vslope/internal/missionplan"
	"vslope/internal/navigation"
	"vslope/internal/phasemanager"
	"vslope/internal/telemetry"
)

// NavSource is the subset of the navigation store the loop depends on.
type NavSource interface {
	Get() *navigation.Frame
}

// Params configures one subphase's run of the loop.
type Params struct {
	SubphaseID   string
	Plan         missionplan.SubphasePlan
	PreviousStep float64

	CommandPeriod time.Duration
	MaxAngleDeg   float64

	ControllerConfig controller.Config
}

// Loop runs a single live subphase, driving the depth controller at a fixed
// cadence until canceled.
type Loop struct {
	params  Params
	nav     NavSource
	source  altitude.Source
	sender  controller.DepthSender
	manager *phasemanager.Manager
	log     logging.Logger
	metrics *telemetry.Metrics
}

// New constructs a Loop for one subphase.
func New(params Params, nav NavSource, source altitude.Source, sender controller.DepthSender, manager *phasemanager.Manager, log logging.Logger, metrics *telemetry.Metrics) *Loop {
	return &Loop{
		params:  params,
		nav:     nav,
		source:  source,
		sender:  sender,
		manager: manager,
		log:     log,
		metrics: metrics,
	}
}

// Step computes the nominal per-tick depth delta for plan, taking the
// actual current depth (falling back to the planned START_Z if navigation
// has no depth reading yet) as the trajectory's starting point.
func Step(plan missionplan.SubphasePlan, actualStartZ float64, commandPeriod time.Duration) float64 {
	distance := geo.DistanceMeters(plan.StartLat, plan.StartLon, plan.EndLat, plan.EndLon)
	if distance == 0 {
		return 0
	}
	return ((plan.EndZ - actualStartZ) * plan.Speed / distance) * commandPeriod.Seconds()
}

// MaxAngleStep computes the per-tick depth-change budget during a safety
// maneuver for the given leg speed, command period, and max bank angle.
func MaxAngleStep(speed, maxAngleDeg float64, commandPeriod time.Duration) float64 {
	return speed * math.Sin(maxAngleDeg*math.Pi/180) * commandPeriod.Seconds()
}

// Run executes the fixed-cadence scheduler for this subphase. It returns
// when ctx is canceled or the altitude source reports a fatal error (test
// mode with no navigation fix). On every exit path it writes the
// controller's final current step back to the manager so the next subphase
// continues the transition smoothly.
func (l *Loop) Run(ctx context.Context) error {
	frame := l.nav.Get()
	actualStartZ := l.params.Plan.StartZ
	if frame != nil && frame.Depth != nil {
		actualStartZ = *frame.Depth
	}

	distance := geo.DistanceMeters(l.params.Plan.StartLat, l.params.Plan.StartLon, l.params.Plan.EndLat, l.params.Plan.EndLon)
	step := Step(l.params.Plan, actualStartZ, l.params.CommandPeriod)
	maxAngleStep := MaxAngleStep(l.params.Plan.Speed, l.params.MaxAngleDeg, l.params.CommandPeriod)
	trajectoryDown := l.params.Plan.EndZ > actualStartZ

	l.log.InfoCtx(ctx, "starting virtual slope subphase",
		"subphase", l.params.SubphaseID, "start_z", actualStartZ, "end_z", l.params.Plan.EndZ,
		"speed", l.params.Plan.Speed, "distance_m", distance, "step", step,
		"trajectory_down", trajectoryDown, "max_angle_step", maxAngleStep)

	inst := controller.New(l.params.ControllerConfig, actualStartZ, l.params.Plan.EndZ, step, maxAngleStep,
		trajectoryDown, l.params.PreviousStep, l.sender, l.log, l.metrics)

	if l.manager != nil {
		// Publish the nominal step before the first tick runs, so a
		// cancellation before this leg ever ticks still hands the next leg
		// this leg's step rather than the previous leg's.
		l.manager.SetLastStep(step)
	}

	defer func() {
		if l.manager != nil {
			l.manager.SetLastStep(inst.CurrentStep())
			l.log.DebugCtx(ctx, "saved final step for next subphase", "subphase", l.params.SubphaseID, "step", inst.CurrentStep())
		}
	}()

	nextCall := time.Now()
	for {
		select {
		case <-ctx.Done():
			l.log.InfoCtx(ctx, "subphase interrupted", "subphase", l.params.SubphaseID)
			return ctx.Err()
		default:
		}

		nextCall = nextCall.Add(l.params.CommandPeriod)

		frame := l.nav.Get()
		alt, err := l.source.Altitude(ctx, frame)
		if err != nil {
			return fmt.Errorf("subphase %s: altitude source: %w", l.params.SubphaseID, err)
		}

		inst.Update(ctx, alt)
		if l.metrics != nil {
			l.metrics.Ticks.Inc()
		}

		sleepFor := time.Until(nextCall)
		if sleepFor <= 0 {
			continue
		}
		select {
		case <-time.After(sleepFor):
		case <-ctx.Done():
			l.log.InfoCtx(ctx, "subphase interrupted", "subphase", l.params.SubphaseID)
			return ctx.Err()
		}
	}
}
