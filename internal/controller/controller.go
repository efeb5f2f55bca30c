// Package controller implements the per-tick Virtual Slope depth controller:
// planned-trajectory advancement, step-transition smoothing with error
// compensation, and the five-state safety supervisor.
package controller

import (
	"context"
	"time"

	"vslope/internal/logging"
	"vslope/internal/telemetry"
)

// DepthSender dispatches a commanded depth to the downstream autopilot.
// Implemented by *backseat.Client.
type DepthSender interface {
	SendZCommand(ctx context.Context, z float64) bool
}

// Config carries the safety thresholds and envelope that are constant for
// the process, independent of any one subphase.
type Config struct {
	AltitudeThresholdLevel  float64
	AltitudeThresholdAscend float64
	WaitTime                time.Duration
	MinDepth                float64
	MaxDepth                float64
	TransitionTicks         int
}

// Instance is a ControllerInstance: owned exclusively by one live subphase.
type Instance struct {
	cfg     Config
	sender  DepthSender
	log     logging.Logger
	metrics *telemetry.Metrics
	now     func() time.Time

	currentZ       float64
	endZ           float64
	plannedZ       float64
	trajectoryDown bool
	endZReached    bool

	targetStep         float64
	originalTargetStep float64
	currentStep        float64
	maxAngleStep       float64

	transitionSequence   []float64
	transitionIndex      int
	stepTransitionActive bool
	errorCompensationActive bool

	commandDepth   float64
	state          State
	stateStartTime time.Time
	haveStartTime  bool
	waitFromAscend bool
}

// New constructs a ControllerInstance for one subphase leg.
func New(cfg Config, startZ, endZ, step, maxAngleStep float64, trajectoryDown bool, previousStep float64, sender DepthSender, log logging.Logger, metrics *telemetry.Metrics) *Instance {
	c := &Instance{
		cfg:                cfg,
		sender:             sender,
		log:                log,
		metrics:            metrics,
		now:                time.Now,
		currentZ:           startZ,
		endZ:               endZ,
		plannedZ:           startZ,
		trajectoryDown:     trajectoryDown,
		targetStep:         step,
		originalTargetStep: step,
		currentStep:        previousStep,
		maxAngleStep:       maxAngleStep,
		commandDepth:       startZ,
		state:              StateNormal,
	}

	n := cfg.TransitionTicks
	if n <= 0 {
		n = 1
	}
	c.transitionSequence = linspace(previousStep, step, n)
	c.stepTransitionActive = previousStep != step

	if c.log != nil {
		c.log.InfoCtx(context.Background(), "depth controller initialized",
			"start_z", startZ, "end_z", endZ, "step", step,
			"trajectory_down", trajectoryDown, "max_angle_step", maxAngleStep)
	}
	c.setMetricsState()
	return c
}

// CurrentStep returns the active per-tick depth delta, including any
// smoothing or error compensation in flight. Captured by the caller at
// cancellation to seed the next controller's previous_step.
func (c *Instance) CurrentStep() float64 { return c.currentStep }

// EndZReached reports whether the planned trajectory has arrived at end_z.
func (c *Instance) EndZReached() bool { return c.endZReached }

// State returns the current safety-automaton state.
func (c *Instance) State() State { return c.state }

// Update runs one control tick: step-transition advance, state-transition
// evaluation, per-state command emission, and trajectory-clock advance. It
// returns end_z_reached.
func (c *Instance) Update(ctx context.Context, altitude *float64) bool {
	c.advanceStepTransition()

	c.handleTransitions(ctx, altitude)

	activeState := c.state
	c.executeCurrentState(ctx)

	c.advanceTrajectory(activeState != StateNormal)

	if activeState == StateReturn && !c.trajectoryDown {
		if c.currentZ <= c.commandDepth {
			c.setState(ctx, StateNormal)
		}
	}

	return c.endZReached
}

func (c *Instance) handleTransitions(ctx context.Context, altitude *float64) {
	if altitude == nil {
		if c.state != StateNormal {
			c.setState(ctx, StateNormal)
		}
		return
	}
	a := *altitude

	if a < c.cfg.AltitudeThresholdAscend {
		if c.state == StateWait || c.state == StateReturn || c.state == StateHold {
			c.log.WarnCtx(ctx, "state interrupted: altitude dropped to critical level", "state", c.state, "altitude", a)
		}
		c.setState(ctx, StateAscend)
		return
	}

	if c.trajectoryDown && a < c.cfg.AltitudeThresholdLevel {
		if c.state == StateWait || c.state == StateReturn || c.state == StateHold {
			c.log.WarnCtx(ctx, "state interrupted: altitude dropped to warning level", "state", c.state, "altitude", a)
		}
		c.setState(ctx, StateHold)
		return
	}

	switch c.state {
	case StateAscend:
		c.setState(ctx, StateWait)
	case StateHold:
		c.setState(ctx, StateWait)
	case StateWait:
		if c.waitFinished() {
			c.setState(ctx, StateReturn)
		}
	case StateReturn:
		if c.returnCaughtTrajectory() {
			c.setState(ctx, StateNormal)
		}
	case StateNormal:
		// nothing to do
	}
}

func (c *Instance) setState(ctx context.Context, newState State) {
	if c.state == newState {
		return
	}
	oldState := c.state
	c.state = newState
	c.onEnterState(ctx, newState, oldState)
	c.log.InfoCtx(ctx, "controller state transition", "from", oldState, "to", newState)
	c.setMetricsState()
}

func (c *Instance) onEnterState(ctx context.Context, state, fromState State) {
	switch state {
	case StateAscend:
		c.haveStartTime = false
		c.commandDepth = c.currentZ
		c.log.WarnCtx(ctx, "critical safety ascend starting", "depth", c.commandDepth)
	case StateHold:
		c.haveStartTime = false
		c.log.InfoCtx(ctx, "safety hold engaged", "depth", c.commandDepth)
	case StateWait:
		c.stateStartTime = c.now()
		c.haveStartTime = true
		c.waitFromAscend = fromState == StateAscend
		if c.waitFromAscend {
			c.log.InfoCtx(ctx, "wait after ascend", "wait_time", c.cfg.WaitTime)
		} else {
			c.log.InfoCtx(ctx, "wait after hold", "wait_time", c.cfg.WaitTime)
		}
	case StateReturn:
		c.log.InfoCtx(ctx, "returning to trajectory", "from_depth", c.commandDepth, "to_depth", c.currentZ)
	case StateNormal:
		c.haveStartTime = false
		if fromState != StateNormal {
			c.log.InfoCtx(ctx, "safety deactivated, resuming normal operation")
		}
	}
}

func (c *Instance) executeCurrentState(ctx context.Context) {
	switch c.state {
	case StateNormal:
		c.stateNormal(ctx)
	case StateHold:
		c.stateHold(ctx)
	case StateAscend:
		c.stateAscend(ctx)
	case StateWait:
		c.stateWait(ctx)
	case StateReturn:
		c.stateReturn(ctx)
	}
}

func (c *Instance) stateNormal(ctx context.Context) {
	commandZ := c.currentZ
	if c.endZReached {
		commandZ = c.endZ
	} else {
		nextZ := c.currentZ + c.currentStep
		if c.trajectoryDown {
			if nextZ >= c.endZ {
				commandZ = c.endZ
				c.currentZ = c.endZ
				c.endZReached = true
			}
		} else {
			if nextZ <= c.endZ {
				commandZ = c.endZ
				c.currentZ = c.endZ
				c.endZReached = true
			}
		}
	}
	c.commandDepth = commandZ
	c.sendCommand(ctx, commandZ)
}

func (c *Instance) stateHold(ctx context.Context) {
	c.sendCommand(ctx, c.commandDepth)
}

func (c *Instance) stateAscend(ctx context.Context) {
	c.commandDepth -= c.maxAngleStep
	c.commandDepth = c.clampDepth(c.commandDepth)
	c.sendCommand(ctx, c.commandDepth)
}

func (c *Instance) stateWait(ctx context.Context) {
	if c.waitFromAscend {
		c.commandDepth -= c.maxAngleStep
		c.commandDepth = c.clampDepth(c.commandDepth)
	}
	c.sendCommand(ctx, c.commandDepth)
}

func (c *Instance) stateReturn(ctx context.Context) {
	if c.trajectoryDown {
		next := c.clampDepth(c.commandDepth + c.maxAngleStep)
		if next >= c.currentZ {
			c.commandDepth = c.currentZ
			c.sendCommand(ctx, c.commandDepth)
			c.log.InfoCtx(ctx, "return complete, aligned with trajectory", "depth", c.commandDepth)
		} else {
			c.commandDepth = next
			c.sendCommand(ctx, c.commandDepth)
		}
		return
	}

	c.sendCommand(ctx, c.commandDepth)
	if c.currentZ <= c.commandDepth {
		c.setState(ctx, StateNormal)
	}
}

func (c *Instance) sendCommand(ctx context.Context, z float64) {
	if c.sender == nil {
		return
	}
	if ok := c.sender.SendZCommand(ctx, z); !ok {
		c.log.WarnCtx(ctx, "depth command dispatch failed", "z", z)
	}
	if c.metrics != nil {
		c.metrics.CommandDepth.Set(z)
	}
}

func (c *Instance) clampDepth(depth float64) float64 {
	if depth < c.cfg.MinDepth {
		return c.cfg.MinDepth
	}
	if depth > c.cfg.MaxDepth {
		return c.cfg.MaxDepth
	}
	return depth
}

// advanceTrajectory advances the planned trajectory clock by current_step,
// unless end_z has already been reached. It runs every tick regardless of
// state so that NORMAL resumes where the trajectory would naturally be.
func (c *Instance) advanceTrajectory(background bool) {
	if c.endZReached {
		return
	}

	var endReached bool
	if c.trajectoryDown {
		endReached = c.currentZ >= c.endZ
	} else {
		endReached = c.currentZ <= c.endZ
	}

	if endReached {
		c.currentZ = c.endZ
		c.endZReached = true
		return
	}

	c.currentZ += c.currentStep
}

func (c *Instance) waitFinished() bool {
	if !c.haveStartTime {
		return false
	}
	return c.now().Sub(c.stateStartTime) >= c.cfg.WaitTime
}

func (c *Instance) returnCaughtTrajectory() bool {
	return c.commandDepth >= c.currentZ
}

func (c *Instance) setMetricsState() {
	if c.metrics == nil {
		return
	}
	c.metrics.SetState(States, string(c.state))
}
