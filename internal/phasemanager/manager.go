// Package phasemanager sequences mission phases and their ordered
// subphases, watching the backseat server and live navigation to decide
// when the depth controller should start, hand off, or stop.
package phasemanager

import (
	"context"
	"sync"
	"time"

	"vslope/internal/geo"
	"vslope/internal/logging"
	"vslope/internal/missionplan"
	"vslope/internal/navigation"
)

// WaitingState tracks what the manager is currently arming for.
type WaitingState int

const (
	WaitingNone WaitingState = iota
	WaitingLineStart
	WaitingSubphase
)

// PhaseSource is the subset of the backseat client the manager depends on.
type PhaseSource interface {
	CurrentPhaseID(ctx context.Context) *int
	CurrentMissionName(ctx context.Context) string
	IsPhaseEnabled(ctx context.Context) bool
}

// NavSource is the subset of the navigation store the manager depends on.
type NavSource interface {
	Get() *navigation.Frame
}

// PlanSource is the subset of the mission plan store the manager depends on.
type PlanSource interface {
	Get(ctx context.Context, missionName string, useCache bool) *missionplan.MissionPlan
}

// Tolerances configures the geometric predicates that arm subphase starts.
type Tolerances struct {
	LineStartLatLonMeters     float64
	LineStartDepthMeters      float64
	LineStartHeadingDegrees   float64
	SubphaseCoordinatesMeters float64
}

// Subphase is a ready-to-start leg handed back to the caller (the VS Loop
// driver), which is responsible for instantiating and running a controller.
type Subphase struct {
	ID   string
	Plan missionplan.SubphasePlan
}

// Manager is the PhaseManager: mission/phase/subphase lifecycle tracking.
type Manager struct {
	backseat PhaseSource
	nav      NavSource
	plans    PlanSource
	tol      Tolerances
	log      logging.Logger

	currentMissionName string
	phases              map[int]missionplan.PhasePlan

	lastPhaseID    *int
	currentPhaseID *int

	currentSubphaseID    string
	subphaseList         []string
	currentSubphaseIndex int

	waitingState WaitingState

	// mu guards lastStep and live, which are written by the VS Loop driver
	// goroutine (both on self-termination and via the orchestrator) and read
	// by the orchestrator goroutine's Update/ControllerLive calls.
	mu sync.Mutex

	// lastStep is the step of the departing controller, carried across
	// subphase/phase handoffs so the next controller's transition smoothing
	// starts from where the previous one left off. The VS Loop driver
	// publishes the new controller's nominal step here right after starting
	// it, and the controller's current step via defer on every exit path.
	lastStep float64

	// live reports whether a controller task is currently running; the
	// driver must keep this in sync via SetControllerLive.
	live bool

	now            func() time.Time
	lastNavWarning time.Time
}

// New constructs a Manager.
func New(backseat PhaseSource, nav NavSource, plans PlanSource, tol Tolerances, log logging.Logger) *Manager {
	return &Manager{
		backseat:             backseat,
		nav:                  nav,
		plans:                plans,
		tol:                  tol,
		log:                  log,
		currentSubphaseIndex: -1,
		phases:               map[int]missionplan.PhasePlan{},
		now:                  time.Now,
	}
}

// SetControllerLive records whether a controller task is currently running.
// The VS Loop driver calls this when it starts and stops a controller, from
// either the orchestrator goroutine or the loop's own self-termination path,
// so access is mutex-guarded.
func (m *Manager) SetControllerLive(live bool) {
	m.mu.Lock()
	m.live = live
	m.mu.Unlock()
}

// ControllerLive reports the last value recorded via SetControllerLive.
func (m *Manager) ControllerLive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.live
}

// LastStep returns the step of the departing controller. Safe to call
// concurrently with SetLastStep.
func (m *Manager) LastStep() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastStep
}

// SetLastStep records the live controller's current step so the next
// subphase's transition smoothing starts from where this one left off.
func (m *Manager) SetLastStep(step float64) {
	m.mu.Lock()
	m.lastStep = step
	m.mu.Unlock()
}

// Update runs one manager tick. It returns a non-nil Subphase when a
// controller should be (re)started for it.
func (m *Manager) Update(ctx context.Context) *Subphase {
	m.checkMissionChange(ctx)

	m.currentPhaseID = m.backseat.CurrentPhaseID(ctx)
	if m.currentPhaseID == nil {
		m.handleNoConnection(ctx)
		return nil
	}

	if reason := m.checkShouldStop(ctx); reason != "" {
		m.stop(ctx, reason)
	}

	if m.ControllerLive() && m.currentSubphaseID != "" {
		if next := m.checkSubphaseEndReached(ctx); next != nil {
			m.stop(ctx, "subphase transition")
			return next
		}
	}

	if m.lastPhaseID == nil || *m.currentPhaseID != *m.lastPhaseID {
		m.handlePhaseChange(ctx)
	}

	if m.waitingState != WaitingNone {
		return m.checkStartConditions(ctx)
	}
	return nil
}

// stop marks the controller no longer live. The driver owns actually
// cancelling the running task; this only updates bookkeeping the manager is
// responsible for, matching the Python stop_vs()'s state-clearing half.
func (m *Manager) stop(ctx context.Context, reason string) {
	if !m.ControllerLive() {
		return
	}
	m.log.InfoCtx(ctx, "stopping virtual slope controller", "reason", reason)
	m.SetControllerLive(false)
}

func (m *Manager) checkMissionChange(ctx context.Context) {
	newMission := m.backseat.CurrentMissionName(ctx)
	if newMission == m.currentMissionName {
		return
	}

	m.log.InfoCtx(ctx, "mission changed", "from", m.currentMissionName, "to", newMission)
	m.stop(ctx, "mission change")

	m.currentMissionName = newMission
	m.waitingState = WaitingNone
	m.currentSubphaseID = ""
	m.currentSubphaseIndex = -1
	m.subphaseList = nil
	m.SetLastStep(0.0)

	if newMission == "" {
		m.log.InfoCtx(ctx, "no mission active, virtual slope operations suspended")
		m.phases = map[int]missionplan.PhasePlan{}
		return
	}

	plan := m.plans.Get(ctx, newMission, false)
	m.phases = plan.Phases
	if len(m.phases) > 0 {
		m.log.InfoCtx(ctx, "virtual slope phases loaded for mission", "mission", newMission, "phase_count", len(m.phases))
	}
}

func (m *Manager) handleNoConnection(ctx context.Context) {
	if m.lastPhaseID != nil {
		m.log.WarnCtx(ctx, "lost connection to backseat server")
		m.lastPhaseID = nil
	}
	m.waitingState = WaitingNone
}

func (m *Manager) checkShouldStop(ctx context.Context) string {
	if !m.ControllerLive() {
		return ""
	}
	if m.lastPhaseID == nil || *m.currentPhaseID != *m.lastPhaseID {
		return "phase changed"
	}
	if !m.backseat.IsPhaseEnabled(ctx) {
		return "phase disabled"
	}
	return ""
}

func (m *Manager) checkSubphaseEndReached(ctx context.Context) *Subphase {
	phase, ok := m.phases[*m.currentPhaseID]
	if !ok {
		return nil
	}
	subphase, ok := phase.Subphases[m.currentSubphaseID]
	if !ok {
		return nil
	}

	frame := m.getNavigationWithLogging(ctx)
	if frame == nil {
		return nil
	}

	if !pointReached(subphase.EndLat, subphase.EndLon, frame, m.tol.SubphaseCoordinatesMeters) {
		return nil
	}
	m.log.InfoCtx(ctx, "subphase reached end coordinates", "subphase", m.currentSubphaseID)

	m.currentSubphaseIndex++
	if m.currentSubphaseIndex >= len(m.subphaseList) {
		m.log.InfoCtx(ctx, "last subphase reached end, continuing until phase changes", "subphase", m.currentSubphaseID)
		return nil
	}

	nextID := m.subphaseList[m.currentSubphaseIndex]
	nextPlan, ok := phase.Subphases[nextID]
	if !ok {
		return nil
	}
	m.log.InfoCtx(ctx, "transitioning to next subphase", "next", nextID)
	m.currentSubphaseID = nextID
	m.waitingState = WaitingNone
	return &Subphase{ID: nextID, Plan: nextPlan}
}

func (m *Manager) handlePhaseChange(ctx context.Context) {
	m.log.InfoCtx(ctx, "phase changed", "from", optionalInt(m.lastPhaseID), "to", *m.currentPhaseID)

	m.currentSubphaseID = ""
	m.currentSubphaseIndex = -1
	m.subphaseList = nil
	m.waitingState = WaitingNone
	m.SetLastStep(0.0)

	phase, ok := m.phases[*m.currentPhaseID]
	if !ok {
		m.log.InfoCtx(ctx, "phase not found in mission plan, skipping", "phase", *m.currentPhaseID)
		m.lastPhaseID = m.currentPhaseID
		return
	}

	if !m.backseat.IsPhaseEnabled(ctx) {
		m.log.InfoCtx(ctx, "phase is disabled, skipping virtual slope", "phase", *m.currentPhaseID)
		m.lastPhaseID = m.currentPhaseID
		return
	}

	m.subphaseList = missionplan.SortedSubphaseIDs(ctx, m.log, phase)
	if len(m.subphaseList) == 0 {
		m.log.ErrorCtx(ctx, "phase has no subphases", "phase", *m.currentPhaseID)
		m.lastPhaseID = m.currentPhaseID
		return
	}

	m.log.InfoCtx(ctx, "phase activated", "phase", *m.currentPhaseID, "subphases", m.subphaseList)
	m.waitingState = WaitingLineStart
	m.lastPhaseID = m.currentPhaseID
}

func (m *Manager) checkStartConditions(ctx context.Context) *Subphase {
	frame := m.getNavigationWithLogging(ctx)
	if frame == nil {
		return nil
	}

	phase, ok := m.phases[*m.currentPhaseID]
	if !ok {
		m.log.WarnCtx(ctx, "current phase not in mission plan during start check", "phase", *m.currentPhaseID)
		m.waitingState = WaitingNone
		return nil
	}

	switch m.waitingState {
	case WaitingLineStart:
		if len(m.subphaseList) == 0 {
			return nil
		}
		firstID := m.subphaseList[0]
		subphase, ok := phase.Subphases[firstID]
		if !ok {
			m.log.ErrorCtx(ctx, "first subphase not found in phase plan", "subphase", firstID)
			m.waitingState = WaitingNone
			return nil
		}
		if lineStartSatisfied(ctx, m.log, firstID, subphase, frame, m.tol) {
			m.log.InfoCtx(ctx, "line start detected", "subphase", firstID)
			m.currentSubphaseID = firstID
			m.currentSubphaseIndex = 0
			m.waitingState = WaitingNone
			return &Subphase{ID: firstID, Plan: subphase}
		}

	case WaitingSubphase:
		if m.currentSubphaseIndex >= len(m.subphaseList) {
			m.log.WarnCtx(ctx, "subphase index out of range", "index", m.currentSubphaseIndex, "count", len(m.subphaseList))
			m.waitingState = WaitingNone
			return nil
		}
		nextID := m.subphaseList[m.currentSubphaseIndex]
		subphase, ok := phase.Subphases[nextID]
		if !ok {
			m.log.ErrorCtx(ctx, "next subphase not found in phase plan", "subphase", nextID)
			m.waitingState = WaitingNone
			return nil
		}
		if pointReached(subphase.StartLat, subphase.StartLon, frame, m.tol.SubphaseCoordinatesMeters) {
			m.log.InfoCtx(ctx, "subphase start coordinates reached", "subphase", nextID)
			m.currentSubphaseID = nextID
			m.waitingState = WaitingNone
			return &Subphase{ID: nextID, Plan: subphase}
		}
	}

	return nil
}

func (m *Manager) getNavigationWithLogging(ctx context.Context) *navigation.Frame {
	frame := m.nav.Get()
	if frame == nil {
		if m.lastNavWarning.IsZero() || m.now().Sub(m.lastNavWarning) > 30*time.Second {
			m.log.WarnCtx(ctx, "no navigation data, operations paused", "waiting_state", m.waitingState)
			m.lastNavWarning = m.now()
		}
	}
	return frame
}

func optionalInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

// pointReached reports whether frame's position is within toleranceMeters
// of (targetLat, targetLon).
func pointReached(targetLat, targetLon float64, frame *navigation.Frame, toleranceMeters float64) bool {
	if frame.Latitude == nil || frame.Longitude == nil {
		return false
	}
	d := geo.DistanceMeters(*frame.Latitude, *frame.Longitude, targetLat, targetLon)
	return d <= toleranceMeters
}

// lineStartSatisfied evaluates the three line-start predicates: horizontal
// distance, depth, and (if heading is present) heading alignment with the
// leg's initial bearing.
func lineStartSatisfied(ctx context.Context, log logging.Logger, id string, subphase missionplan.SubphasePlan, frame *navigation.Frame, tol Tolerances) bool {
	if frame.Latitude == nil || frame.Longitude == nil || frame.Depth == nil {
		log.DebugCtx(ctx, "line start: incomplete navigation data", "subphase", id)
		return false
	}

	distance := geo.DistanceMeters(*frame.Latitude, *frame.Longitude, subphase.StartLat, subphase.StartLon)
	if distance > tol.LineStartLatLonMeters {
		return false
	}

	depthDiff := abs(*frame.Depth - subphase.StartZ)
	if depthDiff > tol.LineStartDepthMeters {
		return false
	}

	if frame.Heading != nil {
		targetHeading := geo.InitialBearingDeg(subphase.StartLat, subphase.StartLon, subphase.EndLat, subphase.EndLon)
		headingDiff := geo.HeadingDiffDeg(*frame.Heading, targetHeading)
		if headingDiff > tol.LineStartHeadingDegrees {
			return false
		}
	}

	return true
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
