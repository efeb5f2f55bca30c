package phasemanager_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vslope/internal/logging"
	"vslope/internal/missionplan"
	"vslope/internal/navigation"
	"vslope/internal/phasemanager"
)

type fakeBackseat struct {
	phaseID     *int
	missionName string
	enabled     bool
}

func (f *fakeBackseat) CurrentPhaseID(ctx context.Context) *int    { return f.phaseID }
func (f *fakeBackseat) CurrentMissionName(ctx context.Context) string { return f.missionName }
func (f *fakeBackseat) IsPhaseEnabled(ctx context.Context) bool    { return f.enabled }

type fakeNav struct{ frame *navigation.Frame }

func (f *fakeNav) Get() *navigation.Frame { return f.frame }

type fakePlans struct{ plan *missionplan.MissionPlan }

func (f *fakePlans) Get(ctx context.Context, missionName string, useCache bool) *missionplan.MissionPlan {
	return f.plan
}

func intPtr(v int) *int { return &v }
func f64(v float64) *float64 { return &v }

func testTolerances() phasemanager.Tolerances {
	return phasemanager.Tolerances{
		LineStartLatLonMeters:     50,
		LineStartDepthMeters:      1,
		LineStartHeadingDegrees:   20,
		SubphaseCoordinatesMeters: 10,
	}
}

func twoSubphasePlan() *missionplan.MissionPlan {
	return &missionplan.MissionPlan{
		Phases: map[int]missionplan.PhasePlan{
			1: {
				Subphases: map[string]missionplan.SubphasePlan{
					"1-1": {StartLat: 10, StartLon: 20, StartZ: 5, EndLat: 10.001, EndLon: 20, EndZ: 10, Speed: 1},
					"1-2": {StartLat: 10.001, StartLon: 20, StartZ: 10, EndLat: 10.002, EndLon: 20, EndZ: 15, Speed: 1},
				},
			},
		},
	}
}

func TestMissionChangeLoadsPlanAndArmsLineStart(t *testing.T) {
	ctx := context.Background()
	backseat := &fakeBackseat{missionName: "dive-1", phaseID: intPtr(1), enabled: true}
	plans := &fakePlans{plan: twoSubphasePlan()}
	nav := &fakeNav{}
	mgr := phasemanager.New(backseat, nav, plans, testTolerances(), logging.New(nil))

	result := mgr.Update(ctx)
	assert.Nil(t, result)

	nav.frame = &navigation.Frame{Latitude: f64(10.0), Longitude: f64(20.0), Depth: f64(5.0)}
	armed := mgr.Update(ctx)
	require.NotNil(t, armed, "the loaded plan's first subphase should be armed for line start")
	assert.Equal(t, "1-1", armed.ID)
}

func TestNoConnectionClearsWaitingState(t *testing.T) {
	ctx := context.Background()
	backseat := &fakeBackseat{missionName: "dive-1", phaseID: nil}
	plans := &fakePlans{plan: twoSubphasePlan()}
	nav := &fakeNav{}
	mgr := phasemanager.New(backseat, nav, plans, testTolerances(), logging.New(nil))

	result := mgr.Update(ctx)
	assert.Nil(t, result)
}

func TestLineStartDetectedStartsFirstSubphase(t *testing.T) {
	ctx := context.Background()
	backseat := &fakeBackseat{missionName: "dive-1", phaseID: intPtr(1), enabled: true}
	plans := &fakePlans{plan: twoSubphasePlan()}
	nav := &fakeNav{}
	mgr := phasemanager.New(backseat, nav, plans, testTolerances(), logging.New(nil))

	require.Nil(t, mgr.Update(ctx))

	nav.frame = &navigation.Frame{Latitude: f64(10.0), Longitude: f64(20.0), Depth: f64(5.0), Heading: f64(0)}
	result := mgr.Update(ctx)
	require.NotNil(t, result)
	assert.Equal(t, "1-1", result.ID)
}

func TestSubphaseEndAdvancesToNextSubphase(t *testing.T) {
	ctx := context.Background()
	backseat := &fakeBackseat{missionName: "dive-1", phaseID: intPtr(1), enabled: true}
	plans := &fakePlans{plan: twoSubphasePlan()}
	nav := &fakeNav{}
	mgr := phasemanager.New(backseat, nav, plans, testTolerances(), logging.New(nil))

	require.Nil(t, mgr.Update(ctx))
	nav.frame = &navigation.Frame{Latitude: f64(10.0), Longitude: f64(20.0), Depth: f64(5.0)}
	first := mgr.Update(ctx)
	require.NotNil(t, first)
	require.Equal(t, "1-1", first.ID)
	mgr.SetControllerLive(true)

	nav.frame = &navigation.Frame{Latitude: f64(10.001), Longitude: f64(20.0), Depth: f64(10.0)}
	next := mgr.Update(ctx)
	require.NotNil(t, next)
	assert.Equal(t, "1-2", next.ID)
}

func TestLastSubphaseEndDoesNotStopController(t *testing.T) {
	ctx := context.Background()
	backseat := &fakeBackseat{missionName: "dive-1", phaseID: intPtr(1), enabled: true}
	plans := &fakePlans{plan: twoSubphasePlan()}
	nav := &fakeNav{}
	mgr := phasemanager.New(backseat, nav, plans, testTolerances(), logging.New(nil))

	require.Nil(t, mgr.Update(ctx))
	nav.frame = &navigation.Frame{Latitude: f64(10.0), Longitude: f64(20.0), Depth: f64(5.0)}
	require.NotNil(t, mgr.Update(ctx))
	mgr.SetControllerLive(true)

	nav.frame = &navigation.Frame{Latitude: f64(10.001), Longitude: f64(20.0), Depth: f64(10.0)}
	require.NotNil(t, mgr.Update(ctx)) // advances to 1-2
	mgr.SetControllerLive(true)

	nav.frame = &navigation.Frame{Latitude: f64(10.002), Longitude: f64(20.0), Depth: f64(15.0)}
	last := mgr.Update(ctx)
	assert.Nil(t, last, "reaching the last subphase's end must not request a new subphase")
	assert.True(t, mgr.ControllerLive(), "controller must keep running past the last subphase's end")
}

func TestPhaseDisabledStopsController(t *testing.T) {
	ctx := context.Background()
	backseat := &fakeBackseat{missionName: "dive-1", phaseID: intPtr(1), enabled: true}
	plans := &fakePlans{plan: twoSubphasePlan()}
	nav := &fakeNav{}
	mgr := phasemanager.New(backseat, nav, plans, testTolerances(), logging.New(nil))

	require.Nil(t, mgr.Update(ctx))
	nav.frame = &navigation.Frame{Latitude: f64(10.0), Longitude: f64(20.0), Depth: f64(5.0)}
	require.NotNil(t, mgr.Update(ctx))
	mgr.SetControllerLive(true)

	backseat.enabled = false
	mgr.Update(ctx)
	assert.False(t, mgr.ControllerLive())
}

func TestMissionChangeResetsLastStep(t *testing.T) {
	ctx := context.Background()
	backseat := &fakeBackseat{missionName: "dive-1", phaseID: intPtr(1), enabled: true}
	plans := &fakePlans{plan: twoSubphasePlan()}
	nav := &fakeNav{}
	mgr := phasemanager.New(backseat, nav, plans, testTolerances(), logging.New(nil))
	mgr.SetLastStep(0.45)

	backseat.missionName = "dive-2"
	mgr.Update(ctx)
	assert.Equal(t, 0.0, mgr.LastStep())
}
