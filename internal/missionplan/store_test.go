package missionplan_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vslope/internal/logging"
	"vslope/internal/missionplan"
)

const sampleYAML = `
VS_params:
  1:
    "1-1":
      START_LAT: 10.0
      START_LON: 20.0
      START_Z: 5.0
      END_LAT: 10.1
      END_LON: 20.1
      END_Z: 6.0
      SPEED: 0.5
    "1-2":
      START_LAT: 10.1
      START_LON: 20.1
      START_Z: 6.0
      END_LAT: 10.2
      END_LON: 20.2
      END_Z: 7.0
      SPEED: 0.5
`

func writeMissionFile(t *testing.T, dir, mission string) {
	t.Helper()
	path := filepath.Join(dir, "WBMS-VS_params_v1_"+mission+".yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o644))
}

func TestGetLoadsAndParsesPlan(t *testing.T) {
	dir := t.TempDir()
	writeMissionFile(t, dir, "dive-1")

	store := missionplan.NewStore(dir, logging.New(nil))
	plan := store.Get(context.Background(), "dive-1", true)
	require.NotNil(t, plan)
	require.Contains(t, plan.Phases, 1)
	assert.Len(t, plan.Phases[1].Subphases, 2)
	assert.InDelta(t, 10.0, plan.Phases[1].Subphases["1-1"].StartLat, 1e-9)
}

func TestGetReturnsEmptyPlanWhenNoFileMatches(t *testing.T) {
	dir := t.TempDir()
	store := missionplan.NewStore(dir, logging.New(nil))
	plan := store.Get(context.Background(), "missing", true)
	require.NotNil(t, plan)
	assert.Empty(t, plan.Phases)
}

func TestGetReturnsEmptyPlanWhenMultipleFilesMatch(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "WBMS-VS_params_v1_dive-1.yaml"), []byte(sampleYAML), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "WBMS-VS_params_v2_dive-1.yaml"), []byte(sampleYAML), 0o644))

	store := missionplan.NewStore(dir, logging.New(nil))
	plan := store.Get(context.Background(), "dive-1", true)
	assert.Empty(t, plan.Phases)
}

func TestGetCachesByMissionName(t *testing.T) {
	dir := t.TempDir()
	writeMissionFile(t, dir, "dive-1")
	store := missionplan.NewStore(dir, logging.New(nil))
	ctx := context.Background()

	first := store.Get(ctx, "dive-1", true)
	require.NotEmpty(t, first.Phases)

	require.NoError(t, os.Remove(filepath.Join(dir, "WBMS-VS_params_v1_dive-1.yaml")))

	cached := store.Get(ctx, "dive-1", true)
	assert.NotEmpty(t, cached.Phases, "cached value should still be returned even though the file is gone")

	reloaded := store.Get(ctx, "dive-1", false)
	assert.Empty(t, reloaded.Phases, "use_cache=false must force a reload from disk")
}

func TestSortedSubphaseIDsOrdersLexicographically(t *testing.T) {
	phase := missionplan.PhasePlan{
		Subphases: map[string]missionplan.SubphasePlan{
			"2-1":  {},
			"1-10": {},
			"1-2":  {},
			"10-1": {},
		},
	}
	ids := missionplan.SortedSubphaseIDs(context.Background(), logging.New(nil), phase)
	assert.Equal(t, []string{"1-2", "1-10", "2-1", "10-1"}, ids)
}

func TestSortedSubphaseIDsIllFormedSortsFirst(t *testing.T) {
	phase := missionplan.PhasePlan{
		Subphases: map[string]missionplan.SubphasePlan{
			"1-1":      {},
			"garbage":  {},
			"0-1":      {},
		},
	}
	ids := missionplan.SortedSubphaseIDs(context.Background(), logging.New(nil), phase)
	assert.Equal(t, "garbage", ids[0])
}
