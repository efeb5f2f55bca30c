package missionplan

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"vslope/internal/logging"
)

// Store resolves, parses, and caches MissionPlans by mission name.
type Store struct {
	paramsDirectory string
	log             logging.Logger

	mu    sync.Mutex
	cache map[string]*MissionPlan
}

// NewStore constructs a Store rooted at paramsDirectory, the directory
// searched for "WBMS-VS_params_*_<mission_name>.yaml" files.
func NewStore(paramsDirectory string, log logging.Logger) *Store {
	return &Store{
		paramsDirectory: paramsDirectory,
		log:             log,
		cache:           make(map[string]*MissionPlan),
	}
}

// InvalidateAll clears every cached plan, forcing the next Get call for each
// mission to reload from disk. Called when the params directory changes on
// disk (see WatchParamsDirectory).
func (s *Store) InvalidateAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = make(map[string]*MissionPlan)
}

// Get returns the MissionPlan for missionName, loading and caching it on
// first use. useCache=false forces a reload from disk.
func (s *Store) Get(ctx context.Context, missionName string, useCache bool) *MissionPlan {
	s.mu.Lock()
	defer s.mu.Unlock()

	if useCache {
		if plan, ok := s.cache[missionName]; ok {
			return plan
		}
	}

	plan := s.load(ctx, missionName)
	s.cache[missionName] = plan
	return plan
}

func (s *Store) load(ctx context.Context, missionName string) *MissionPlan {
	pattern := filepath.Join(s.paramsDirectory, fmt.Sprintf("WBMS-VS_params_*_%s.yaml", missionName))
	matches, err := filepath.Glob(pattern)
	if err != nil {
		s.log.ErrorCtx(ctx, "mission plan glob failed", "pattern", pattern, "error", err)
		return &MissionPlan{Phases: map[int]PhasePlan{}}
	}

	switch len(matches) {
	case 0:
		s.log.WarnCtx(ctx, "no mission plan file found", "mission", missionName, "pattern", pattern)
		return &MissionPlan{Phases: map[int]PhasePlan{}}
	case 1:
		// fall through
	default:
		s.log.WarnCtx(ctx, "multiple mission plan files matched, refusing to choose",
			"mission", missionName, "matches", matches)
		return &MissionPlan{Phases: map[int]PhasePlan{}}
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		s.log.ErrorCtx(ctx, "reading mission plan file failed", "path", matches[0], "error", err)
		return &MissionPlan{Phases: map[int]PhasePlan{}}
	}

	var raw rawMissionFile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		s.log.ErrorCtx(ctx, "parsing mission plan YAML failed", "path", matches[0], "error", err)
		return &MissionPlan{Phases: map[int]PhasePlan{}}
	}

	phases := make(map[int]PhasePlan, len(raw.VSParams))
	for phaseID, subphases := range raw.VSParams {
		phases[phaseID] = PhasePlan{Subphases: subphases}
	}
	return &MissionPlan{Phases: phases}
}

// subphaseSortKey parses a "<major>-<minor>" id into its integer pair.
// Ill-formed ids sort as (0, 0) and are logged.
func subphaseSortKey(ctx context.Context, log logging.Logger, id string) (int, int) {
	parts := strings.SplitN(id, "-", 2)
	if len(parts) != 2 {
		log.WarnCtx(ctx, "ill-formed subphase id, sorting as (0,0)", "id", id)
		return 0, 0
	}
	major, err1 := strconv.Atoi(strings.TrimSpace(parts[0]))
	minor, err2 := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err1 != nil || err2 != nil {
		log.WarnCtx(ctx, "ill-formed subphase id, sorting as (0,0)", "id", id)
		return 0, 0
	}
	return major, minor
}

// SortedSubphaseIDs returns the phase's subphase ids in strict lexicographic
// order of their (major, minor) integer pair.
func SortedSubphaseIDs(ctx context.Context, log logging.Logger, phase PhasePlan) []string {
	ids := make([]string, 0, len(phase.Subphases))
	keys := make(map[string][2]int, len(phase.Subphases))
	for id := range phase.Subphases {
		ids = append(ids, id)
		major, minor := subphaseSortKey(ctx, log, id)
		keys[id] = [2]int{major, minor}
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := keys[ids[i]], keys[ids[j]]
		if a[0] != b[0] {
			return a[0] < b[0]
		}
		return a[1] < b[1]
	})
	return ids
}
