// Package missionplan loads and caches per-mission depth-controller plans
// from YAML files on disk.
package missionplan

// SubphasePlan is an immutable waypoint-to-waypoint leg. StartZ and EndZ are
// depths, positive down.
type SubphasePlan struct {
	StartLat float64 `yaml:"START_LAT"`
	StartLon float64 `yaml:"START_LON"`
	StartZ   float64 `yaml:"START_Z"`
	EndLat   float64 `yaml:"END_LAT"`
	EndLon   float64 `yaml:"END_LON"`
	EndZ     float64 `yaml:"END_Z"`
	Speed    float64 `yaml:"SPEED"`
}

// PhasePlan is an ordered set of subphases keyed by a "<major>-<minor>" id.
type PhasePlan struct {
	Subphases map[string]SubphasePlan
}

// MissionPlan maps phase id to PhasePlan for one mission.
type MissionPlan struct {
	Phases map[int]PhasePlan
}

// rawMissionFile mirrors the on-disk YAML shape:
//
//	VS_params:
//	  <phaseId>:
//	    "<major>-<minor>": { START_LAT: ..., ... }
type rawMissionFile struct {
	VSParams map[int]map[string]SubphasePlan `yaml:"VS_params"`
}
