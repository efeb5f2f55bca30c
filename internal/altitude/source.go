// Package altitude selects between the real sensor-derived altitude and a
// simulated, file-backed bottom-depth source used for bench testing safety
// behavior without a live seafloor.
package altitude

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"vslope/internal/logging"
	"vslope/internal/navigation"
)

// ErrUnavailable is returned by a Source when altitude cannot be derived at
// all — e.g. test mode with no navigation fix yet. Distinct from "absent"
// (nil, nil), which the controller treats as a forced-NORMAL tick.
var ErrUnavailable = errors.New("altitude source unavailable")

// Source derives the current altitude from a navigation snapshot.
type Source interface {
	Altitude(ctx context.Context, frame *navigation.Frame) (*float64, error)
}

// RealSource reads NavigationFrame.Altitude directly.
type RealSource struct{}

func (RealSource) Altitude(ctx context.Context, frame *navigation.Frame) (*float64, error) {
	if frame == nil {
		return nil, nil
	}
	return frame.Altitude, nil
}

const defaultBottomDepth = 20.0

// TestSource simulates altitude as bottom_depth - nav.depth, where
// bottom_depth is read from a small file so an operator can adjust the
// simulated seafloor at runtime.
type TestSource struct {
	depthFile string
	log       logging.Logger

	mu sync.Mutex
}

// NewTestSource creates a TestSource backed by depthFile, seeding it with
// initialBottomDepth.
func NewTestSource(depthFile string, initialBottomDepth float64, log logging.Logger) (*TestSource, error) {
	s := &TestSource{depthFile: depthFile, log: log}
	if err := s.SetBottomDepth(initialBottomDepth); err != nil {
		return nil, fmt.Errorf("seed bottom depth file: %w", err)
	}
	return s, nil
}

// SetBottomDepth overwrites the simulated seafloor depth.
func (s *TestSource) SetBottomDepth(value float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return os.WriteFile(s.depthFile, []byte(strconv.FormatFloat(value, 'f', -1, 64)), 0o644)
}

// BottomDepth reads the current simulated seafloor depth, defaulting to
// defaultBottomDepth if the file is missing or unparsable.
func (s *TestSource) BottomDepth() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.depthFile)
	if err != nil {
		return defaultBottomDepth
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(string(data)), 64)
	if err != nil {
		return defaultBottomDepth
	}
	return v
}

// Altitude computes bottom_depth - nav.depth. It returns ErrUnavailable
// (fatal to the caller's controller task) when no navigation frame or depth
// reading exists yet — there is no sensible simulated altitude without one.
func (s *TestSource) Altitude(ctx context.Context, frame *navigation.Frame) (*float64, error) {
	if frame == nil {
		s.log.WarnCtx(ctx, "test mode: navigation data unavailable, cannot simulate altitude")
		return nil, fmt.Errorf("%w: no navigation frame", ErrUnavailable)
	}
	if frame.Depth == nil {
		s.log.WarnCtx(ctx, "test mode: depth unavailable, cannot simulate altitude")
		return nil, fmt.Errorf("%w: no depth reading", ErrUnavailable)
	}

	bottom := s.BottomDepth()
	simulated := bottom - *frame.Depth
	return &simulated, nil
}

// Cleanup removes the backing depth file, matching the original test
// harness's teardown.
func (s *TestSource) Cleanup() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := os.Remove(s.depthFile)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
