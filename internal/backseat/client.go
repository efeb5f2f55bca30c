// Package backseat implements the HTTP client for the mission/autopilot
// ("backseat") server: a short-TTL cached GET of mission/phase status, and a
// POST of commanded depth setpoints with envelope-clamp memory.
package backseat

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"vslope/internal/logging"
	"vslope/internal/telemetry"
)

const cacheTTL = 500 * time.Millisecond

// PhaseInfo is the decoded response of GET /missions/current.
type PhaseInfo struct {
	CurrentPhaseID int    `json:"currentPhaseId"`
	Name           string `json:"name"`
	State          string `json:"state"`
}

// Config configures a Client.
type Config struct {
	BaseURL                 string
	ConnectTimeout          time.Duration
	ReadTimeout             time.Duration
	OverloadCommandDuration time.Duration
	MinDepth                float64
	MaxDepth                float64
}

// Client is the HTTP client used to fetch mission/phase status and to send
// commanded depth setpoints to the backseat server.
type Client struct {
	cfg     Config
	http    *http.Client
	log     logging.Logger
	metrics *telemetry.Metrics

	cacheMu       sync.Mutex
	lastPhaseInfo *PhaseInfo
	lastFetchTime time.Time

	depthMu        sync.Mutex
	lastValidDepth *float64
}

// NewClient constructs a Client. The connect-timeout bounds dial time via a
// dedicated Transport; Go's net/http has no first-class split connect/read
// timeout the way Python's requests (connect_timeout, read_timeout) tuple
// does, so ReadTimeout is applied as the overall http.Client.Timeout, which
// bounds connect+write+read end to end — the closest equivalent available
// without a third-party HTTP client (none appears anywhere in the example
// corpus).
func NewClient(cfg Config, log logging.Logger, metrics *telemetry.Metrics) *Client {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout: cfg.ConnectTimeout,
		}).DialContext,
	}
	return &Client{
		cfg: cfg,
		http: &http.Client{
			Timeout:   cfg.ReadTimeout,
			Transport: transport,
		},
		log:     log,
		metrics: metrics,
	}
}

// CurrentPhaseInfo returns the current mission/phase status, using a
// 500ms-TTL cache. On fetch failure it returns the last cached value (which
// may be nil) and logs at warning level; forceRefresh bypasses the TTL.
func (c *Client) CurrentPhaseInfo(ctx context.Context, forceRefresh bool) *PhaseInfo {
	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()

	if !forceRefresh && c.lastPhaseInfo != nil && time.Since(c.lastFetchTime) < cacheTTL {
		return c.lastPhaseInfo
	}

	info, err := c.fetchPhaseInfo(ctx)
	if err != nil {
		c.log.WarnCtx(ctx, "error fetching current phase info", "error", err)
		if c.metrics != nil {
			c.metrics.BackseatFailures.WithLabelValues("get_current_phase", "transport").Inc()
		}
		return c.lastPhaseInfo
	}

	c.lastPhaseInfo = info
	c.lastFetchTime = time.Now()
	return info
}

func (c *Client) fetchPhaseInfo(ctx context.Context) (*PhaseInfo, error) {
	start := time.Now()
	defer func() {
		if c.metrics != nil {
			c.metrics.BackseatLatency.WithLabelValues("get_current_phase").Observe(time.Since(start).Seconds())
		}
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/missions/current", nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var info PhaseInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &info, nil
}

// CurrentPhaseID returns the phase ID carried by the cached phase info, or
// nil if no phase info is available.
func (c *Client) CurrentPhaseID(ctx context.Context) *int {
	info := c.CurrentPhaseInfo(ctx, false)
	if info == nil {
		return nil
	}
	id := info.CurrentPhaseID
	return &id
}

// CurrentMissionName returns the mission name carried by the cached phase
// info, or "" if no phase info is available.
func (c *Client) CurrentMissionName(ctx context.Context) string {
	info := c.CurrentPhaseInfo(ctx, false)
	if info == nil {
		return ""
	}
	return info.Name
}

// IsPhaseEnabled reports whether the cached phase info's state is exactly
// "Enabled"; any other state, or no phase info at all, is treated as
// disabled.
func (c *Client) IsPhaseEnabled(ctx context.Context) bool {
	info := c.CurrentPhaseInfo(ctx, false)
	if info == nil {
		c.log.WarnCtx(ctx, "could not get phase info from backseat API")
		return false
	}
	return info.State == "Enabled"
}

// SendZCommand posts a depth setpoint to the backseat overload endpoint.
// If z falls outside [MinDepth, MaxDepth], the last in-envelope depth is
// substituted when one exists; otherwise the command is rejected without a
// request being made. An in-envelope z becomes the new last-valid-depth
// before it is sent, whether or not the POST then succeeds.
func (c *Client) SendZCommand(ctx context.Context, z float64) bool {
	c.depthMu.Lock()
	sendZ := z
	if z < c.cfg.MinDepth || z > c.cfg.MaxDepth {
		if c.lastValidDepth != nil {
			c.log.WarnCtx(ctx, "depth out of limits, substituting last valid depth",
				"z", z, "min_depth", c.cfg.MinDepth, "max_depth", c.cfg.MaxDepth, "last_valid_depth", *c.lastValidDepth)
			sendZ = *c.lastValidDepth
		} else {
			c.log.WarnCtx(ctx, "depth out of limits, command rejected (no previous valid depth)",
				"z", z, "min_depth", c.cfg.MinDepth, "max_depth", c.cfg.MaxDepth)
			c.depthMu.Unlock()
			if c.metrics != nil {
				c.metrics.BackseatFailures.WithLabelValues("send_z_command", "out_of_envelope").Inc()
			}
			return false
		}
	} else {
		v := z
		c.lastValidDepth = &v
	}
	c.depthMu.Unlock()

	return c.postZCommand(ctx, sendZ)
}

func (c *Client) postZCommand(ctx context.Context, z float64) bool {
	start := time.Now()
	defer func() {
		if c.metrics != nil {
			c.metrics.BackseatLatency.WithLabelValues("send_z_command").Observe(time.Since(start).Seconds())
		}
	}()

	endpoint := c.cfg.BaseURL + "/missions/current/overload/parameters"
	params := url.Values{}
	params.Set("timeout", strconv.FormatFloat(c.cfg.OverloadCommandDuration.Seconds(), 'f', -1, 64))
	params.Set("zCmd", "Depth")
	params.Set("zSetpoint", strconv.FormatFloat(z, 'f', -1, 64))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint+"?"+params.Encode(), nil)
	if err != nil {
		c.log.ErrorCtx(ctx, "build send_z_command request failed", "error", err)
		return false
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.ErrorCtx(ctx, "send_z_command request failed", "z", z, "error", err)
		if c.metrics != nil {
			c.metrics.BackseatFailures.WithLabelValues("send_z_command", "transport").Inc()
		}
		return false
	}
	defer resp.Body.Close()

	success := resp.StatusCode == http.StatusOK
	c.log.DebugCtx(ctx, "send_z_command result", "z", z, "status", resp.StatusCode, "success", success)
	if !success && c.metrics != nil {
		c.metrics.BackseatFailures.WithLabelValues("send_z_command", "http_status").Inc()
	}
	return success
}
