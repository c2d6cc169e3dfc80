// Package poller drives presence updates from the embedded surface's
// displayed location. One long-lived loop samples the path every tick,
// classifies it, fetches game state through the bridge, and pushes the
// rendered status to the presence session.
package poller

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ekvall/kartklickare/history"
	"github.com/ekvall/kartklickare/logger"
	"github.com/ekvall/kartklickare/presence"
	"github.com/ekvall/kartklickare/route"
)

// PathSource samples the embedded surface's displayed location.
type PathSource interface {
	CurrentPath() (string, error)
}

// Requester issues a credentialed fetch through the embedded surface.
type Requester interface {
	SendRequest(ctx context.Context, url string, extra map[string]string) (map[string]any, error)
}

// Recorder persists presence updates. Optional; a nil Recorder disables
// history.
type Recorder interface {
	Record(ctx context.Context, entry history.Entry) error
}

// Endpoints are the upstream APIs fetched through the surface.
type Endpoints struct {
	LiveAPI    string
	OfflineAPI string
	PlayerAPI  string
	MapAPI     string
}

// Config tunes the polling loop.
type Config struct {
	Interval        time.Duration
	DebounceRetries int
	Endpoints       Endpoints
}

// Status is a point-in-time snapshot of what the poller last observed
// and pushed, read by the status server.
type Status struct {
	PlayerName     string    `json:"player_name"`
	PlayerID       string    `json:"player_id"`
	Path           string    `json:"path"`
	Classification string    `json:"classification"`
	Details        string    `json:"details"`
	State          string    `json:"state"`
	UpdatedAt      time.Time `json:"updated_at"`
	StartedAt      time.Time `json:"started_at"`
}

// Poller owns the page-state loop. Collaborators are injected so tests
// can simulate ticks without a browser or a presence socket.
type Poller struct {
	source    PathSource
	requester Requester
	session   *presence.Session
	table     *route.Table
	recorder  Recorder
	cfg       Config

	sleep func(context.Context, time.Duration)

	mu       sync.Mutex
	status   Status
	lastPath string
}

func New(source PathSource, requester Requester, session *presence.Session, table *route.Table, recorder Recorder, cfg Config) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.DebounceRetries < 0 {
		cfg.DebounceRetries = 0
	}
	return &Poller{
		source:    source,
		requester: requester,
		session:   session,
		table:     table,
		recorder:  recorder,
		cfg:       cfg,
		sleep:     ctxSleep,
	}
}

// Run performs the startup phase, then polls until ctx is cancelled.
// Startup failures are returned; per-tick failures are logged and the
// loop continues.
func (p *Poller) Run(ctx context.Context) error {
	if err := p.startup(ctx); err != nil {
		return err
	}

	if path, err := p.source.CurrentPath(); err == nil {
		p.lastPath = path
	}

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		p.tick(ctx)
		p.sleep(ctx, p.cfg.Interval)
	}
}

// startup fetches the signed-in player's identity, connects the
// presence session, and publishes the initial status.
func (p *Poller) startup(ctx context.Context) error {
	payload, err := p.requester.SendRequest(ctx, p.cfg.Endpoints.PlayerAPI, nil)
	if err != nil {
		return fmt.Errorf("fetch player identity: %w", err)
	}

	name, okName := stringAt(payload, "user", "nick")
	id, okID := stringAt(payload, "user", "id")
	if !okName || !okID {
		return fmt.Errorf("player identity payload missing user fields")
	}
	p.session.SetPlayer(name, id)
	logger.Info("signed-in player detected", "player", name, "id", id)

	if err := p.session.Connect(); err != nil {
		return fmt.Errorf("connect presence session: %w", err)
	}

	p.mu.Lock()
	p.status.PlayerName = name
	p.status.PlayerID = id
	p.status.StartedAt = time.Now()
	p.mu.Unlock()

	if err := p.session.SetActivity("GeoGuessr", "laddar..."); err != nil {
		logger.Warn("initial presence update failed", "error", err)
	}
	return nil
}

// tick runs one poll iteration: sample, classify, debounce, dispatch.
func (p *Poller) tick(ctx context.Context) {
	current, err := p.source.CurrentPath()
	if err != nil {
		logger.Warn("failed to sample surface path", "error", err)
		return
	}

	c := p.table.Classify(current)

	// Entering a game, the displayed path lags the real navigation. If a
	// game route hasn't changed since last tick, watch for the change
	// instead of refetching immediately.
	if (c.Kind == route.KindLive || c.Kind == route.KindOffline) && current == p.lastPath {
		if changed, ok := p.debounce(ctx, current); ok {
			logger.Debug("path changed during debounce", "from", current, "to", changed)
			return
		}
	}

	if current != p.lastPath {
		logger.Debug("surface path changed", "path", current)
	}
	p.lastPath = current

	switch c.Kind {
	case route.KindLive:
		p.dispatchLive(ctx, c)
	case route.KindOffline:
		p.dispatchOffline(ctx, c)
	case route.KindMapBrowse:
		p.dispatchMapBrowse(ctx, c)
	default:
		p.dispatchMenu(ctx, c)
	}
}

// debounce resamples the path up to the retry budget, waiting for the
// surface to leave stale. Returns the new path and true when a change
// was observed; false means the budget is exhausted and the stale path
// is confirmed stable.
func (p *Poller) debounce(ctx context.Context, stale string) (string, bool) {
	for i := 0; i < p.cfg.DebounceRetries; i++ {
		sampled, err := p.source.CurrentPath()
		if err == nil && sampled != stale {
			return sampled, true
		}
		p.sleep(ctx, p.cfg.Interval)
		if ctx.Err() != nil {
			return stale, false
		}
	}
	return stale, false
}

func (p *Poller) dispatchLive(ctx context.Context, c route.Classification) {
	payload, err := p.requester.SendRequest(ctx, p.cfg.Endpoints.LiveAPI+c.APIPath, map[string]string{
		"game_type": "live",
		"game_mode": c.Mode,
	})
	if err != nil {
		logger.Warn("live game fetch failed", "path", c.Path, "error", err)
		return
	}
	p.renderAndPush(ctx, c, "live", payload)
}

func (p *Poller) dispatchOffline(ctx context.Context, c route.Classification) {
	payload, err := p.requester.SendRequest(ctx, p.cfg.Endpoints.OfflineAPI+"/"+c.GameID, map[string]string{
		"game_type": "offline",
	})
	if err != nil {
		logger.Warn("offline game fetch failed", "path", c.Path, "error", err)
		return
	}
	p.renderAndPush(ctx, c, "offline", payload)
}

// dispatchMapBrowse sets presence directly from the map's metadata,
// bypassing the renderer.
func (p *Poller) dispatchMapBrowse(ctx context.Context, c route.Classification) {
	payload, err := p.requester.SendRequest(ctx, p.cfg.Endpoints.MapAPI+"/"+c.MapID, nil)
	if err != nil {
		logger.Warn("map metadata fetch failed", "path", c.Path, "error", err)
		return
	}
	name, ok := stringAt(payload, "name")
	if !ok {
		logger.Warn("map metadata payload missing name", "path", c.Path)
		return
	}
	p.push(ctx, c, "map", name, c.Path)
}

func (p *Poller) dispatchMenu(ctx context.Context, c route.Classification) {
	state := ""
	if c.ShowPath {
		state = c.Path
	}
	p.push(ctx, c, "menu", c.Label, state)
}

func (p *Poller) renderAndPush(ctx context.Context, c route.Classification, kind string, payload map[string]any) {
	line1, line2, err := presence.Render(payload)
	if err != nil {
		logger.Warn("discarding unrenderable payload", "path", c.Path, "error", err)
		return
	}
	p.push(ctx, c, kind, line1, line2)
}

// push publishes one status update. Presence failures are logged and
// retried on the next natural update, never fatal.
func (p *Poller) push(ctx context.Context, c route.Classification, kind, details, state string) {
	if err := p.session.SetActivity(details, state); err != nil {
		logger.Warn("presence update failed", "error", err)
		return
	}
	logger.Debug("presence updated", "details", details, "state", state)

	p.mu.Lock()
	p.status.Path = c.Path
	p.status.Classification = kind
	p.status.Details = details
	p.status.State = state
	p.status.UpdatedAt = time.Now()
	p.mu.Unlock()

	if p.recorder != nil {
		err := p.recorder.Record(ctx, history.Entry{
			Path:           c.Path,
			Classification: kind,
			Details:        details,
			State:          state,
		})
		if err != nil {
			logger.Warn("failed to record presence update", "error", err)
		}
	}
}

// Status returns a snapshot of the poller's last observation.
func (p *Poller) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

func ctxSleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// stringAt walks nested JSON objects and returns the string at the end
// of the key path.
func stringAt(payload map[string]any, keys ...string) (string, bool) {
	var current any = payload
	for _, key := range keys {
		obj, ok := current.(map[string]any)
		if !ok {
			return "", false
		}
		current = obj[key]
	}
	s, ok := current.(string)
	return s, ok
}
