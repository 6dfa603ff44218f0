package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/r3labs/diff"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/duncanleo/hc-gopro/log"
	"github.com/duncanleo/hc-gopro/transcoder"
)

// Stream start defaults used when the viewer does not negotiate video.
const (
	DefaultWidth   = 1280
	DefaultHeight  = 720
	DefaultFPS     = 30
	DefaultBitrate = 300

	DefaultMaxSessions = 2
	DefaultPendingTTL  = 2 * time.Minute
)

// ErrTooManySessions is returned by Start when every viewer slot is taken.
var ErrTooManySessions = errors.New("maximum number of stream sessions reached")

var activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "hcgopro_stream_active_sessions",
	Help: "Number of stream sessions with a running transcoder",
})

// Waker brings the camera's live feed up. *control.Controller implements it.
type Waker interface {
	StartStream(ctx context.Context) error
}

// Transcoder is the running process owned by an active session.
type Transcoder interface {
	Stop()
	Suspend() error
	Resume() error
}

// SpawnFunc starts a transcoder.
type SpawnFunc func(args []string, opts transcoder.Options) (Transcoder, error)

// SupervisorSpawn adapts a transcoder.Supervisor.
func SupervisorSpawn(s *transcoder.Supervisor) SpawnFunc {
	return func(args []string, opts transcoder.Options) (Transcoder, error) {
		p, err := s.Spawn(args, opts)
		if err != nil {
			return nil, err
		}
		return p, nil
	}
}

// CommandBuilder turns a session about to go active into a transcoder
// argument vector.
type CommandBuilder func(s Session) []string

// Config tunes a Manager.
type Config struct {
	MaxSessions int

	// RespawnLimit and RespawnBurst bound transcoder respawns per session.
	// A zero RespawnBurst leaves respawning unbounded.
	RespawnLimit rate.Limit
	RespawnBurst int

	// KeepAlive runs while at least one session is active.
	KeepAlive func(ctx context.Context) error

	// Passthrough receives transcoder diagnostics. Nil means stdout.
	Passthrough io.Writer

	// Resolve derives the local address towards a viewer. Nil uses the
	// routing table.
	Resolve func(viewer string) (string, error)

	// PendingTTL bounds how long a prepared session waits for Start before
	// the next Prepare discards it.
	PendingTTL time.Duration
}

type session struct {
	Session
	created time.Time
	proc    Transcoder

	// starting is set while Start waits on the camera. A Stop in that
	// window sets stopRequested and Start abandons the session.
	starting      bool
	stopRequested bool
}

// Manager owns the session table. Every table transition happens under one
// mutex; camera wake-up and process teardown run outside it.
type Manager struct {
	waker Waker
	spawn SpawnFunc
	build CommandBuilder
	cfg   Config

	mu       sync.Mutex
	sessions map[string]*session

	keepAliveCancel context.CancelFunc

	now    func() time.Time
	logger zerolog.Logger
}

// NewManager returns an empty session table.
func NewManager(waker Waker, spawn SpawnFunc, build CommandBuilder, cfg Config) *Manager {
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = DefaultMaxSessions
	}
	if cfg.Resolve == nil {
		cfg.Resolve = localAddressFor
	}
	if cfg.PendingTTL <= 0 {
		cfg.PendingTTL = DefaultPendingTTL
	}
	return &Manager{
		waker:    waker,
		spawn:    spawn,
		build:    build,
		cfg:      cfg,
		sessions: make(map[string]*session),
		now:      time.Now,
		logger:   log.WithComponent("stream"),
	}
}

// Prepare records a pending session and answers with the local endpoint.
// A repeated Prepare for the same id replaces the earlier record.
func (m *Manager) Prepare(req PrepareRequest) (Offer, error) {
	local := req.LocalAddress
	if local == "" {
		var err error
		local, err = m.cfg.Resolve(req.ViewerAddress)
		if err != nil {
			return Offer{}, fmt.Errorf("resolve local address: %w", err)
		}
	}

	s := &session{Session: Session{
		ID:            req.SessionID,
		ConnID:        req.ConnID,
		ViewerAddress: req.ViewerAddress,
		IPv6:          isIPv6(req.ViewerAddress),
		Phase:         Pending,
	}}

	offer := Offer{
		SessionID: req.SessionID,
		Address:   local,
		IPv6:      isIPv6(local),
	}
	if req.Video != nil {
		v := *req.Video
		v.SSRC = 1
		s.Video = &v
		offer.Video = &v
	}
	if req.Audio != nil {
		a := *req.Audio
		a.SSRC = 2
		s.Audio = &a
		offer.Audio = &a
	}

	m.mu.Lock()
	s.created = m.now()
	m.expirePendingLocked(s.created)
	old := m.sessions[req.SessionID]
	m.sessions[req.SessionID] = s
	var replaced Transcoder
	if old != nil && old.Phase == Active {
		replaced = m.closeLocked(old)
	}
	m.mu.Unlock()

	if replaced != nil {
		replaced.Stop()
	}

	m.logger.Info().
		Str("session", req.SessionID).
		Str("viewer", req.ViewerAddress).
		Str("local", local).
		Bool("ipv6", offer.IPv6).
		Msg("prepared")
	return offer, nil
}

// Start wakes the camera stream and launches the session's transcoder. A
// start for an unknown or non-pending session is ignored.
func (m *Manager) Start(ctx context.Context, id string, params VideoParams) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if !ok || s.Phase != Pending || s.starting {
		m.mu.Unlock()
		m.logger.Debug().Str("session", id).Msg("start without pending session ignored")
		return nil
	}
	if m.busyLocked() >= m.cfg.MaxSessions {
		m.mu.Unlock()
		return ErrTooManySessions
	}
	s.starting = true
	m.mu.Unlock()

	err := m.waker.StartStream(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()
	s.starting = false

	if s.stopRequested {
		if m.sessions[id] == s {
			delete(m.sessions, id)
		}
		s.Phase = Closed
		m.logger.Info().Str("session", id).Msg("stopped while waking camera")
		return nil
	}
	if err != nil {
		return err
	}
	if m.sessions[id] != s {
		m.logger.Debug().Str("session", id).Msg("session replaced while waking camera")
		return nil
	}

	s.Params = withDefaults(params)
	args := m.build(s.Session)

	opts := transcoder.Options{
		Passthrough: m.cfg.Passthrough,
		Respawn:     true,
		OnExit:      func(err error) { m.transcoderExited(s, err) },
	}
	if m.cfg.RespawnBurst > 0 {
		opts.Limiter = rate.NewLimiter(m.cfg.RespawnLimit, m.cfg.RespawnBurst)
	}

	proc, err := m.spawn(args, opts)
	if err != nil {
		return fmt.Errorf("spawn transcoder: %w", err)
	}

	s.proc = proc
	s.Phase = Active
	activeSessions.Inc()
	m.syncKeepAliveLocked()

	m.logger.Info().
		Str("session", id).
		Int("width", s.Params.Width).
		Int("height", s.Params.Height).
		Int("fps", s.Params.FPS).
		Int("bitrate", s.Params.MaxBitrate).
		Msg("started")
	return nil
}

// Stop kills an active session's transcoder and removes the session. A
// session still waking the camera is marked so Start abandons it. Otherwise
// Stop is a no-op when no active session exists for id.
func (m *Manager) Stop(id string) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok && s.starting {
		s.stopRequested = true
		m.mu.Unlock()
		m.logger.Info().Str("session", id).Msg("stop requested while waking camera")
		return
	}
	if !ok || s.Phase != Active {
		m.mu.Unlock()
		return
	}
	proc := m.closeLocked(s)
	m.mu.Unlock()

	proc.Stop()
	m.logger.Info().Str("session", id).Msg("stopped")
}

// Suspend pauses an active session's transcoder.
func (m *Manager) Suspend(id string) error {
	proc := m.activeProc(id)
	if proc == nil {
		return nil
	}
	return proc.Suspend()
}

// Resume continues a suspended session's transcoder.
func (m *Manager) Resume(id string) error {
	proc := m.activeProc(id)
	if proc == nil {
		return nil
	}
	return proc.Resume()
}

// Reconfigure records newly negotiated parameters. The running transcoder
// keeps its command line; the change is logged.
func (m *Manager) Reconfigure(id string, params VideoParams) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok || s.Phase != Active {
		return
	}

	changelog, err := diff.Diff(s.Params, params)
	if err != nil {
		m.logger.Debug().Err(err).Msg("reconfigure diff")
	}
	m.logger.Info().Str("session", id).Interface("changes", changelog).Msg("reconfigure")
	s.Params = params
}

// HandleCloseConnection drops every session owned by connID.
func (m *Manager) HandleCloseConnection(connID string) {
	var procs []Transcoder

	m.mu.Lock()
	for id, s := range m.sessions {
		if s.ConnID != connID {
			continue
		}
		if s.Phase == Active {
			procs = append(procs, m.closeLocked(s))
			continue
		}
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	for _, p := range procs {
		p.Stop()
	}
	if len(procs) > 0 {
		m.logger.Info().Str("conn", connID).Int("stopped", len(procs)).Msg("connection closed")
	}
}

// StopAll tears every session down.
func (m *Manager) StopAll() {
	var procs []Transcoder

	m.mu.Lock()
	for id, s := range m.sessions {
		if s.Phase == Active {
			procs = append(procs, m.closeLocked(s))
			continue
		}
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	for _, p := range procs {
		p.Stop()
	}
}

// Get returns a copy of the session with id.
func (m *Manager) Get(id string) (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return Session{}, false
	}
	return s.Session, true
}

// Sessions returns copies of every tracked session.
func (m *Manager) Sessions() []Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s.Session)
	}
	return out
}

func (m *Manager) activeProc(id string) Transcoder {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || s.Phase != Active {
		return nil
	}
	return s.proc
}

// closeLocked removes an active session and returns its process for the
// caller to stop once the lock is released.
func (m *Manager) closeLocked(s *session) Transcoder {
	if m.sessions[s.ID] == s {
		delete(m.sessions, s.ID)
	}
	s.Phase = Closed
	proc := s.proc
	s.proc = nil
	activeSessions.Dec()
	m.syncKeepAliveLocked()
	return proc
}

// transcoderExited handles a transcoder that ended without Stop, i.e. the
// respawn limiter gave up.
func (m *Manager) transcoderExited(s *session, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.Phase != Active {
		return
	}
	m.logger.Error().Err(err).Str("session", s.ID).Msg("transcoder gave up")
	m.closeLocked(s)
}

// expirePendingLocked drops prepared sessions that never started within
// PendingTTL.
func (m *Manager) expirePendingLocked(now time.Time) {
	for id, s := range m.sessions {
		if s.Phase != Pending || s.starting {
			continue
		}
		if now.Sub(s.created) < m.cfg.PendingTTL {
			continue
		}
		delete(m.sessions, id)
		m.logger.Debug().Str("session", id).Msg("pending session expired")
	}
}

func (m *Manager) busyLocked() int {
	n := 0
	for _, s := range m.sessions {
		if s.Phase == Active || s.starting {
			n++
		}
	}
	return n
}

func (m *Manager) syncKeepAliveLocked() {
	if m.cfg.KeepAlive == nil {
		return
	}
	active := 0
	for _, s := range m.sessions {
		if s.Phase == Active {
			active++
		}
	}

	switch {
	case active > 0 && m.keepAliveCancel == nil:
		ctx, cancel := context.WithCancel(context.Background())
		m.keepAliveCancel = cancel
		go func() {
			if err := m.cfg.KeepAlive(ctx); err != nil {
				m.logger.Warn().Err(err).Msg("stream keep-alive")
			}
		}()
	case active == 0 && m.keepAliveCancel != nil:
		m.keepAliveCancel()
		m.keepAliveCancel = nil
	}
}

func withDefaults(p VideoParams) VideoParams {
	if p.Width <= 0 || p.Height <= 0 {
		p.Width, p.Height = DefaultWidth, DefaultHeight
	}
	if p.FPS <= 0 || p.FPS > DefaultFPS {
		p.FPS = DefaultFPS
	}
	if p.MaxBitrate <= 0 {
		p.MaxBitrate = DefaultBitrate
	}
	return p
}
