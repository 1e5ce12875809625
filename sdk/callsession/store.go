package callsession

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mbeoliero/kit/log"

	"github.com/CyberTechArmor/NEON-sub002/pkg/errcode"
	"github.com/CyberTechArmor/NEON-sub002/pkg/protocol"
	"github.com/CyberTechArmor/NEON-sub002/sdk"
)

const DefaultConfigTTL = 5 * time.Minute

// IntegrationConfig is the cached video integration configuration
type IntegrationConfig struct {
	Configured     bool
	Enabled        bool
	BaseURL        string
	AutoJoin       bool
	DefaultQuality string
	FetchedAt      time.Time
}

// Usable reports whether calls may be started with this configuration
func (c IntegrationConfig) Usable() bool {
	return c.Configured && c.Enabled
}

// ConfigSource loads the integration configuration. *sdk.Client is one.
type ConfigSource interface {
	FetchIntegrationConfig(ctx context.Context) (*sdk.IntegrationConfig, error)
}

// Caller performs call signaling. *realtime.Calls is one.
type Caller interface {
	Initiate(ctx context.Context, req *protocol.CallInitiateReq) (*protocol.CallAck, error)
	Answer(ctx context.Context, callId string) (*protocol.CallAck, error)
	End(callId string) error
}

// Option configures a Store
type Option func(*Store)

func WithClock(clock clockwork.Clock) Option {
	return func(s *Store) { s.clock = clock }
}

func WithConfigTTL(ttl time.Duration) Option {
	return func(s *Store) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// StartCallRequest starts a call as its host
type StartCallRequest struct {
	ConversationId string
	ParticipantIds []string
	DisplayName    string
	IsVideo        bool
}

// Store owns the active call session and the integration config cache.
// All mutation of the session goes through its methods.
type Store struct {
	source    ConfigSource
	caller    Caller
	snapshots SnapshotStore
	clock     clockwork.Clock
	ttl       time.Duration

	fetchMu sync.Mutex

	mu       sync.RWMutex
	config   *IntegrationConfig
	lastErr  error
	session  *ActiveCallSession
	onChange []func(*ActiveCallSession)
	closed   bool
}

// NewStore creates a Store and restores a persisted session as it was,
// view mode included. A snapshot that cannot be decoded is discarded and the
// store starts without a session.
func NewStore(ctx context.Context, source ConfigSource, caller Caller, snapshots SnapshotStore, opts ...Option) (*Store, error) {
	if snapshots == nil {
		snapshots = NewMemorySnapshotStore()
	}
	s := &Store{
		source:    source,
		caller:    caller,
		snapshots: snapshots,
		clock:     clockwork.NewRealClock(),
		ttl:       DefaultConfigTTL,
	}
	for _, opt := range opts {
		opt(s)
	}

	snap, err := snapshots.Load(ctx)
	if errors.Is(err, ErrCorruptSnapshot) {
		log.CtxWarn(ctx, "discarding call session snapshot: %v", err)
		if err := snapshots.Clear(ctx); err != nil {
			log.CtxWarn(ctx, "clear call session snapshot failed: %v", err)
		}
		snap = nil
	} else if err != nil {
		return nil, err
	}
	if snap != nil {
		s.session = snap.Session()
		log.CtxInfo(ctx, "call session restored: room=%s, view_mode=%s", snap.RoomName, snap.ViewMode)
	}
	return s, nil
}

// Close detaches the store from its hooks and feeds. Starting a call
// afterwards fails; the snapshot is left in place for the next store.
func (s *Store) Close() {
	s.mu.Lock()
	s.closed = true
	s.onChange = nil
	s.mu.Unlock()
}

// OnChange registers fn, called with the new session or nil after every change
func (s *Store) OnChange(fn func(*ActiveCallSession)) {
	s.mu.Lock()
	s.onChange = append(s.onChange, fn)
	s.mu.Unlock()
}

// FetchConfig returns the cached configuration while it is younger than the
// TTL and fetches it otherwise. When a fetch fails a cached value is still
// returned and the failure is kept in LastError.
func (s *Store) FetchConfig(ctx context.Context) (IntegrationConfig, error) {
	s.fetchMu.Lock()
	defer s.fetchMu.Unlock()

	s.mu.RLock()
	cached := s.config
	s.mu.RUnlock()
	if cached != nil && s.clock.Since(cached.FetchedAt) < s.ttl {
		return *cached, nil
	}

	remote, err := s.source.FetchIntegrationConfig(ctx)
	if err != nil {
		s.mu.Lock()
		s.lastErr = err
		s.mu.Unlock()
		if cached != nil {
			log.CtxWarn(ctx, "integration config refresh failed, using cached copy: age=%s, error=%v", s.clock.Since(cached.FetchedAt), err)
			return *cached, nil
		}
		log.CtxWarn(ctx, "integration config fetch failed: %v", err)
		return IntegrationConfig{}, errcode.ErrConfigFetch.Wrap(err)
	}

	cfg := IntegrationConfig{
		Configured:     remote.Configured(),
		Enabled:        remote.Enabled,
		BaseURL:        remote.BaseURL,
		AutoJoin:       remote.AutoJoin,
		DefaultQuality: remote.DefaultQuality,
		FetchedAt:      s.clock.Now(),
	}
	s.mu.Lock()
	s.config = &cfg
	s.lastErr = nil
	s.mu.Unlock()
	return cfg, nil
}

// Config returns the cached configuration without fetching
func (s *Store) Config() (IntegrationConfig, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.config == nil {
		return IntegrationConfig{}, false
	}
	return *s.config, true
}

// LastError returns the error of the last failed fetch, cleared by the
// next successful one
func (s *Store) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// Session returns a copy of the active session, or nil
func (s *Store) Session() *ActiveCallSession {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.session == nil {
		return nil
	}
	return s.session.clone()
}

func (s *Store) usableConfig(ctx context.Context) (IntegrationConfig, error) {
	if err := s.ready(); err != nil {
		return IntegrationConfig{}, err
	}
	cfg, err := s.FetchConfig(ctx)
	if err != nil {
		return cfg, err
	}
	if !cfg.Usable() {
		return cfg, errcode.ErrConfigNotEnabled
	}
	return cfg, nil
}

func (s *Store) ready() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	switch {
	case s.closed:
		return errcode.ErrInternalServer.WithMsg("call session store closed")
	case s.session != nil:
		return errcode.ErrCallActive
	}
	return nil
}

// StartCall initiates a call and makes it the active session
func (s *Store) StartCall(ctx context.Context, req StartCallRequest) (*ActiveCallSession, error) {
	cfg, err := s.usableConfig(ctx)
	if err != nil {
		return nil, err
	}
	ack, err := s.caller.Initiate(ctx, &protocol.CallInitiateReq{
		ParticipantIds: req.ParticipantIds,
		ConversationId: req.ConversationId,
		IsVideo:        req.IsVideo,
	})
	if err != nil {
		return nil, err
	}
	sess, err := s.fromAck(cfg, ack, req.DisplayName, true)
	if err != nil {
		return nil, err
	}
	sess.ConversationId = req.ConversationId
	return s.install(ctx, sess)
}

// AnswerCall accepts a ringing call and makes it the active session
func (s *Store) AnswerCall(ctx context.Context, callId, displayName string) (*ActiveCallSession, error) {
	if callId == "" {
		return nil, errcode.ErrInvalidParam
	}
	cfg, err := s.usableConfig(ctx)
	if err != nil {
		return nil, err
	}
	ack, err := s.caller.Answer(ctx, callId)
	if err != nil {
		return nil, err
	}
	sess, err := s.fromAck(cfg, ack, displayName, false)
	if err != nil {
		return nil, err
	}
	return s.install(ctx, sess)
}

// JoinCall enters a room directly, for instance a scheduled meeting's
func (s *Store) JoinCall(ctx context.Context, roomName, displayName, conversationId string) (*ActiveCallSession, error) {
	if roomName == "" {
		return nil, errcode.ErrInvalidParam
	}
	cfg, err := s.usableConfig(ctx)
	if err != nil {
		return nil, err
	}
	joinURL, err := url.JoinPath(cfg.BaseURL, roomName)
	if err != nil {
		return nil, errcode.ErrConfigNotEnabled.Wrap(err)
	}
	return s.install(ctx, &ActiveCallSession{
		ConversationId: conversationId,
		RoomName:       roomName,
		JoinURL:        joinURL,
		DisplayName:    displayName,
		StartedAt:      s.clock.Now(),
		ViewMode:       ViewEmbedded,
	})
}

func (s *Store) fromAck(cfg IntegrationConfig, ack *protocol.CallAck, displayName string, host bool) (*ActiveCallSession, error) {
	sess := &ActiveCallSession{
		RoomName:    ack.RoomName,
		JoinURL:     ack.JoinUrl,
		Token:       ack.Token,
		DisplayName: displayName,
		StartedAt:   s.clock.Now(),
		ViewMode:    ViewEmbedded,
		IsHost:      host,
	}
	if ack.Call != nil {
		sess.CallId = ack.Call.Id
		sess.ConversationId = ack.Call.ConversationId
		sess.Participants = append([]protocol.CallParticipant(nil), ack.Call.Participants...)
		if sess.RoomName == "" {
			sess.RoomName = ack.Call.RoomName
		}
	}
	if sess.RoomName == "" {
		return nil, errcode.ErrSignaling.WithMsg("call acknowledged without a room")
	}
	if sess.JoinURL == "" {
		joinURL, err := url.JoinPath(cfg.BaseURL, sess.RoomName)
		if err != nil {
			return nil, errcode.ErrConfigNotEnabled.Wrap(err)
		}
		sess.JoinURL = joinURL
	}
	return sess, nil
}

func (s *Store) install(ctx context.Context, sess *ActiveCallSession) (*ActiveCallSession, error) {
	s.mu.Lock()
	if s.session != nil {
		s.mu.Unlock()
		return nil, errcode.ErrCallActive
	}
	s.session = sess
	s.persistLocked(ctx)
	out := sess.clone()
	s.mu.Unlock()

	log.CtxInfo(ctx, "call session started: room=%s, host=%t", sess.RoomName, sess.IsHost)
	s.changed(out)
	return out.clone(), nil
}

// SetViewMode switches presentation. Every mode is reachable from every other.
func (s *Store) SetViewMode(ctx context.Context, mode ViewMode) error {
	if !mode.Valid() {
		return errcode.ErrInvalidParam
	}
	return s.update(ctx, func(sess *ActiveCallSession) { sess.ViewMode = mode })
}

// UpdateParticipants replaces the roster of the active session
func (s *Store) UpdateParticipants(ctx context.Context, participants []protocol.CallParticipant) error {
	roster := append([]protocol.CallParticipant(nil), participants...)
	return s.update(ctx, func(sess *ActiveCallSession) { sess.Participants = roster })
}

func (s *Store) update(ctx context.Context, fn func(*ActiveCallSession)) error {
	s.mu.Lock()
	if s.session == nil {
		s.mu.Unlock()
		return errcode.ErrNoActiveCall
	}
	fn(s.session)
	s.persistLocked(ctx)
	out := s.session.clone()
	s.mu.Unlock()

	s.changed(out)
	return nil
}

// EndCall hangs up and clears the session. It is the only way the session
// goes away, and calling it without one is a no-op.
func (s *Store) EndCall(ctx context.Context) error {
	sess := s.clear(ctx)
	if sess == nil || sess.CallId == "" {
		return nil
	}
	if err := s.caller.End(sess.CallId); err != nil {
		log.CtxDebug(ctx, "call end not signaled: call_id=%s, error=%v", sess.CallId, err)
	}
	return nil
}

// clear drops the session without signaling the server
func (s *Store) clear(ctx context.Context) *ActiveCallSession {
	s.mu.Lock()
	sess := s.session
	if sess == nil {
		s.mu.Unlock()
		return nil
	}
	s.session = nil
	if err := s.snapshots.Clear(ctx); err != nil {
		log.CtxWarn(ctx, "call session snapshot not cleared: %v", err)
	}
	s.mu.Unlock()

	log.CtxInfo(ctx, "call session ended: room=%s", sess.RoomName)
	s.changed(nil)
	return sess
}

// persistLocked saves the snapshot. The in-memory session stays the source
// of truth when the write fails.
func (s *Store) persistLocked(ctx context.Context) {
	if err := s.snapshots.Save(ctx, s.session.Snapshot()); err != nil {
		log.CtxWarn(ctx, "call session snapshot not saved: room=%s, error=%v", s.session.RoomName, err)
	}
}

func (s *Store) changed(sess *ActiveCallSession) {
	s.mu.RLock()
	hooks := append([]func(*ActiveCallSession){}, s.onChange...)
	s.mu.RUnlock()
	for _, fn := range hooks {
		if sess == nil {
			fn(nil)
			continue
		}
		fn(sess.clone())
	}
}
