package feed

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"tickcore/internal/schema"
	"tickcore/pkg/exception"
	"tickcore/pkg/websocket"
)

// DefaultLagThreshold is how long a connection may go without frames before it is lagging.
const DefaultLagThreshold = 3000 * time.Millisecond

// Config configures a Manager.
type Config struct {
	Opener Opener
	Post   Poster

	// Backoff drives the reconnect delay. Zero value uses websocket.DefaultBackoff.
	Backoff websocket.Backoff
	// LagThreshold defaults to DefaultLagThreshold.
	LagThreshold time.Duration
	// SuggestInterval throttles repeated suggestions for the same lagging
	// connection. Zero suggests on every check.
	SuggestInterval time.Duration
}

// Info is a read-only view of a keyed connection.
type Info struct {
	Key        string
	Source     string
	Transport  schema.TransportKind
	State      State
	Gen        uuid.UUID
	Attempt    int
	LastTickAt time.Time
	Symbols    map[uint32]string
}

// Failure describes a transport error that has been turned into a scheduled reconnect.
type Failure struct {
	Info
	Err          error
	Delay        time.Duration
	WasConnected bool
}

type instance struct {
	req         schema.ConnectRequest
	key         string
	gen         uuid.UUID
	state       State
	sess        *session
	timer       *time.Timer
	attempt     int
	lastTickAt  time.Time
	suggestedAt time.Time
}

func (inst *instance) info() Info {
	return Info{
		Key:        inst.key,
		Source:     inst.req.Source,
		Transport:  inst.req.Transport,
		State:      inst.state,
		Gen:        inst.gen,
		Attempt:    inst.attempt,
		LastTickAt: inst.lastTickAt,
		Symbols:    inst.req.Symbols,
	}
}

// Manager owns the keyed transport connections. It is not safe for concurrent
// use: every method must be called from the single owner loop, which also
// consumes the notifications delivered through Config.Post.
type Manager struct {
	ctx       context.Context
	cfg       Config
	now       func() time.Time
	instances map[string]*instance
	wg        sync.WaitGroup
}

// NewManager creates a manager whose sessions live until ctx is done.
func NewManager(ctx context.Context, cfg Config) (*Manager, error) {
	if cfg.Opener == nil || cfg.Post == nil {
		return nil, errors.Wrap(exception.ErrNilInstance, "feed manager requires opener and poster")
	}
	if cfg.Backoff == (websocket.Backoff{}) {
		cfg.Backoff = websocket.DefaultBackoff()
	}
	if cfg.LagThreshold <= 0 {
		cfg.LagThreshold = DefaultLagThreshold
	}
	return &Manager{
		ctx:       ctx,
		cfg:       cfg,
		now:       time.Now,
		instances: make(map[string]*instance),
	}, nil
}

// Connect replaces any connection under the request key and starts a new one.
// The previous transport is closed and its reconnect timer cleared before the
// new transport is opened.
func (m *Manager) Connect(req schema.ConnectRequest) (uuid.UUID, error) {
	key := req.ConnectionKey()
	if len(key) == 0 {
		return uuid.Nil, exception.ErrEmptyConnectionKey
	}
	if len(req.URL) == 0 {
		return uuid.Nil, errors.Wrapf(exception.ErrEmptyURL, "key %s", key)
	}
	if !req.Transport.IsAvailable() {
		return uuid.Nil, errors.Wrapf(exception.ErrUnsupportedTransport, "key %s, transport %q", key, req.Transport)
	}

	if prev, ok := m.instances[key]; ok {
		m.teardown(prev)
		delete(m.instances, key)
	}

	req.Key = key
	inst := &instance{req: req, key: key}
	m.instances[key] = inst
	m.open(inst)
	return inst.gen, nil
}

// Disconnect tears down the connection under key.
func (m *Manager) Disconnect(key string) bool {
	inst, ok := m.instances[key]
	if !ok {
		return false
	}
	m.teardown(inst)
	delete(m.instances, key)
	return true
}

// DisconnectAll tears down every connection and returns the removed keys in order.
func (m *Manager) DisconnectAll() []string {
	keys := m.Keys()
	for _, key := range keys {
		m.Disconnect(key)
	}
	return keys
}

// Close tears down every connection and waits for reader goroutines to exit.
func (m *Manager) Close() {
	m.DisconnectAll()
	m.wg.Wait()
}

// Keys returns the managed keys in lexical order.
func (m *Manager) Keys() []string {
	keys := make([]string, 0, len(m.instances))
	for key := range m.instances {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of managed connections.
func (m *Manager) Len() int {
	return len(m.instances)
}

// Info returns the view of the connection under key.
func (m *Manager) Info(key string) (Info, bool) {
	inst, ok := m.instances[key]
	if !ok {
		return Info{}, false
	}
	return inst.info(), true
}

// State returns the state of key, StateDisconnected when unknown.
func (m *Manager) State(key string) State {
	inst, ok := m.instances[key]
	if !ok {
		return StateDisconnected
	}
	return inst.state
}

// OnConnected marks the instance connected and resets its backoff.
func (m *Manager) OnConnected(n Notification) (Info, bool) {
	inst, ok := m.accept(n)
	if !ok || inst.state != StateConnecting {
		return Info{}, false
	}
	inst.state = StateConnected
	inst.attempt = 0
	inst.lastTickAt = m.now()
	inst.suggestedAt = time.Time{}
	logs.Infof("feed %s connected, source: %s, transport: %s", inst.key, inst.req.Source, inst.req.Transport)
	return inst.info(), true
}

// OnFrame records frame arrival for lag detection.
func (m *Manager) OnFrame(n Notification) (Info, bool) {
	inst, ok := m.accept(n)
	if !ok || inst.state != StateConnected {
		return Info{}, false
	}
	inst.lastTickAt = m.now()
	inst.suggestedAt = time.Time{}
	return inst.info(), true
}

// OnFailed closes the failed transport and schedules a reconnect.
func (m *Manager) OnFailed(n Notification) (Failure, bool) {
	inst, ok := m.accept(n)
	if !ok {
		return Failure{}, false
	}
	wasConnected := inst.state == StateConnected
	inst.state = StateError
	if err := inst.sess.stop(); err != nil {
		logs.Errorf("feed %s close failed transport, err: %+v", inst.key, err)
	}
	inst.sess = nil

	inst.attempt++
	delay := m.schedule(inst)
	logs.Errorf("feed %s transport error, retry in %s (attempt %d), err: %+v", inst.key, delay, inst.attempt, n.Err)

	return Failure{Info: inst.info(), Err: n.Err, Delay: delay, WasConnected: wasConnected}, true
}

// OnReconnect reopens an instance whose reconnect timer fired.
func (m *Manager) OnReconnect(n Notification) (Info, bool) {
	inst, ok := m.accept(n)
	if !ok || inst.state != StateReconnectScheduled {
		return Info{}, false
	}
	inst.timer = nil
	m.open(inst)
	return inst.info(), true
}

// CheckLag returns a suggestion for each connected lower-priority transport
// that has not produced a frame within the lag threshold.
func (m *Manager) CheckLag(now time.Time) []schema.FailoverSuggestion {
	var out []schema.FailoverSuggestion
	for _, key := range m.Keys() {
		inst := m.instances[key]
		if inst.state != StateConnected || !lowerPriority(inst.req.Transport) {
			continue
		}
		lag := now.Sub(inst.lastTickAt)
		if lag <= m.cfg.LagThreshold {
			continue
		}
		if m.cfg.SuggestInterval > 0 && !inst.suggestedAt.IsZero() && now.Sub(inst.suggestedAt) < m.cfg.SuggestInterval {
			continue
		}
		inst.suggestedAt = now
		out = append(out, schema.FailoverSuggestion{
			LaggingKey: inst.key,
			Source:     inst.req.Source,
			LagMillis:  lag.Milliseconds(),
		})
	}
	return out
}

func lowerPriority(kind schema.TransportKind) bool {
	return kind.Priority() > schema.TransportStreamingSocket.Priority()
}

func (m *Manager) accept(n Notification) (*instance, bool) {
	inst, ok := m.instances[n.Key]
	if !ok || inst.gen != n.Gen {
		return nil, false
	}
	return inst, true
}

func (m *Manager) open(inst *instance) {
	inst.gen = uuid.New()
	inst.state = StateConnecting
	inst.sess = newSession(inst.key, inst.gen)
	inst.sess.start(m.ctx, &m.wg, m.cfg.Opener, inst.req, m.cfg.Post)
}

func (m *Manager) schedule(inst *instance) time.Duration {
	if inst.timer != nil {
		inst.timer.Stop()
	}
	delay := m.cfg.Backoff.Next(inst.attempt)
	n := Notification{Kind: NotifyReconnect, Key: inst.key, Gen: inst.gen}
	inst.timer = time.AfterFunc(delay, func() {
		if err := m.cfg.Post(m.ctx, n); err != nil && m.ctx.Err() == nil {
			logs.Errorf("feed %s post reconnect, err: %+v", n.Key, err)
		}
	})
	inst.state = StateReconnectScheduled
	return delay
}

func (m *Manager) teardown(inst *instance) {
	if inst.timer != nil {
		inst.timer.Stop()
		inst.timer = nil
	}
	if err := inst.sess.stop(); err != nil {
		logs.Errorf("feed %s close transport, err: %+v", inst.key, err)
	}
	inst.sess = nil
	inst.state = StateDisconnected
	inst.gen = uuid.Nil
}
