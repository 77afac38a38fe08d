/*
Core owns every market-data registry and is the only writer to them.

# Module
  - connection manager: keyed streaming-socket / server-push transports
  - decoder: binary frames and JSON server-push payloads into ticks
  - fusion registry: median price across sources per symbol
  - indicator engine: bounded history, EMA and futures basis
  - risk guardian: latched loss / trade-count halt
  - margin aggregator: unified margin across sources

# Source
 1. host commands (connect, disconnect, risk limits, mtm, trades, margin)
 2. transport notifications (connected, frame, failed) and reconnect timers

# Produce
  - tick, status, error, failover_suggestion, halt_triggered and
    unified_margin events, in handling order
*/
package core

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
	"golang.org/x/time/rate"

	"tickcore/internal/bus"
	"tickcore/internal/codec"
	"tickcore/internal/feed"
	"tickcore/internal/fusion"
	"tickcore/internal/indicator"
	"tickcore/internal/margin"
	"tickcore/internal/obs"
	"tickcore/internal/risk"
	"tickcore/internal/schema"
	"tickcore/pkg/exception"
	"tickcore/pkg/websocket"
)

const (
	DefaultEMAPeriod        = 20
	DefaultLagCheckInterval = time.Second
	DefaultQueueSize        = 1024
)

// Config configures a Core.
type Config struct {
	Limits      schema.RiskLimits
	Instruments []schema.Instrument
	EMAPeriod   int
	Fusion      fusion.Config
	Indicator   indicator.Config

	Backoff          websocket.Backoff
	LagThreshold     time.Duration
	LagCheckInterval time.Duration
	SuggestInterval  time.Duration

	CommandQueueSize int
	NotifyQueueSize  int
	EventQueueSize   int

	// Opener defaults to feed.NetOpener.
	Opener  feed.Opener
	Metrics *obs.Metrics
	// Tap sees every current-generation frame before decoding. It runs on
	// the core loop and must not block.
	Tap func(feed.Info, feed.Frame)
}

type envelope struct {
	cmd schema.Command
	err error
}

// Core is the single-writer market-data actor.
type Core struct {
	cfg Config

	ctx    context.Context
	cancel context.CancelFunc

	commands *bus.Queue[envelope]
	notes    *bus.Queue[feed.Notification]
	events   *bus.Queue[schema.Event]

	feeds      *feed.Manager
	registry   *schema.Registry
	fusion     *fusion.Registry
	indicators *indicator.Engine
	guardian   *risk.Guardian
	margin     *margin.Aggregator

	metrics *obs.Metrics
	seq     obs.Sequence
	skipLog *rate.Limiter
	now     func() time.Time

	tickBuf []schema.Tick
	jsonBuf []codec.JSONTick

	running atomic.Bool
	stopped chan struct{}
}

// New validates cfg and builds a Core. Commands may be submitted before Run.
func New(cfg Config) (*Core, error) {
	if cfg.EMAPeriod <= 0 {
		cfg.EMAPeriod = DefaultEMAPeriod
	}
	if cfg.LagCheckInterval <= 0 {
		cfg.LagCheckInterval = DefaultLagCheckInterval
	}
	if cfg.CommandQueueSize <= 0 {
		cfg.CommandQueueSize = DefaultQueueSize
	}
	if cfg.NotifyQueueSize <= 0 {
		cfg.NotifyQueueSize = DefaultQueueSize
	}
	if cfg.EventQueueSize <= 0 {
		cfg.EventQueueSize = DefaultQueueSize
	}
	if cfg.Opener == nil {
		cfg.Opener = feed.NetOpener{}
	}
	if cfg.Metrics == nil {
		cfg.Metrics = obs.NewMetrics()
	}

	registry := schema.NewRegistry()
	for _, in := range cfg.Instruments {
		if err := registry.Add(in); err != nil {
			return nil, errors.Wrap(err, "register instrument")
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Core{
		cfg:        cfg,
		ctx:        ctx,
		cancel:     cancel,
		commands:   bus.NewQueue[envelope](cfg.CommandQueueSize),
		notes:      bus.NewQueue[feed.Notification](cfg.NotifyQueueSize),
		events:     bus.NewQueue[schema.Event](cfg.EventQueueSize),
		registry:   registry,
		fusion:     fusion.NewRegistry(cfg.Fusion),
		indicators: indicator.NewEngine(cfg.Indicator),
		guardian:   risk.NewGuardian(cfg.Limits),
		margin:     margin.NewAggregator(),
		metrics:    cfg.Metrics,
		skipLog:    rate.NewLimiter(rate.Every(time.Second), 1),
		now:        time.Now,
		stopped:    make(chan struct{}),
	}

	feeds, err := feed.NewManager(ctx, feed.Config{
		Opener:          cfg.Opener,
		Post:            c.notes.Publish,
		Backoff:         cfg.Backoff,
		LagThreshold:    cfg.LagThreshold,
		SuggestInterval: cfg.SuggestInterval,
	})
	if err != nil {
		cancel()
		return nil, errors.Wrap(err, "new feed manager")
	}
	c.feeds = feeds
	return c, nil
}

// Submit enqueues a host command, blocking while the command queue is full.
func (c *Core) Submit(ctx context.Context, cmd schema.Command) error {
	return c.submit(ctx, envelope{cmd: cmd})
}

// SubmitRaw decodes a JSON command and enqueues it. Undecodable payloads are
// still enqueued so the core reports them as error events in order.
func (c *Core) SubmitRaw(ctx context.Context, payload []byte) error {
	var cmd schema.Command
	if err := sonic.Unmarshal(payload, &cmd); err != nil {
		return c.submit(ctx, envelope{err: errors.Wrap(exception.ErrMalformedCommand, err.Error())})
	}
	return c.submit(ctx, envelope{cmd: cmd})
}

func (c *Core) submit(ctx context.Context, env envelope) error {
	if c.ctx.Err() != nil {
		return exception.ErrCoreStopped
	}
	if err := c.commands.Publish(ctx, env); err != nil {
		c.metrics.IncQueueDrop()
		return errors.Wrap(err, "publish command")
	}
	return nil
}

// Events streams emitted events. The channel is closed once Run returns.
func (c *Core) Events() <-chan schema.Event {
	return c.events.C()
}

// Metrics returns the metrics the core reports into.
func (c *Core) Metrics() *obs.Metrics {
	return c.metrics
}

// Done is closed once Run has torn everything down.
func (c *Core) Done() <-chan struct{} {
	return c.stopped
}

// Run processes commands and transport notifications until ctx is done.
func (c *Core) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return exception.ErrCoreRunning
	}
	if c.ctx.Err() != nil {
		return exception.ErrCoreStopped
	}
	stop := context.AfterFunc(ctx, c.cancel)
	defer stop()
	defer c.shutdown()

	ticker := time.NewTicker(c.cfg.LagCheckInterval)
	defer ticker.Stop()

	logs.Infof("core started, ema period: %d, max loss: %.2f, max trades: %d",
		c.cfg.EMAPeriod, c.cfg.Limits.MaxLoss, c.cfg.Limits.MaxTrades)

	for {
		select {
		case <-c.ctx.Done():
			return nil
		case env := <-c.commands.C():
			c.handleCommand(env)
		case n := <-c.notes.C():
			c.handleNotification(n)
		case now := <-ticker.C:
			c.checkLag(now)
		}
	}
}

func (c *Core) shutdown() {
	c.cancel()
	keys := c.feeds.Keys()
	c.feeds.Close()
	c.events.Close()
	close(c.stopped)
	logs.Infof("core stopped, closed connections: %v", keys)
}

func (c *Core) handleNotification(n feed.Notification) {
	switch n.Kind {
	case feed.NotifyConnected:
		if info, ok := c.feeds.OnConnected(n); ok {
			c.emit(schema.StatusEvent(info.Key, true))
		}
	case feed.NotifyFrame:
		c.onFrame(n)
	case feed.NotifyFailed:
		failure, ok := c.feeds.OnFailed(n)
		if !ok {
			return
		}
		c.metrics.IncReconnect()
		c.emit(schema.ErrorEvent(failure.Key, failure.Err))
		if failure.WasConnected {
			c.emit(schema.StatusEvent(failure.Key, false))
		}
	case feed.NotifyReconnect:
		if info, ok := c.feeds.OnReconnect(n); ok {
			logs.Infof("feed %s reconnecting, attempt: %d", info.Key, info.Attempt)
		}
	}
}

// emit stamps and publishes an event, then runs the lag check.
func (c *Core) emit(ev schema.Event) {
	now := c.now()
	ev.Seq = c.seq.Next()
	ev.TsNano = now.UnixNano()
	if err := c.events.Publish(c.ctx, ev); err != nil {
		if err == bus.ErrQueueClosed {
			c.metrics.IncQueueClosed()
		} else {
			c.metrics.IncQueueDrop()
		}
		return
	}
	c.metrics.ObserveEvent(ev.Type)
	if ev.Type != schema.EventFailoverSuggestion {
		c.checkLag(now)
	}
}

func (c *Core) checkLag(now time.Time) {
	for _, s := range c.feeds.CheckLag(now) {
		suggestion := s
		c.metrics.IncFailover()
		logs.Infof("feed %s lagging %dms, suggest failover from source %s", s.LaggingKey, s.LagMillis, s.Source)
		c.emit(schema.Event{Type: schema.EventFailoverSuggestion, Key: s.LaggingKey, Failover: &suggestion})
	}
}
