// Package admin serves a read-only HTTP view of a running core: health,
// metrics, connection status, latest prices and risk state. Its state is
// folded from the event stream, so it never touches the core's registries.
package admin

import (
	"sort"
	"sync"
	"time"

	"tickcore/internal/schema"
)

const (
	maxFailovers = 32
	// DefaultMaxEntries caps prices and connections when no limit is given.
	DefaultMaxEntries = 4096
)

// ConnStatus is the last known state of one connection key.
type ConnStatus struct {
	Key        string    `json:"key"`
	Connected  bool      `json:"connected"`
	Ticks      uint64    `json:"ticks"`
	LastTickAt time.Time `json:"lastTickAt"`
	LastError  string    `json:"lastError,omitempty"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// PriceView is the latest enriched price of one symbol.
type PriceView struct {
	Symbol     string    `json:"symbol"`
	Source     string    `json:"source"`
	LastPrice  float64   `json:"lastPrice"`
	FusedPrice float64   `json:"fusedPrice"`
	EMA        *float64  `json:"ema,omitempty"`
	Basis      *float64  `json:"basis,omitempty"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// RiskView is the latest halt, margin and failover activity.
type RiskView struct {
	LastHalt   *schema.Halt                `json:"lastHalt,omitempty"`
	HaltedAt   time.Time                   `json:"haltedAt"`
	Margin     *schema.UnifiedMargin       `json:"margin,omitempty"`
	Failovers  []schema.FailoverSuggestion `json:"failovers"`
	CommandErr string                      `json:"lastCommandError,omitempty"`
}

// Board folds events into views. It is safe for concurrent use.
type Board struct {
	mu     sync.RWMutex
	limit  int
	conns  map[string]*ConnStatus
	prices map[string]PriceView
	risk   RiskView
	lastEv time.Time
}

// NewBoard creates an empty board holding at most maxEntries symbols and
// maxEntries connections. The least recently updated entry is evicted
// first; disconnected connections go before connected ones.
func NewBoard(maxEntries int) *Board {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &Board{
		limit:  maxEntries,
		conns:  make(map[string]*ConnStatus),
		prices: make(map[string]PriceView),
	}
}

// Observe folds ev into the board.
func (b *Board) Observe(ev schema.Event) {
	at := time.Unix(0, ev.TsNano)
	if ev.TsNano == 0 {
		at = time.Now()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastEv = at

	switch ev.Type {
	case schema.EventTick:
		conn := b.conn(ev.Key, at)
		conn.Ticks += uint64(len(ev.Ticks))
		conn.LastTickAt = at
		for _, t := range ev.Ticks {
			if _, ok := b.prices[t.Symbol]; !ok && len(b.prices) >= b.limit {
				b.evictPrice()
			}
			b.prices[t.Symbol] = PriceView{
				Symbol:     t.Symbol,
				Source:     t.Source,
				LastPrice:  t.LastPrice,
				FusedPrice: t.FusedPrice,
				EMA:        t.EMA,
				Basis:      t.Basis,
				UpdatedAt:  at,
			}
		}
	case schema.EventStatus:
		if ev.Connected != nil {
			b.conn(ev.Key, at).Connected = *ev.Connected
		}
	case schema.EventError:
		if len(ev.Key) == 0 {
			b.risk.CommandErr = ev.Message
			return
		}
		b.conn(ev.Key, at).LastError = ev.Message
	case schema.EventFailoverSuggestion:
		if ev.Failover == nil {
			return
		}
		b.risk.Failovers = append(b.risk.Failovers, *ev.Failover)
		if n := len(b.risk.Failovers); n > maxFailovers {
			b.risk.Failovers = append([]schema.FailoverSuggestion(nil), b.risk.Failovers[n-maxFailovers:]...)
		}
	case schema.EventHaltTriggered:
		if ev.Halt != nil {
			h := *ev.Halt
			b.risk.LastHalt = &h
			b.risk.HaltedAt = at
		}
	case schema.EventUnifiedMargin:
		if ev.Margin != nil {
			m := *ev.Margin
			b.risk.Margin = &m
		}
	}
}

func (b *Board) conn(key string, at time.Time) *ConnStatus {
	c, ok := b.conns[key]
	if !ok {
		if len(b.conns) >= b.limit {
			b.evictConn()
		}
		c = &ConnStatus{Key: key}
		b.conns[key] = c
	}
	c.UpdatedAt = at
	return c
}

func (b *Board) evictPrice() {
	var (
		oldest string
		at     time.Time
		found  bool
	)
	for symbol, p := range b.prices {
		if !found || p.UpdatedAt.Before(at) {
			oldest, at, found = symbol, p.UpdatedAt, true
		}
	}
	if found {
		delete(b.prices, oldest)
	}
}

func (b *Board) evictConn() {
	var victim *ConnStatus
	for _, c := range b.conns {
		switch {
		case victim == nil:
			victim = c
		case victim.Connected && !c.Connected:
			victim = c
		case victim.Connected == c.Connected && c.UpdatedAt.Before(victim.UpdatedAt):
			victim = c
		}
	}
	if victim != nil {
		delete(b.conns, victim.Key)
	}
}

// Connections returns every known connection sorted by key.
func (b *Board) Connections() []ConnStatus {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]ConnStatus, 0, len(b.conns))
	for _, c := range b.conns {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Prices returns the latest price of every symbol sorted by symbol.
func (b *Board) Prices() []PriceView {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]PriceView, 0, len(b.prices))
	for _, p := range b.prices {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Price returns the latest price of symbol.
func (b *Board) Price(symbol string) (PriceView, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	p, ok := b.prices[symbol]
	return p, ok
}

// Risk returns a copy of the risk view.
func (b *Board) Risk() RiskView {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := b.risk
	out.Failovers = append([]schema.FailoverSuggestion{}, b.risk.Failovers...)
	return out
}

// LastEventAt is the time of the most recent observed event.
func (b *Board) LastEventAt() time.Time {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastEv
}
