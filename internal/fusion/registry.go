package fusion

import (
	"container/list"
	"slices"
	"time"
)

// Config bounds the registry. Zero values disable the bound.
type Config struct {
	// MaxSymbols evicts the least recently updated symbol once exceeded.
	MaxSymbols int
	// SourceTTL ignores and prunes source prices older than this.
	SourceTTL time.Duration
}

type sourcePrice struct {
	price     float64
	updatedAt time.Time
}

type entry struct {
	symbol  string
	sources map[string]sourcePrice
	elem    *list.Element
}

// Registry keeps the latest price of every source per symbol and
// reconciles them into a single fused price.
type Registry struct {
	cfg     Config
	now     func() time.Time
	entries map[string]*entry
	lru     *list.List
	scratch []float64
}

// NewRegistry creates an empty fusion registry.
func NewRegistry(cfg Config) *Registry {
	return &Registry{
		cfg:     cfg,
		now:     time.Now,
		entries: make(map[string]*entry),
		lru:     list.New(),
	}
}

// Fuse records price for (symbol, source) and returns the fused price.
// With fewer than two live sources it returns price unchanged, otherwise
// the median of the latest price of every source.
func (r *Registry) Fuse(symbol, source string, price float64) float64 {
	now := r.now()
	e := r.touch(symbol)
	e.sources[source] = sourcePrice{price: price, updatedAt: now}
	r.pruneStale(e, now)

	if len(e.sources) < 2 {
		return price
	}

	r.scratch = r.scratch[:0]
	for _, sp := range e.sources {
		r.scratch = append(r.scratch, sp.price)
	}
	return Median(r.scratch)
}

// Price returns the last price reported by source for symbol.
func (r *Registry) Price(symbol, source string) (float64, bool) {
	e, ok := r.entries[symbol]
	if !ok {
		return 0, false
	}
	sp, ok := e.sources[source]
	if !ok {
		return 0, false
	}
	if r.cfg.SourceTTL > 0 && r.now().Sub(sp.updatedAt) > r.cfg.SourceTTL {
		return 0, false
	}
	return sp.price, true
}

// Sources returns the number of sources currently held for symbol.
func (r *Registry) Sources(symbol string) int {
	e, ok := r.entries[symbol]
	if !ok {
		return 0
	}
	return len(e.sources)
}

// Len returns the number of tracked symbols.
func (r *Registry) Len() int {
	return len(r.entries)
}

func (r *Registry) touch(symbol string) *entry {
	if e, ok := r.entries[symbol]; ok {
		r.lru.MoveToFront(e.elem)
		return e
	}
	e := &entry{symbol: symbol, sources: make(map[string]sourcePrice, 2)}
	e.elem = r.lru.PushFront(e)
	r.entries[symbol] = e
	if r.cfg.MaxSymbols > 0 {
		for len(r.entries) > r.cfg.MaxSymbols {
			r.evictOldest()
		}
	}
	return e
}

func (r *Registry) evictOldest() {
	back := r.lru.Back()
	if back == nil {
		return
	}
	e := back.Value.(*entry)
	r.lru.Remove(back)
	delete(r.entries, e.symbol)
}

func (r *Registry) pruneStale(e *entry, now time.Time) {
	if r.cfg.SourceTTL <= 0 {
		return
	}
	for source, sp := range e.sources {
		if now.Sub(sp.updatedAt) > r.cfg.SourceTTL {
			delete(e.sources, source)
		}
	}
}

// Median returns the median of values, averaging the two middle values
// when the count is even. values is sorted in place.
func Median(values []float64) float64 {
	n := len(values)
	if n == 0 {
		return 0
	}
	slices.Sort(values)
	mid := n / 2
	if n%2 == 1 {
		return values[mid]
	}
	return (values[mid-1] + values[mid]) / 2
}
