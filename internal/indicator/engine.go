package indicator

// DefaultHistoryCap bounds the per-symbol price history.
const DefaultHistoryCap = 500

// Config bounds the engine.
type Config struct {
	// HistoryCap is the per-symbol ring size.
	HistoryCap int
	// MaxSymbols drops the least recently updated symbol once exceeded; 0 disables.
	MaxSymbols int
}

type emaState struct {
	value  float64
	warmed bool
}

type series struct {
	history *History
	ema     map[int]*emaState
	seq     uint64
}

// Engine maintains a bounded price history per symbol and an
// incrementally updated exponential moving average per period.
type Engine struct {
	cfg    Config
	series map[string]*series
	seq    uint64
}

// NewEngine creates an indicator engine.
func NewEngine(cfg Config) *Engine {
	if cfg.HistoryCap <= 0 {
		cfg.HistoryCap = DefaultHistoryCap
	}
	return &Engine{
		cfg:    cfg,
		series: make(map[string]*series),
	}
}

// UpdateEMA appends price to the symbol history and returns the EMA for
// period. ok is false until period prices have been seen.
func (e *Engine) UpdateEMA(symbol string, price float64, period int) (float64, bool) {
	s := e.get(symbol)
	s.history.Append(price)

	if period <= 0 || s.history.Len() < period {
		return 0, false
	}

	st, ok := s.ema[period]
	if !ok {
		st = &emaState{}
		s.ema[period] = st
	}
	if !st.warmed {
		st.value = emaOver(s.history, period)
		st.warmed = true
		return st.value, true
	}

	k := smoothing(period)
	st.value = price*k + st.value*(1-k)
	return st.value, true
}

// HistoryLen returns the retained history length of symbol.
func (e *Engine) HistoryLen(symbol string) int {
	s, ok := e.series[symbol]
	if !ok {
		return 0
	}
	return s.history.Len()
}

// Len returns the number of tracked symbols.
func (e *Engine) Len() int {
	return len(e.series)
}

// Forget drops every state held for symbol.
func (e *Engine) Forget(symbol string) {
	delete(e.series, symbol)
}

func (e *Engine) get(symbol string) *series {
	e.seq++
	if s, ok := e.series[symbol]; ok {
		s.seq = e.seq
		return s
	}
	s := &series{
		history: NewHistory(e.cfg.HistoryCap),
		ema:     make(map[int]*emaState, 1),
		seq:     e.seq,
	}
	e.series[symbol] = s
	if e.cfg.MaxSymbols > 0 && len(e.series) > e.cfg.MaxSymbols {
		e.evictOldest(symbol)
	}
	return s
}

func (e *Engine) evictOldest(keep string) {
	var (
		oldest    string
		oldestSeq uint64
		found     bool
	)
	for symbol, s := range e.series {
		if symbol == keep {
			continue
		}
		if !found || s.seq < oldestSeq {
			oldest, oldestSeq, found = symbol, s.seq, true
		}
	}
	if found {
		delete(e.series, oldest)
	}
}

// EMA recomputes the exponential moving average over prices from
// scratch, seeding from the first price. ok is false when fewer than
// period prices are given.
func EMA(prices []float64, period int) (float64, bool) {
	if period <= 0 || len(prices) < period {
		return 0, false
	}
	k := smoothing(period)
	ema := prices[0]
	for _, p := range prices[1:] {
		ema = p*k + ema*(1-k)
	}
	return ema, true
}

func emaOver(h *History, period int) float64 {
	k := smoothing(period)
	ema := h.At(0)
	for i := 1; i < h.Len(); i++ {
		ema = h.At(i)*k + ema*(1-k)
	}
	return ema
}

func smoothing(period int) float64 {
	return 2 / (float64(period) + 1)
}
