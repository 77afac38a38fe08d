// Command feedsim serves simulated broker feeds: a binary streaming socket on
// /ws and a JSON server-push stream on /sse. Both walk the same prices.
// The -drop, -dup, -reorder and -max-delay flags inject faults per connection.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/bytedance/sonic"
	gorilla "github.com/gorilla/websocket"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"tickcore/internal/chaos"
	"tickcore/internal/codec"
	"tickcore/internal/schema"
)

func main() {
	if err := run(); err != nil {
		logs.Errorf("feedsim: %+v", err)
		os.Exit(1)
	}
}

func run() error {
	addrFlag := flag.String("addr", "127.0.0.1:8700", "listen address")
	intervalFlag := flag.Duration("interval", 250*time.Millisecond, "tick interval")
	pushDelayFlag := flag.Duration("push-delay", 0, "extra delay between server-push ticks, to provoke lag")
	seedFlag := flag.Int64("seed", 0, "fault injection seed (0 uses the clock)")
	dropFlag := flag.Float64("drop", 0, "probability of dropping a frame")
	dupFlag := flag.Float64("dup", 0, "probability of sending a frame twice")
	reorderFlag := flag.Int("reorder", 1, "reorder window in frames")
	maxDelayFlag := flag.Duration("max-delay", 0, "max random delay before sending a frame")
	flag.Parse()

	faults := chaos.Config{
		Seed:          *seedFlag,
		DropRate:      *dropFlag,
		DuplicateRate: *dupFlag,
		ReorderWindow: *reorderFlag,
		MaxDelay:      *maxDelayFlag,
	}
	if err := faults.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sim := newSimulator(time.Now().UnixNano())
	sim.faults = faults
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", sim.serveSocket(*intervalFlag))
	mux.HandleFunc("/sse", sim.servePush(*intervalFlag+*pushDelayFlag))

	srv := &http.Server{Addr: *addrFlag, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logs.Infof("feedsim listening on %s (ws: /ws, server-push: /sse?tokens=1,2)", *addrFlag)
	if faults.Enabled() {
		logs.Infof("fault injection: %+v", faults)
	}
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return errors.Wrap(err, "listen and serve")
	}
	return nil
}

type simulator struct {
	mu     sync.Mutex
	rnd    *rand.Rand
	prices map[uint32]float64
	faults chaos.Config
	conns  int64
}

func newSimulator(seed int64) *simulator {
	return &simulator{
		rnd:    rand.New(rand.NewSource(seed)),
		prices: make(map[uint32]float64),
	}
}

// next advances the random walk of every token and returns the new ticks.
func (s *simulator) next(tokens []uint32, mode schema.Mode) []schema.Tick {
	s.mu.Lock()
	defer s.mu.Unlock()
	ticks := make([]schema.Tick, 0, len(tokens))
	for _, token := range tokens {
		p, ok := s.prices[token]
		if !ok {
			p = 100 + float64(token%1000)
		}
		p = math.Max(0.05, math.Round((p+s.rnd.NormFloat64()*0.25)*100)/100)
		s.prices[token] = p

		tick := schema.Tick{Token: token, LastPrice: p, Mode: mode}
		if mode >= schema.ModeQuote {
			tick.LastQty = uint32(1 + s.rnd.Intn(50))
			tick.AvgPrice = p
			tick.Volume = uint32(s.rnd.Intn(1_000_000))
			tick.OHLC = &schema.OHLC{Open: p, High: p + 1, Low: p - 1, Close: p}
		}
		if mode == schema.ModeFull {
			depth := &schema.Depth{}
			for i := 0; i < schema.DepthLevels; i++ {
				step := float64(i+1) * 0.05
				depth.Buy[i] = schema.DepthLevel{Price: p - step, Qty: uint32(10 * (i + 1)), Orders: uint16(i + 1)}
				depth.Sell[i] = schema.DepthLevel{Price: p + step, Qty: uint32(10 * (i + 1)), Orders: uint16(i + 1)}
			}
			tick.Depth = depth
			tick.ExchangeTime = uint32(time.Now().Unix())
		}
		ticks = append(ticks, tick)
	}
	return ticks
}

// engine returns a fresh fault injector for one connection, or nil when
// injection is off.
func (s *simulator) engine() *chaos.Engine[[]byte] {
	if !s.faults.Enabled() {
		return nil
	}
	s.mu.Lock()
	s.conns++
	cfg := s.faults
	if cfg.Seed != 0 {
		cfg.Seed += s.conns
	}
	s.mu.Unlock()
	e, err := chaos.NewEngine[[]byte](cfg)
	if err != nil {
		logs.Errorf("chaos engine, err: %+v", err)
		return nil
	}
	return e
}

// deliver pushes payload through the injector and writes whatever comes out.
func deliver(ctx context.Context, e *chaos.Engine[[]byte], payload []byte, write func([]byte) error) error {
	for _, f := range e.Process(payload) {
		if f.Delay > 0 {
			t := time.NewTimer(f.Delay)
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-t.C:
			}
		}
		if err := write(f.Value); err != nil {
			return err
		}
	}
	return nil
}

type controlMessage struct {
	Action string          `json:"a"`
	Value  json.RawMessage `json:"v"`
}

func (s *simulator) serveSocket(interval time.Duration) http.HandlerFunc {
	upgrader := gorilla.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logs.Errorf("upgrade, err: %+v", err)
			return
		}
		defer conn.Close()

		var (
			mu     sync.Mutex
			tokens []uint32
			mode   = schema.ModeQuote
		)
		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				_, payload, err := conn.ReadMessage()
				if err != nil {
					return
				}
				var msg controlMessage
				if err := sonic.Unmarshal(payload, &msg); err != nil {
					continue
				}
				mu.Lock()
				switch msg.Action {
				case "subscribe":
					_ = sonic.Unmarshal(msg.Value, &tokens)
				case "mode":
					var v []json.RawMessage
					if sonic.Unmarshal(msg.Value, &v) == nil && len(v) == 2 && strings.Contains(string(v[0]), "full") {
						mode = schema.ModeFull
					}
				}
				mu.Unlock()
			}
		}()

		faults := s.engine()
		write := func(b []byte) error { return conn.WriteMessage(gorilla.BinaryMessage, b) }

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		heartbeat := time.NewTicker(time.Second)
		defer heartbeat.Stop()
		for {
			select {
			case <-done:
				return
			case <-r.Context().Done():
				return
			case <-heartbeat.C:
				if err := conn.WriteMessage(gorilla.BinaryMessage, []byte{0x00}); err != nil {
					return
				}
			case <-ticker.C:
				mu.Lock()
				subscribed, m := append([]uint32(nil), tokens...), mode
				mu.Unlock()
				if len(subscribed) == 0 {
					continue
				}
				frame := codec.AppendFrame(nil, s.next(subscribed, m))
				if err := deliver(r.Context(), faults, frame, write); err != nil {
					return
				}
			}
		}
	}
}

type pushTick struct {
	Token     uint32  `json:"token"`
	LastPrice float64 `json:"ltp"`
	Volume    uint32  `json:"volume,omitempty"`
}

func (s *simulator) servePush(interval time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tokens, err := parseTokens(r.URL.Query().Get("tokens"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming unsupported", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		faults := s.engine()
		var id uint64
		write := func(b []byte) error {
			id++
			if _, err := fmt.Fprintf(w, "id: %d\ndata: %s\n\n", id, b); err != nil {
				return err
			}
			flusher.Flush()
			return nil
		}

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-r.Context().Done():
				return
			case <-ticker.C:
				ticks := s.next(tokens, schema.ModeMinimal)
				out := make([]pushTick, 0, len(ticks))
				for _, t := range ticks {
					out = append(out, pushTick{Token: t.Token, LastPrice: t.LastPrice})
				}
				payload, err := sonic.Marshal(out)
				if err != nil {
					logs.Errorf("marshal push ticks, err: %+v", err)
					return
				}
				if err := deliver(r.Context(), faults, payload, write); err != nil {
					return
				}
			}
		}
	}
}

func parseTokens(raw string) ([]uint32, error) {
	if len(raw) == 0 {
		return nil, errors.New("tokens query is required")
	}
	parts := strings.Split(raw, ",")
	tokens := make([]uint32, 0, len(parts))
	for _, part := range parts {
		n, err := strconv.ParseUint(strings.TrimSpace(part), 10, 32)
		if err != nil {
			return nil, errors.Wrapf(err, "parse token %q", part)
		}
		tokens = append(tokens, uint32(n))
	}
	return tokens, nil
}
