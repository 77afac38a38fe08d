package host

import (
	"bufio"
	"bytes"
	"context"
	"net"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/yanun0323/logs"

	"tickcore/internal/bus"
	"tickcore/internal/obs"
	"tickcore/internal/schema"
)

const (
	DefaultClientQueueSize = 4096
	maxCommandSize         = 1 << 20
	writeTimeout           = 5 * time.Second
)

// Submitter accepts raw JSON commands.
type Submitter interface {
	SubmitRaw(ctx context.Context, payload []byte) error
}

// Bridge connects host processes to the core over newline-delimited JSON:
// each line read from a client is a command, each event is written to every
// connected client as one line.
type Bridge struct {
	submitter Submitter
	metrics   *obs.Metrics
	queueSize int

	mu      sync.Mutex
	clients map[uint64]*bus.Queue[[]byte]
	nextID  uint64
}

// NewBridge creates a bridge submitting into s.
func NewBridge(s Submitter, metrics *obs.Metrics) *Bridge {
	return &Bridge{
		submitter: s,
		metrics:   metrics,
		queueSize: DefaultClientQueueSize,
		clients:   make(map[uint64]*bus.Queue[[]byte]),
	}
}

// Clients returns the number of connected clients.
func (b *Bridge) Clients() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

// Handle serves one host connection until it closes or ctx is done.
func (b *Bridge) Handle(ctx context.Context, conn *net.UnixConn) {
	id, out := b.register()
	defer b.unregister(id)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		out.Run(ctx, func(line []byte) {
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if _, err := conn.Write(line); err != nil {
				logs.Errorf("host client %d write, err: %+v", id, err)
				_ = conn.Close()
			}
		})
	}()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 4096), maxCommandSize)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		if err := b.submitter.SubmitRaw(ctx, bytes.Clone(line)); err != nil {
			logs.Errorf("host client %d submit command, err: %+v", id, err)
			break
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		logs.Errorf("host client %d read, err: %+v", id, err)
	}

	b.unregister(id)
	wg.Wait()
}

// Broadcast encodes ev once and queues it for every client. Slow clients drop events.
func (b *Bridge) Broadcast(ev schema.Event) {
	payload, err := sonic.Marshal(ev)
	if err != nil {
		logs.Errorf("encode event %s, err: %+v", ev.Type, err)
		return
	}
	line := append(payload, '\n')

	b.mu.Lock()
	defer b.mu.Unlock()
	for id, out := range b.clients {
		if err := out.TryPublish(line); err != nil {
			b.metrics.IncQueueDrop()
			if err == bus.ErrQueueFull {
				logs.Errorf("host client %d queue full, drop %s event", id, ev.Type)
			}
		}
	}
}

func (b *Bridge) register() (uint64, *bus.Queue[[]byte]) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	out := bus.NewQueue[[]byte](b.queueSize)
	b.clients[b.nextID] = out
	logs.Infof("host client %d connected", b.nextID)
	return b.nextID, out
}

func (b *Bridge) unregister(id uint64) {
	b.mu.Lock()
	out, ok := b.clients[id]
	delete(b.clients, id)
	b.mu.Unlock()
	if ok {
		out.Close()
		logs.Infof("host client %d disconnected", id)
	}
}
