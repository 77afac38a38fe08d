package feed

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"tickcore/internal/schema"
)

// Notification is a transport callback posted back to the loop that owns the Manager.
type Notification struct {
	Kind  NotificationKind
	Key   string
	Gen   uuid.UUID
	Frame Frame
	Err   error
}

// Poster delivers a notification to the owner loop. It may block until ctx is done.
type Poster func(ctx context.Context, n Notification) error

// session is one connection attempt. It owns the reader goroutine and the transport handle.
type session struct {
	key    string
	gen    uuid.UUID
	cancel context.CancelFunc
	done   chan struct{}

	mu        sync.Mutex
	transport Transport
	closed    bool
}

func newSession(key string, gen uuid.UUID) *session {
	return &session{key: key, gen: gen, done: make(chan struct{})}
}

func (s *session) start(parent context.Context, wg *sync.WaitGroup, opener Opener, req schema.ConnectRequest, post Poster) {
	ctx, cancel := context.WithCancel(parent)
	s.cancel = cancel
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(s.done)
		s.run(ctx, opener, req, post)
	}()
}

func (s *session) run(ctx context.Context, opener Opener, req schema.ConnectRequest, post Poster) {
	t, err := opener.Open(ctx, req)
	if err != nil {
		if ctx.Err() == nil {
			_ = post(ctx, s.notification(NotifyFailed, Frame{}, err))
		}
		return
	}
	if !s.attach(t) {
		_ = t.Close()
		return
	}
	if err := post(ctx, s.notification(NotifyConnected, Frame{}, nil)); err != nil {
		return
	}

	for {
		frame, err := t.Next(ctx)
		if err != nil {
			if ctx.Err() == nil {
				_ = post(ctx, s.notification(NotifyFailed, Frame{}, err))
			}
			return
		}
		if len(frame.Payload) == 0 {
			continue
		}
		if err := post(ctx, s.notification(NotifyFrame, frame, nil)); err != nil {
			return
		}
	}
}

func (s *session) notification(kind NotificationKind, frame Frame, err error) Notification {
	return Notification{Kind: kind, Key: s.key, Gen: s.gen, Frame: frame, Err: err}
}

// attach stores the opened transport unless the session was stopped while dialing.
func (s *session) attach(t Transport) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.transport = t
	return true
}

// stop closes the transport synchronously and cancels the reader.
func (s *session) stop() error {
	if s == nil {
		return nil
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.transport == nil {
		return nil
	}
	return s.transport.Close()
}
