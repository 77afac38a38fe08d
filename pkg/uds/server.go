package uds

import (
	"context"
	"net"
	"os"
	"sync"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"tickcore/pkg/exception"
)

// Handler serves one accepted connection. The connection is closed when it returns.
type Handler func(ctx context.Context, conn *net.UnixConn)

// Server listens for Unix domain socket connections.
type Server struct {
	addr net.UnixAddr

	mu sync.Mutex
	ln *net.UnixListener
	wg sync.WaitGroup
}

// NewServer creates a server for the provided socket path.
func NewServer(path string) (*Server, error) {
	if path == "" {
		return nil, exception.ErrEmptyPathUDS
	}
	return &Server{addr: net.UnixAddr{Name: path, Net: unixNetwork}}, nil
}

// Path returns the configured socket path.
func (s *Server) Path() string {
	if s == nil {
		return ""
	}
	return s.addr.Name
}

// Listen starts listening on the configured socket path.
// It removes a stale socket file when present.
func (s *Server) Listen() error {
	if s == nil {
		return exception.ErrNilServerUDS
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln != nil {
		return exception.ErrListeningUDS
	}
	if err := RemoveIfExists(s.addr.Name); err != nil {
		return err
	}
	ln, err := net.ListenUnix(unixNetwork, &s.addr)
	if err != nil {
		return errors.Wrapf(err, "listen %s", s.addr.Name)
	}
	ln.SetUnlinkOnClose(true)
	s.ln = ln
	return nil
}

// Serve accepts connections until ctx is done, running handler on each in
// its own goroutine. It returns after every handler has returned.
func (s *Server) Serve(ctx context.Context, handler Handler) error {
	if s == nil {
		return exception.ErrNilServerUDS
	}
	s.mu.Lock()
	ln := s.ln
	s.mu.Unlock()
	if ln == nil {
		return exception.ErrNotListeningUDS
	}

	defer s.wg.Wait()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, func() { _ = s.Close() })
	defer stop()

	for {
		conn, err := ln.AcceptUnix()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "accept")
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer conn.Close()
			stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
			defer stop()
			handler(ctx, conn)
		}()
	}
}

// Close stops the listener.
func (s *Server) Close() error {
	if s == nil {
		return exception.ErrNilServerUDS
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	err := s.ln.Close()
	s.ln = nil
	if err != nil {
		logs.Errorf("close uds listener %s, err: %+v", s.addr.Name, err)
	}
	return err
}

// RemoveIfExists removes the socket file if it exists.
func RemoveIfExists(path string) error {
	if path == "" {
		return exception.ErrEmptyPathUDS
	}
	info, err := os.Lstat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrapf(err, "stat %s", path)
	}
	if info.Mode()&os.ModeSocket == 0 {
		return errors.Wrapf(exception.ErrPathNotSocketUDS, "path: %s", path)
	}
	return os.Remove(path)
}
