package sse

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"mime"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/yanun0323/errors"

	"tickcore/pkg/exception"
)

const (
	contentType    = "text/event-stream"
	maxLineSize    = 1 << 20
	initialBufSize = 4 << 10
)

// Event is a single server-sent event.
type Event struct {
	ID    string
	Type  string
	Data  []byte
	Retry time.Duration
}

// Dialer opens event streams against one url.
type Dialer struct {
	url    string
	header http.Header
	client *http.Client
}

// NewDialer returns a dialer for url. A nil client uses a client without timeout.
func NewDialer(url string, header http.Header, client *http.Client) *Dialer {
	if client == nil {
		client = &http.Client{}
	}
	return &Dialer{url: url, header: header, client: client}
}

// Dial issues the stream request and validates the response.
func (d *Dialer) Dial(ctx context.Context) (*Stream, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "new request")
	}
	for key, values := range d.header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	req.Header.Set("Accept", contentType)
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "get %s", d.url)
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, errors.Wrapf(exception.ErrServerPushStatus, "status: %d", resp.StatusCode)
	}
	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if mediaType != contentType {
		_ = resp.Body.Close()
		return nil, errors.Wrapf(exception.ErrServerPushContentType, "content type: %s", mediaType)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, initialBufSize), maxLineSize)
	return &Stream{body: resp.Body, scanner: scanner}, nil
}

// Stream reads events from an open response body.
type Stream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	lastID  string
	once    sync.Once
}

// LastEventID returns the id of the last dispatched event.
func (s *Stream) LastEventID() string {
	return s.lastID
}

// Next blocks until the next event with data is dispatched.
func (s *Stream) Next() (Event, error) {
	var (
		ev      Event
		data    bytes.Buffer
		hasData bool
	)
	for s.scanner.Scan() {
		line := s.scanner.Bytes()
		if len(line) == 0 {
			if !hasData {
				ev = Event{}
				continue
			}
			ev.Data = bytes.Clone(data.Bytes())
			if ev.ID != "" {
				s.lastID = ev.ID
			}
			return ev, nil
		}
		if line[0] == ':' {
			continue
		}

		field, value := splitField(line)
		switch string(field) {
		case "data":
			if hasData {
				data.WriteByte('\n')
			}
			data.Write(value)
			hasData = true
		case "event":
			ev.Type = string(value)
		case "id":
			ev.ID = string(value)
		case "retry":
			if ms, err := strconv.Atoi(string(value)); err == nil && ms >= 0 {
				ev.Retry = time.Duration(ms) * time.Millisecond
			}
		}
	}
	if err := s.scanner.Err(); err != nil {
		return Event{}, err
	}
	return Event{}, io.EOF
}

// Close releases the response body. It is safe to call more than once.
func (s *Stream) Close() error {
	var err error
	s.once.Do(func() {
		err = s.body.Close()
	})
	return err
}

func splitField(line []byte) ([]byte, []byte) {
	i := bytes.IndexByte(line, ':')
	if i < 0 {
		return line, nil
	}
	value := line[i+1:]
	if len(value) > 0 && value[0] == ' ' {
		value = value[1:]
	}
	return line[:i], value
}
