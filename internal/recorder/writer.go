package recorder

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"tickcore/pkg/exception"
)

// Writer appends frames to tape segments from a buffered queue. Appends never
// block the caller.
type Writer struct {
	cfg Config
	ch  chan Frame
	wg  sync.WaitGroup
	err atomic.Pointer[error]
	seq atomic.Uint64

	started atomic.Bool
	closed  atomic.Bool
	dropped atomic.Uint64
	written atomic.Uint64
}

// NewWriter creates a tape writer and ensures the target directory exists.
func NewWriter(cfg Config) (*Writer, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create tape dir %s", cfg.Dir)
	}
	return &Writer{
		cfg: cfg,
		ch:  make(chan Frame, cfg.QueueSize),
	}, nil
}

// Start runs the writer loop in a new goroutine.
func (w *Writer) Start(ctx context.Context) error {
	if !w.started.CompareAndSwap(false, true) {
		return exception.ErrTapeAlreadyStarted
	}
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.run(ctx)
	}()
	return nil
}

// Close stops the writer and flushes any buffered data.
func (w *Writer) Close() error {
	if w.closed.CompareAndSwap(false, true) {
		close(w.ch)
	}
	w.wg.Wait()
	return w.Err()
}

// Err returns the first error observed by the writer, if any.
func (w *Writer) Err() error {
	if p := w.err.Load(); p != nil {
		return *p
	}
	return nil
}

// Dropped is the number of frames refused because the queue was full.
func (w *Writer) Dropped() uint64 { return w.dropped.Load() }

// Written is the number of frames written to a segment.
func (w *Writer) Written() uint64 { return w.written.Load() }

// TryAppend stamps f with the next sequence number and enqueues it.
func (w *Writer) TryAppend(f Frame) error {
	if w.closed.Load() {
		return exception.ErrTapeClosed
	}
	if !w.started.Load() {
		return exception.ErrTapeNotStarted
	}
	if err := w.Err(); err != nil {
		return err
	}
	if len(f.Key) > math.MaxUint16 || len(f.Source) > math.MaxUint16 || uint64(len(f.Payload)) > math.MaxUint32 {
		return exception.ErrTapePayloadTooLarge
	}
	if w.cfg.CopyPayload && len(f.Payload) > 0 {
		f.Payload = append([]byte(nil), f.Payload...)
	}
	if f.RecvNano == 0 {
		f.RecvNano = time.Now().UnixNano()
	}
	f.Seq = w.seq.Add(1)

	select {
	case w.ch <- f:
		return nil
	default:
		w.dropped.Add(1)
		return exception.ErrTapeQueueFull
	}
}

func (w *Writer) run(ctx context.Context) {
	var (
		seg         *segment
		segID       uint64
		headerBuf   = make([]byte, recordHeaderSize)
		flushC      <-chan time.Time
		syncC       <-chan time.Time
		flushTicker *time.Ticker
		syncTicker  *time.Ticker
	)

	if w.cfg.FlushInterval > 0 {
		flushTicker = time.NewTicker(w.cfg.FlushInterval)
		flushC = flushTicker.C
	}
	if w.cfg.SyncInterval > 0 {
		syncTicker = time.NewTicker(w.cfg.SyncInterval)
		syncC = syncTicker.C
	}

	defer func() {
		if flushTicker != nil {
			flushTicker.Stop()
		}
		if syncTicker != nil {
			syncTicker.Stop()
		}
		if err := seg.close(); err != nil {
			w.setErr(err)
		}
	}()

	write := func(f Frame) bool {
		if err := w.write(&seg, &segID, headerBuf, f); err != nil {
			w.setErr(err)
			logs.Errorf("tape write, err: %+v", err)
			return false
		}
		return true
	}

	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case f, ok := <-w.ch:
					if !ok || !write(f) {
						return
					}
				default:
					return
				}
			}
		case f, ok := <-w.ch:
			if !ok || !write(f) {
				return
			}
		case <-flushC:
			if err := seg.flush(); err != nil {
				w.setErr(err)
				return
			}
		case <-syncC:
			if err := seg.sync(); err != nil {
				w.setErr(err)
				return
			}
		}
	}
}

func (w *Writer) write(seg **segment, segID *uint64, headerBuf []byte, f Frame) error {
	h := headerOf(f)
	now := time.Now()
	size := int64(recordHeaderSize + h.bodyLen() + recordChecksumSize)
	if w.shouldRotate(*seg, now, size) {
		if err := (*seg).close(); err != nil {
			return err
		}
		opened, err := w.openSegment(segID, now)
		if err != nil {
			return err
		}
		*seg = opened
	}

	encodeHeader(headerBuf, h)
	crc := crc32Frame(headerBuf, f)
	var sum [recordChecksumSize]byte
	binary.LittleEndian.PutUint32(sum[:], crc)

	buf := (*seg).buf
	if _, err := buf.Write(headerBuf); err != nil {
		return errors.Wrap(err, "write header")
	}
	if _, err := buf.WriteString(f.Key); err != nil {
		return errors.Wrap(err, "write key")
	}
	if _, err := buf.WriteString(f.Source); err != nil {
		return errors.Wrap(err, "write source")
	}
	if _, err := buf.Write(f.Payload); err != nil {
		return errors.Wrap(err, "write payload")
	}
	if _, err := buf.Write(sum[:]); err != nil {
		return errors.Wrap(err, "write checksum")
	}
	(*seg).size += size
	w.written.Add(1)
	return nil
}

func crc32Frame(header []byte, f Frame) uint32 {
	body := make([]byte, 0, len(f.Key)+len(f.Source)+len(f.Payload))
	body = append(body, f.Key...)
	body = append(body, f.Source...)
	body = append(body, f.Payload...)
	return checksum(header, body)
}

func (w *Writer) shouldRotate(seg *segment, now time.Time, next int64) bool {
	if seg == nil {
		return true
	}
	if seg.size > 0 && seg.size+next > w.cfg.SegmentMaxBytes {
		return true
	}
	return w.cfg.SegmentMaxDuration > 0 && now.Sub(seg.openedAt) >= w.cfg.SegmentMaxDuration
}

func (w *Writer) openSegment(segID *uint64, now time.Time) (*segment, error) {
	ts := now.UTC().Format("20060102-150405")
	for {
		*segID++
		name := fmt.Sprintf("%s-%s-%06d%s", w.cfg.FilePrefix, ts, *segID, segmentSuffix)
		path := filepath.Join(w.cfg.Dir, name)
		file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
		if err != nil {
			if os.IsExist(err) {
				continue
			}
			return nil, errors.Wrapf(err, "open segment %s", path)
		}
		return &segment{
			file:     file,
			buf:      bufio.NewWriterSize(file, w.cfg.BufferSize),
			openedAt: now,
		}, nil
	}
}

func (w *Writer) setErr(err error) {
	if err == nil {
		return
	}
	w.err.CompareAndSwap(nil, &err)
}

type segment struct {
	file     *os.File
	buf      *bufio.Writer
	size     int64
	openedAt time.Time
}

func (s *segment) flush() error {
	if s == nil {
		return nil
	}
	return s.buf.Flush()
}

func (s *segment) sync() error {
	if s == nil {
		return nil
	}
	if err := s.buf.Flush(); err != nil {
		return err
	}
	return s.file.Sync()
}

func (s *segment) close() error {
	if s == nil {
		return nil
	}
	if err := s.sync(); err != nil {
		_ = s.file.Close()
		return err
	}
	return s.file.Close()
}
