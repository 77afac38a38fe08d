package recorder

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/yanun0323/errors"

	"tickcore/pkg/exception"
)

// PlaybackConfig controls tape playback.
type PlaybackConfig struct {
	Dir        string
	FilePrefix string
	// Speed paces frames by their receive time; 1 is real time, 0 disables pacing.
	Speed           float64
	DisableChecksum bool
	MaxPayloadSize  int
}

// Validate checks if the config is usable.
func (c PlaybackConfig) Validate() error {
	switch {
	case c.Dir == "":
		return errors.Wrap(exception.ErrConfigInvalid, "playback dir is empty")
	case c.Speed < 0:
		return errors.Wrap(exception.ErrConfigInvalid, "playback speed must be >= 0")
	case c.MaxPayloadSize < 0:
		return errors.Wrap(exception.ErrConfigInvalid, "playback max payload size must be >= 0")
	}
	return nil
}

// Clock sleeps between paced frames.
type Clock interface {
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Playback replays tape segments in file name order.
type Playback struct {
	cfg   PlaybackConfig
	clock Clock
}

// NewPlayback validates cfg and creates a playback.
func NewPlayback(cfg PlaybackConfig) (*Playback, error) {
	if cfg.FilePrefix == "" {
		cfg.FilePrefix = defaultFilePrefix
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Playback{cfg: cfg, clock: realClock{}}, nil
}

// WithClock swaps the clock implementation.
func (p *Playback) WithClock(clock Clock) *Playback {
	if clock != nil {
		p.clock = clock
	}
	return p
}

// Segments lists the tape files of the configured directory in replay order.
func (p *Playback) Segments() ([]string, error) {
	entries, err := os.ReadDir(p.cfg.Dir)
	if err != nil {
		return nil, errors.Wrapf(err, "read tape dir %s", p.cfg.Dir)
	}
	prefix := p.cfg.FilePrefix + "-"
	var files []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, segmentSuffix) {
			continue
		}
		files = append(files, filepath.Join(p.cfg.Dir, name))
	}
	sort.Strings(files)
	return files, nil
}

// Run calls handler for every frame on tape. The frame payload is only valid
// during the call.
func (p *Playback) Run(ctx context.Context, handler func(Frame) error) error {
	if handler == nil {
		return errors.Wrap(exception.ErrInvalidArgument, "playback handler is nil")
	}
	files, err := p.Segments()
	if err != nil {
		return err
	}
	var prev int64
	for _, path := range files {
		if err := p.play(ctx, path, handler, &prev); err != nil {
			return err
		}
	}
	return nil
}

func (p *Playback) play(ctx context.Context, path string, handler func(Frame) error, prev *int64) error {
	file, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open segment %s", path)
	}
	defer file.Close()

	reader := NewReader(file, ReaderOptions{
		DisableChecksum: p.cfg.DisableChecksum,
		MaxPayloadSize:  p.cfg.MaxPayloadSize,
	})
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		f, err := reader.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.Wrapf(err, "read %s", path)
		}
		if err := p.pace(ctx, f.RecvNano, prev); err != nil {
			return err
		}
		if err := handler(f); err != nil {
			return err
		}
	}
}

func (p *Playback) pace(ctx context.Context, current int64, prev *int64) error {
	if p.cfg.Speed <= 0 || current <= 0 {
		return nil
	}
	if *prev > 0 && current > *prev {
		d := time.Duration(float64(current-*prev) / p.cfg.Speed)
		if err := p.clock.Sleep(ctx, d); err != nil {
			return err
		}
	}
	*prev = current
	return nil
}
