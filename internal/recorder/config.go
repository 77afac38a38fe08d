package recorder

import (
	"time"

	"github.com/yanun0323/errors"

	"tickcore/pkg/exception"
)

const (
	defaultSegmentMaxBytes int64 = 256 << 20
	defaultQueueSize             = 4096
	defaultBufferSize            = 256 * 1024
	defaultFilePrefix            = "tape"
	segmentSuffix                = ".tape"
)

var defaultSegmentMaxDuration = 15 * time.Minute

// Config controls the tape writer.
type Config struct {
	Dir                string
	SegmentMaxBytes    int64
	SegmentMaxDuration time.Duration
	QueueSize          int
	BufferSize         int
	FilePrefix         string
	FlushInterval      time.Duration
	SyncInterval       time.Duration
	// CopyPayload copies frames on append; set it when the caller reuses buffers.
	CopyPayload bool
}

// DefaultConfig returns a baseline writer config for dir.
func DefaultConfig(dir string) Config {
	return Config{
		Dir:                dir,
		SegmentMaxBytes:    defaultSegmentMaxBytes,
		SegmentMaxDuration: defaultSegmentMaxDuration,
		QueueSize:          defaultQueueSize,
		BufferSize:         defaultBufferSize,
		FilePrefix:         defaultFilePrefix,
		FlushInterval:      time.Second,
	}
}

func (c Config) withDefaults() Config {
	if c.SegmentMaxBytes == 0 {
		c.SegmentMaxBytes = defaultSegmentMaxBytes
	}
	if c.QueueSize == 0 {
		c.QueueSize = defaultQueueSize
	}
	if c.BufferSize == 0 {
		c.BufferSize = defaultBufferSize
	}
	if c.FilePrefix == "" {
		c.FilePrefix = defaultFilePrefix
	}
	return c
}

// Validate checks if the config is usable.
func (c Config) Validate() error {
	switch {
	case c.Dir == "":
		return errors.Wrap(exception.ErrConfigInvalid, "tape dir is empty")
	case c.SegmentMaxBytes <= 0:
		return errors.Wrap(exception.ErrConfigInvalid, "tape segment max bytes must be > 0")
	case c.QueueSize <= 0:
		return errors.Wrap(exception.ErrConfigInvalid, "tape queue size must be > 0")
	case c.BufferSize <= 0:
		return errors.Wrap(exception.ErrConfigInvalid, "tape buffer size must be > 0")
	case c.FilePrefix == "":
		return errors.Wrap(exception.ErrConfigInvalid, "tape file prefix is empty")
	case c.FlushInterval < 0, c.SyncInterval < 0:
		return errors.Wrap(exception.ErrConfigInvalid, "tape flush and sync intervals must be >= 0")
	}
	return nil
}
