// Command chaos rewrites a captured feed tape with injected faults, so the
// result can be replayed against the core to rehearse lossy feeds.
package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"tickcore/internal/chaos"
	"tickcore/internal/recorder"
	"tickcore/pkg/exception"
)

func main() {
	if err := run(); err != nil {
		logs.Errorf("chaos: %+v", err)
		os.Exit(1)
	}
}

func run() error {
	inputDir := flag.String("input-dir", "testdata/tape", "input tape directory")
	inputPrefix := flag.String("input-prefix", "", "input tape file prefix (default: tape)")
	outputDir := flag.String("output-dir", "testdata/tape_chaos", "output tape directory")
	outputPrefix := flag.String("output-prefix", "chaos", "output tape file prefix")
	seed := flag.Int64("seed", 0, "RNG seed (0=now)")
	dropRate := flag.Float64("drop-rate", 0, "drop probability [0-1]")
	dupRate := flag.Float64("dup-rate", 0, "duplicate probability [0-1]")
	reorderWindow := flag.Int("reorder-window", 1, "reorder window (>=1)")
	maxDelay := flag.Duration("max-delay", 0, "max receive delay added per frame")
	noChecksum := flag.Bool("no-checksum", false, "disable checksum validation")
	flag.Parse()

	pb, err := recorder.NewPlayback(recorder.PlaybackConfig{
		Dir:             *inputDir,
		FilePrefix:      *inputPrefix,
		DisableChecksum: *noChecksum,
	})
	if err != nil {
		return errors.Wrap(err, "playback init")
	}

	engine, err := chaos.NewEngine[recorder.Frame](chaos.Config{
		Seed:          *seed,
		DropRate:      *dropRate,
		DuplicateRate: *dupRate,
		ReorderWindow: *reorderWindow,
		MaxDelay:      *maxDelay,
	})
	if err != nil {
		return err
	}

	outCfg := recorder.DefaultConfig(*outputDir)
	outCfg.FilePrefix = *outputPrefix
	writer, err := recorder.NewWriter(outCfg)
	if err != nil {
		return errors.Wrap(err, "writer init")
	}
	ctx := context.Background()
	if err := writer.Start(ctx); err != nil {
		return err
	}

	var in int
	err = pb.Run(ctx, func(f recorder.Frame) error {
		in++
		f.Payload = append([]byte(nil), f.Payload...)
		return appendAll(writer, engine.Process(f))
	})
	if err == nil {
		err = appendAll(writer, engine.Flush())
	}
	if cerr := writer.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	logs.Infof("chaos wrote %d of %d frames into %s", writer.Written(), in, *outputDir)
	return nil
}

// appendAll writes released frames, shifting their receive time by the
// injected delay. A full queue is retried rather than dropped.
func appendAll(w *recorder.Writer, frames []chaos.Delayed[recorder.Frame]) error {
	for _, d := range frames {
		f := d.Value
		f.RecvNano += int64(d.Delay)
		for {
			err := w.TryAppend(f)
			if err == nil {
				break
			}
			if err != exception.ErrTapeQueueFull {
				return err
			}
			time.Sleep(time.Millisecond)
		}
	}
	return nil
}
