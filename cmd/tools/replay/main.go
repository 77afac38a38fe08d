// Command replay prints the frames of a captured feed tape, decoding tick
// payloads with the same codecs the core uses.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/bytedance/sonic"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"tickcore/internal/codec"
	"tickcore/internal/recorder"
	"tickcore/internal/schema"
)

func main() {
	if err := run(); err != nil {
		logs.Errorf("replay: %+v", err)
		os.Exit(1)
	}
}

func run() error {
	dir := flag.String("dir", "testdata/tape", "tape directory")
	prefix := flag.String("prefix", "", "tape file prefix (default: tape)")
	speed := flag.Float64("speed", 0, "playback speed (1=real time, 0=no pacing)")
	noChecksum := flag.Bool("no-checksum", false, "disable checksum validation")
	maxPayload := flag.Int("max-payload", 0, "max payload size in bytes (0=unlimited)")
	decode := flag.Bool("decode", false, "print decoded ticks as JSON lines")
	flag.Parse()

	pb, err := recorder.NewPlayback(recorder.PlaybackConfig{
		Dir:             *dir,
		FilePrefix:      *prefix,
		Speed:           *speed,
		DisableChecksum: *noChecksum,
		MaxPayloadSize:  *maxPayload,
	})
	if err != nil {
		return errors.Wrap(err, "playback init")
	}

	out := bufio.NewWriter(os.Stdout)
	defer out.Flush()

	d := &decoder{}
	return pb.Run(context.Background(), func(f recorder.Frame) error {
		ticks, skipped, err := d.decode(f)
		fmt.Fprintf(out, "%06d key=%s source=%s binary=%t recv=%d len=%d ticks=%d skipped=%d\n",
			f.Seq, f.Key, f.Source, f.Binary, f.RecvNano, len(f.Payload), len(ticks), skipped)
		if err != nil {
			fmt.Fprintf(out, "  decode failed: %v\n", err)
			return nil
		}
		if !*decode {
			return nil
		}
		for _, tick := range ticks {
			line, err := sonic.Marshal(tick)
			if err != nil {
				return errors.Wrap(err, "marshal tick")
			}
			fmt.Fprintf(out, "  %s\n", line)
		}
		return nil
	})
}

type decoder struct {
	ticks []schema.Tick
	json  []codec.JSONTick
}

// decode turns one captured frame into ticks. Heartbeats yield nothing.
func (d *decoder) decode(f recorder.Frame) ([]schema.Tick, int, error) {
	if f.Binary {
		if codec.IsHeartbeat(f.Payload) {
			return nil, 0, nil
		}
		var skipped int
		d.ticks, skipped = codec.DecodeTicks(d.ticks[:0], f.Payload)
		return d.ticks, skipped, nil
	}

	var (
		skipped int
		err     error
	)
	d.json, skipped, err = codec.DecodeJSONTicks(d.json[:0], f.Payload)
	if err != nil {
		return nil, 0, err
	}
	d.ticks = d.ticks[:0]
	for _, jt := range d.json {
		d.ticks = append(d.ticks, jt.Tick)
	}
	return d.ticks, skipped, nil
}
