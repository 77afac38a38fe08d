package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	pyroscope "github.com/grafana/pyroscope-go"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"

	"tickcore/internal/admin"
	"tickcore/internal/core"
	"tickcore/internal/feed"
	"tickcore/internal/host"
	"tickcore/internal/journal"
	"tickcore/internal/obs"
	"tickcore/internal/ops"
	"tickcore/internal/recorder"
	"tickcore/internal/schema"
	"tickcore/pkg/uds"
)

func main() {
	if err := run(); err != nil {
		logs.Errorf("tickcore: %+v", err)
		os.Exit(1)
	}
}

func run() error {
	configFlag := flag.String("config", "", "YAML or JSON config file")
	envFlag := flag.String("env", ".env", ".env file to load before reading TICKCORE_* overrides")
	socketFlag := flag.String("socket", "", "host bridge socket path (overrides config)")
	statsFlag := flag.Duration("stats", 15*time.Second, "metrics log interval, 0 disables")
	tapeFlag := flag.String("tape", "", "capture raw feed frames into this directory (overrides config)")
	adminFlag := flag.String("admin", "", "admin HTTP listen address (overrides config)")
	flag.Parse()

	if err := ops.LoadEnv(*envFlag); err != nil {
		return err
	}
	loaded, err := ops.Load(*configFlag)
	if err != nil {
		return errors.Wrap(err, "load config")
	}
	if len(*socketFlag) != 0 {
		loaded.Socket = *socketFlag
	}
	if len(*adminFlag) != 0 {
		loaded.AdminAddr = *adminFlag
	}
	if len(*tapeFlag) != 0 {
		if loaded.Tape == nil {
			cfg := recorder.DefaultConfig(*tapeFlag)
			loaded.Tape = &cfg
		}
		loaded.Tape.Dir = *tapeFlag
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		select {
		case <-sys.Shutdown():
			stop()
		case <-ctx.Done():
		}
	}()

	if len(loaded.Profiling.ServerAddress) != 0 {
		profiler, err := startProfiler(loaded.Profiling)
		if err != nil {
			return err
		}
		defer func() {
			_ = profiler.Stop()
		}()
	}

	metrics := obs.NewMetrics()
	loaded.Core.Metrics = metrics

	if loaded.Tape != nil {
		tape, err := startTape(*loaded.Tape)
		if err != nil {
			return err
		}
		defer func() {
			if err := tape.Close(); err != nil {
				logs.Errorf("close tape, err: %+v", err)
			}
			logs.Infof("tape closed, written: %d, dropped: %d", tape.Written(), tape.Dropped())
		}()
		loaded.Core.Tap = func(info feed.Info, f feed.Frame) {
			_ = tape.TryAppend(recorder.Frame{
				Key:     info.Key,
				Source:  info.Source,
				Binary:  f.Binary,
				Payload: f.Payload,
			})
		}
	}
	c, err := core.New(loaded.Core)
	if err != nil {
		return errors.Wrap(err, "new core")
	}

	var jr *journal.Journal
	if loaded.Journal.Enabled() {
		db, err := journal.Open(journal.Option{
			Host:     loaded.Journal.Host,
			Port:     loaded.Journal.Port,
			User:     loaded.Journal.User,
			Password: loaded.Journal.Password,
			Database: loaded.Journal.Database,
			SSLMode:  loaded.Journal.SSLMode,
		})
		if err != nil {
			return errors.Wrap(err, "open journal")
		}
		jr = journal.New(db, metrics)
		defer func() {
			if err := jr.Close(); err != nil {
				logs.Errorf("close journal, err: %+v", err)
			}
		}()
	}

	if err := os.MkdirAll(filepath.Dir(loaded.Socket), 0o755); err != nil {
		return errors.Wrapf(err, "create socket dir for %s", loaded.Socket)
	}
	server, err := uds.NewServer(loaded.Socket)
	if err != nil {
		return err
	}
	if err := server.Listen(); err != nil {
		return err
	}
	bridge := host.NewBridge(c, metrics)
	var wg sync.WaitGroup

	var board *admin.Board
	if len(loaded.AdminAddr) != 0 {
		board = admin.NewBoard(loaded.Core.Fusion.MaxSymbols)
		api, err := admin.NewServer(board, metrics, bridge.Clients)
		if err != nil {
			return errors.Wrap(err, "new admin server")
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := api.Run(ctx, loaded.AdminAddr); err != nil {
				logs.Errorf("admin api stopped, err: %+v", err)
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := server.Serve(ctx, bridge.Handle); err != nil {
			logs.Errorf("host bridge stopped, err: %+v", err)
			stop()
		}
	}()

	if jr != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			jr.Run(ctx)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		for ev := range c.Events() {
			bridge.Broadcast(ev)
			if jr != nil {
				jr.Record(ev)
			}
			if board != nil {
				board.Observe(ev)
			}
		}
	}()

	if *statsFlag > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			reportStats(ctx, metrics, *statsFlag)
		}()
	}

	for i := range loaded.Connections {
		req := loaded.Connections[i]
		if err := c.Submit(ctx, schema.Command{Type: schema.CommandConnect, Connect: &req}); err != nil {
			return errors.Wrapf(err, "connect %s", req.ConnectionKey())
		}
	}

	logs.Infof("tickcore listening on %s, connections: %d", loaded.Socket, len(loaded.Connections))
	err = c.Run(ctx)
	stop()
	wg.Wait()
	return err
}

func reportStats(ctx context.Context, metrics *obs.Metrics, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	var sampler obs.RuntimeSampler
	sampler.Sample()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s := metrics.Snapshot()
			logs.Infof("stats frames=%d ticks=%d skips=%d reconnects=%d failovers=%d halts=%v rejected=%d drops=%d frame_avg=%s frame_max=%s",
				s.Frames, s.Ticks, s.DecodeSkips, s.Reconnects, s.Failovers, s.HaltCounts,
				s.CommandsRejected, s.QueueDrops, s.FrameLatency.Avg, s.FrameLatency.Max)
			logs.Infof("runtime %s", sampler.Line(sampler.Sample()))
		}
	}
}

// startTape runs the writer until Close so frames queued during shutdown
// still reach disk.
func startTape(cfg recorder.Config) (*recorder.Writer, error) {
	w, err := recorder.NewWriter(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "new tape writer")
	}
	if err := w.Start(context.Background()); err != nil {
		return nil, err
	}
	logs.Infof("capturing feed frames into %s", cfg.Dir)
	return w, nil
}

func startProfiler(cfg ops.ProfilingConfig) (*pyroscope.Profiler, error) {
	name := cfg.AppName
	if len(name) == 0 {
		name = "tickcore"
	}
	profiler, err := pyroscope.Start(pyroscope.Config{
		ApplicationName: name,
		ServerAddress:   cfg.ServerAddress,
		Logger:          profilerLogger{},
		ProfileTypes: []pyroscope.ProfileType{
			pyroscope.ProfileCPU,
			pyroscope.ProfileAllocObjects,
			pyroscope.ProfileAllocSpace,
			pyroscope.ProfileInuseObjects,
			pyroscope.ProfileInuseSpace,
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "start pyroscope")
	}
	return profiler, nil
}

type profilerLogger struct{}

func (profilerLogger) Infof(format string, args ...interface{})  { logs.Infof(format, args...) }
func (profilerLogger) Debugf(string, ...interface{})             {}
func (profilerLogger) Errorf(format string, args ...interface{}) { logs.Errorf(format, args...) }
