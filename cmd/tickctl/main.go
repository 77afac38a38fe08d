// Command tickctl talks to a running tickcore over its host socket: it sends
// the commands given as arguments and prints the event stream.
//
//	tickctl reset-halt
//	tickctl -for 5s -types tick,status '{"type":"disconnect","key":"kite"}'
//	tickctl mtm -1200 margin kite 150000.50
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/bytedance/sonic"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"tickcore/internal/ops"
	"tickcore/internal/schema"
	"tickcore/pkg/exception"
	"tickcore/pkg/uds"
)

func main() {
	if err := run(); err != nil {
		logs.Errorf("tickctl: %+v", err)
		os.Exit(1)
	}
}

func run() error {
	socketFlag := flag.String("socket", "", "host socket path (default $TICKCORE_SOCKET or "+ops.DefaultSocketPath+")")
	forFlag := flag.Duration("for", 2*time.Second, "how long to print events, 0 waits for interrupt")
	typesFlag := flag.String("types", "", "comma separated event types to print, empty prints all")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: tickctl [flags] [command...]\n\n"+
			"commands: reset-halt, trade, disconnect KEY, mtm VALUE, limits MAX_LOSS MAX_TRADES,\n"+
			"          margin SOURCE AMOUNT, or a raw JSON command\n\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	lines, err := parseCommands(flag.Args())
	if err != nil {
		return err
	}

	path := *socketFlag
	if len(path) == 0 {
		path = os.Getenv(ops.EnvPrefix + "SOCKET")
	}
	if len(path) == 0 {
		path = ops.DefaultSocketPath
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if *forFlag > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *forFlag)
		defer cancel()
	}

	client, err := uds.NewClient(path)
	if err != nil {
		return err
	}
	conn, err := client.Dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()
	context.AfterFunc(ctx, func() { _ = conn.Close() })

	for _, line := range lines {
		if _, err := conn.Write(append(line, '\n')); err != nil {
			return errors.Wrap(err, "send command")
		}
	}

	err = printEvents(conn, os.Stdout, eventFilter(*typesFlag))
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// printEvents copies every event line accepted by keep to w until r ends.
func printEvents(r io.Reader, w io.Writer, keep func(schema.EventType) bool) error {
	out := bufio.NewWriter(w)
	defer out.Flush()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4<<20)
	for scanner.Scan() {
		line := scanner.Bytes()
		var head struct {
			Type schema.EventType `json:"type"`
		}
		if err := sonic.Unmarshal(line, &head); err != nil {
			continue
		}
		if !keep(head.Type) {
			continue
		}
		if _, err := out.Write(line); err != nil {
			return err
		}
		if err := out.WriteByte('\n'); err != nil {
			return err
		}
		if err := out.Flush(); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func eventFilter(raw string) func(schema.EventType) bool {
	if len(strings.TrimSpace(raw)) == 0 {
		return func(schema.EventType) bool { return true }
	}
	allowed := make(map[schema.EventType]struct{})
	for _, t := range strings.Split(raw, ",") {
		allowed[schema.EventType(strings.TrimSpace(t))] = struct{}{}
	}
	return func(t schema.EventType) bool {
		_, ok := allowed[t]
		return ok
	}
}

// parseCommands turns arguments into encoded command lines. An argument
// starting with '{' is sent verbatim; anything else is a shorthand.
func parseCommands(args []string) ([][]byte, error) {
	var out [][]byte
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if strings.HasPrefix(arg, "{") {
			out = append(out, []byte(arg))
			continue
		}

		need := func(n int) ([]string, error) {
			if i+n >= len(args) {
				return nil, errors.Wrapf(exception.ErrInvalidArgument, "%s needs %d argument(s)", arg, n)
			}
			params := args[i+1 : i+1+n]
			i += n
			return params, nil
		}

		var cmd schema.Command
		switch arg {
		case "reset-halt":
			cmd.Type = schema.CommandResetHalt
		case "trade":
			cmd.Type = schema.CommandNotifyTrade
		case "disconnect":
			p, err := need(1)
			if err != nil {
				return nil, err
			}
			cmd = schema.Command{Type: schema.CommandDisconnect, Key: p[0]}
		case "mtm":
			p, err := need(1)
			if err != nil {
				return nil, err
			}
			v, err := strconv.ParseFloat(p[0], 64)
			if err != nil {
				return nil, errors.Wrapf(exception.ErrInvalidArgument, "mtm %q", p[0])
			}
			cmd = schema.Command{Type: schema.CommandNotifyMtm, Mtm: &v}
		case "limits":
			p, err := need(2)
			if err != nil {
				return nil, err
			}
			maxLoss, err := strconv.ParseFloat(p[0], 64)
			if err != nil {
				return nil, errors.Wrapf(exception.ErrInvalidArgument, "max loss %q", p[0])
			}
			maxTrades, err := strconv.Atoi(p[1])
			if err != nil {
				return nil, errors.Wrapf(exception.ErrInvalidArgument, "max trades %q", p[1])
			}
			cmd = schema.Command{Type: schema.CommandUpdateRiskLimits, Limits: &schema.RiskLimits{MaxLoss: maxLoss, MaxTrades: maxTrades}}
		case "margin":
			p, err := need(2)
			if err != nil {
				return nil, err
			}
			cmd = schema.Command{Type: schema.CommandMargin, Margin: &schema.MarginUpdate{Source: p[0], Margin: p[1]}}
		default:
			return nil, errors.Wrapf(exception.ErrInvalidArgument, "unknown command %q", arg)
		}

		line, err := sonic.Marshal(cmd)
		if err != nil {
			return nil, errors.Wrap(err, "encode command")
		}
		out = append(out, line)
	}
	return out, nil
}
