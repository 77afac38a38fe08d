package core

import (
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"tickcore/internal/schema"
	"tickcore/pkg/exception"
)

func (c *Core) handleCommand(env envelope) {
	start := c.now()
	defer func() { c.metrics.ObserveCommand(c.now().Sub(start)) }()

	if env.err != nil {
		c.reject(env.err)
		return
	}

	cmd := env.cmd
	if cmd.Mtm != nil {
		c.onMtm(*cmd.Mtm)
	}

	switch cmd.Type {
	case schema.CommandConnect:
		c.onConnect(cmd.Connect)
	case schema.CommandDisconnect:
		if len(cmd.Key) == 0 {
			c.reject(errors.Wrap(exception.ErrMalformedCommand, "disconnect requires key"))
			return
		}
		if c.feeds.Disconnect(cmd.Key) {
			logs.Infof("feed %s disconnected by host", cmd.Key)
			c.emit(schema.StatusEvent(cmd.Key, false))
		}
	case schema.CommandUpdateRiskLimits:
		if cmd.Limits == nil {
			c.reject(errors.Wrap(exception.ErrMalformedCommand, "update_risk_limits requires limits"))
			return
		}
		if cmd.Limits.MaxLoss > 0 || cmd.Limits.MaxTrades < 0 {
			c.reject(errors.Wrapf(exception.ErrMalformedCommand, "update_risk_limits requires max loss <= 0 and max trades >= 0, got %v, %d", cmd.Limits.MaxLoss, cmd.Limits.MaxTrades))
			return
		}
		c.guardian.UpdateLimits(*cmd.Limits)
		logs.Infof("risk limits updated, max loss: %.2f, max trades: %d", cmd.Limits.MaxLoss, cmd.Limits.MaxTrades)
	case schema.CommandNotifyMtm:
		if cmd.Mtm == nil {
			c.reject(errors.Wrap(exception.ErrMalformedCommand, "notify_mtm requires mtm"))
		}
	case schema.CommandNotifyTrade:
		if h, ok := c.guardian.OnTrade(); ok {
			c.halt(h)
		}
	case schema.CommandResetHalt:
		if c.guardian.Halted() {
			logs.Info("halt reset by host")
		}
		c.guardian.ResetHalt()
	case schema.CommandMargin:
		if cmd.Margin == nil {
			c.reject(errors.Wrap(exception.ErrMalformedCommand, "margin requires margin"))
			return
		}
		unified, err := c.margin.Update(*cmd.Margin)
		if err != nil {
			c.reject(err)
			return
		}
		c.emit(schema.Event{Type: schema.EventUnifiedMargin, Margin: &unified})
	default:
		c.reject(errors.Wrapf(exception.ErrUnknownCommand, "type %q", cmd.Type))
	}
}

func (c *Core) onConnect(req *schema.ConnectRequest) {
	if req == nil {
		c.reject(errors.Wrap(exception.ErrMalformedCommand, "connect requires connect"))
		return
	}
	if c.guardian.Halted() {
		c.reject(errors.Wrapf(exception.ErrHalted, "connect %s refused", req.ConnectionKey()))
		return
	}
	for token, symbol := range req.Symbols {
		if err := c.registry.Add(schema.Instrument{Token: token, Source: req.Source, Symbol: symbol}); err != nil {
			c.reject(err)
			return
		}
	}
	if _, err := c.feeds.Connect(*req); err != nil {
		c.reject(err)
		return
	}
	logs.Infof("feed %s connecting, source: %s, transport: %s, tokens: %d",
		req.ConnectionKey(), req.Source, req.Transport, len(req.Tokens))
}

func (c *Core) onMtm(mtm float64) {
	if h, ok := c.guardian.OnMtmUpdate(mtm); ok {
		c.halt(h)
	}
}

// halt tears down every connection and reports the latched halt.
func (c *Core) halt(h schema.Halt) {
	keys := c.feeds.DisconnectAll()
	c.metrics.IncHalt(h.Reason)
	logs.Errorf("trading halted, reason: %s, threshold: %.2f, value: %.2f, closed: %v", h.Reason, h.Threshold, h.Value, keys)
	c.emit(schema.Event{Type: schema.EventHaltTriggered, Halt: &h})
	for _, key := range keys {
		c.emit(schema.StatusEvent(key, false))
	}
}

// reject logs a command level failure and reports it with an empty key.
func (c *Core) reject(err error) {
	c.metrics.IncCommandRejected()
	logs.Errorf("reject command, err: %+v", err)
	c.emit(schema.ErrorEvent("", err))
}
