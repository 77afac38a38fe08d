package core

import (
	"github.com/yanun0323/logs"

	"tickcore/internal/codec"
	"tickcore/internal/feed"
	"tickcore/internal/indicator"
	"tickcore/internal/schema"
)

func (c *Core) onFrame(n feed.Notification) {
	info, ok := c.feeds.OnFrame(n)
	if !ok {
		return
	}
	if c.cfg.Tap != nil {
		c.cfg.Tap(info, n.Frame)
	}
	start := c.now()

	var (
		ticks   []schema.EnrichedTick
		skipped int
	)
	if n.Frame.Binary {
		ticks, skipped = c.decodeBinary(info.Source, n.Frame.Payload)
	} else {
		ticks, skipped = c.decodeJSON(info.Source, n.Frame.Payload)
	}

	if skipped > 0 && c.skipLog.Allow() {
		logs.Errorf("feed %s skipped %d malformed packets, frame size: %d", info.Key, skipped, len(n.Frame.Payload))
	}
	if len(ticks) != 0 {
		c.emit(schema.Event{Type: schema.EventTick, Key: info.Key, Ticks: ticks})
	}
	c.metrics.ObserveFrame(len(ticks), skipped, c.now().Sub(start))
}

func (c *Core) decodeBinary(source string, payload []byte) ([]schema.EnrichedTick, int) {
	if codec.IsHeartbeat(payload) {
		return nil, 0
	}
	var skipped int
	c.tickBuf, skipped = codec.DecodeTicks(c.tickBuf[:0], payload)
	if len(c.tickBuf) == 0 {
		return nil, skipped
	}
	out := make([]schema.EnrichedTick, 0, len(c.tickBuf))
	for _, tick := range c.tickBuf {
		symbol, known := c.registry.Symbol(source, tick.Token)
		out = append(out, c.enrich(source, symbol, known, tick))
	}
	return out, skipped
}

func (c *Core) decodeJSON(source string, payload []byte) ([]schema.EnrichedTick, int) {
	var (
		skipped int
		err     error
	)
	c.jsonBuf, skipped, err = codec.DecodeJSONTicks(c.jsonBuf[:0], payload)
	if err != nil {
		if c.skipLog.Allow() {
			logs.Errorf("decode server push payload from %s, err: %+v", source, err)
		}
		return nil, 1
	}
	if len(c.jsonBuf) == 0 {
		return nil, skipped
	}
	out := make([]schema.EnrichedTick, 0, len(c.jsonBuf))
	for _, jt := range c.jsonBuf {
		symbol, known := jt.Symbol, true
		if len(symbol) == 0 {
			symbol, known = c.registry.Symbol(source, jt.Token)
		}
		out = append(out, c.enrich(source, symbol, known, jt.Tick))
	}
	return out, skipped
}

// enrich runs a tick through fusion, the EMA and the futures basis.
// Unregistered tokens are per-source, so they pass through with the raw price.
func (c *Core) enrich(source, symbol string, known bool, tick schema.Tick) schema.EnrichedTick {
	out := schema.EnrichedTick{
		Tick:       tick,
		Source:     source,
		Symbol:     symbol,
		FusedPrice: tick.LastPrice,
	}
	if !known {
		return out
	}
	fused := c.fusion.Fuse(symbol, source, tick.LastPrice)
	out.FusedPrice = fused
	if ema, ok := c.indicators.UpdateEMA(symbol, fused, c.cfg.EMAPeriod); ok {
		out.EMA = &ema
	}
	spot := func(underlying string) (float64, bool) {
		return c.fusion.Price(underlying, source)
	}
	if basis, ok := indicator.Basis(symbol, tick.LastPrice, spot); ok {
		out.Basis = &basis
	}
	return out
}
