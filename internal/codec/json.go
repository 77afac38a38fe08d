package codec

import (
	"bytes"

	"github.com/bytedance/sonic"
	"github.com/yanun0323/errors"

	"tickcore/internal/schema"
)

// jsonTick is the server-push payload shape.
type jsonTick struct {
	Token     uint32       `json:"token"`
	Symbol    string       `json:"symbol"`
	LastPrice *float64     `json:"ltp"`
	LastQty   uint32       `json:"ltq"`
	AvgPrice  float64      `json:"atp"`
	Volume    uint32       `json:"volume"`
	OI        uint32       `json:"oi"`
	OHLC      *schema.OHLC `json:"ohlc"`
}

// JSONTick is a decoded server-push tick with its optional symbol hint.
type JSONTick struct {
	schema.Tick
	Symbol string
}

// DecodeJSONTicks appends the ticks carried by a server-push payload to dst.
// The payload is a single object or an array of objects. Entries without a
// last price are skipped and counted.
func DecodeJSONTicks(dst []JSONTick, src []byte) ([]JSONTick, int, error) {
	src = bytes.TrimSpace(src)
	if len(src) == 0 {
		return dst, 0, nil
	}

	var raw []jsonTick
	switch src[0] {
	case '[':
		if err := sonic.Unmarshal(src, &raw); err != nil {
			return dst, 0, errors.Wrap(err, "unmarshal tick array")
		}
	case '{':
		var one jsonTick
		if err := sonic.Unmarshal(src, &one); err != nil {
			return dst, 0, errors.Wrap(err, "unmarshal tick object")
		}
		raw = append(raw, one)
	default:
		return dst, 0, errors.Errorf("unexpected payload prefix %q", src[0])
	}

	skipped := 0
	for _, r := range raw {
		if r.LastPrice == nil {
			skipped++
			continue
		}
		tick := schema.Tick{
			Token:     r.Token,
			LastPrice: *r.LastPrice,
			Mode:      schema.ModeMinimal,
		}
		if r.OHLC != nil || r.Volume != 0 || r.LastQty != 0 {
			tick.Mode = schema.ModeQuote
			tick.LastQty = r.LastQty
			tick.AvgPrice = r.AvgPrice
			tick.Volume = r.Volume
			tick.OHLC = r.OHLC
		}
		tick.OI = r.OI
		dst = append(dst, JSONTick{Tick: tick, Symbol: r.Symbol})
	}
	return dst, skipped, nil
}
