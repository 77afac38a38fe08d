package codec

import (
	"encoding/binary"
	"math"

	"tickcore/internal/schema"
)

// PriceDivisor scales every int32 price field on the wire.
// Index and non-index segments share the same divisor.
const PriceDivisor = 100.0

// Packet sizes that select the decode mode.
const (
	MinimalPacketSize = 8
	QuotePacketSize   = 28
	QuoteFullSize     = 44
	FullPacketSize    = 184

	depthLevelSize = 12
	depthOffset    = 64
	headerSize     = 2
)

// IsHeartbeat reports whether a frame is a single byte keep-alive.
func IsHeartbeat(src []byte) bool {
	return len(src) == 1
}

// DecodeTicks appends the ticks carried by a binary frame to dst.
// Frame layout (big-endian): [int16 count] { [int16 size] [packet] }*.
// Truncated packets are skipped and counted, never reported as errors.
func DecodeTicks(dst []schema.Tick, src []byte) ([]schema.Tick, int) {
	if len(src) < headerSize {
		return dst, 0
	}

	count := int(int16(binary.BigEndian.Uint16(src[0:2])))
	offset := headerSize
	skipped := 0
	for i := 0; i < count; i++ {
		if offset+headerSize > len(src) {
			skipped += count - i
			break
		}
		size := int(int16(binary.BigEndian.Uint16(src[offset : offset+2])))
		offset += headerSize
		if size < 0 {
			skipped++
			continue
		}
		end := offset + size
		if end > len(src) {
			skipped++
			offset = end
			continue
		}
		tick, ok := decodePacket(src[offset:end])
		if ok {
			dst = append(dst, tick)
		} else {
			skipped++
		}
		offset = end
	}
	return dst, skipped
}

func decodePacket(pkt []byte) (schema.Tick, bool) {
	if len(pkt) < MinimalPacketSize {
		return schema.Tick{}, false
	}

	tick := schema.Tick{
		Token:     binary.BigEndian.Uint32(pkt[0:4]),
		LastPrice: price(pkt, 4),
		Mode:      schema.ModeMinimal,
	}
	if len(pkt) < QuotePacketSize {
		return tick, true
	}

	tick.Mode = schema.ModeQuote
	tick.LastQty = u32(pkt, 8)
	tick.AvgPrice = price(pkt, 12)
	tick.Volume = u32(pkt, 16)
	tick.BuyQty = u32(pkt, 20)
	tick.SellQty = u32(pkt, 24)
	if len(pkt) >= QuoteFullSize {
		tick.OHLC = &schema.OHLC{
			Open:  price(pkt, 28),
			High:  price(pkt, 32),
			Low:   price(pkt, 36),
			Close: price(pkt, 40),
		}
	}
	if len(pkt) < FullPacketSize {
		return tick, true
	}

	tick.Mode = schema.ModeFull
	tick.LastTradeTime = u32(pkt, 44)
	tick.OI = u32(pkt, 48)
	tick.OIDayHigh = u32(pkt, 52)
	tick.OIDayLow = u32(pkt, 56)
	tick.ExchangeTime = u32(pkt, 60)

	depth := &schema.Depth{}
	offset := depthOffset
	for i := 0; i < schema.DepthLevels; i++ {
		depth.Buy[i] = depthLevel(pkt, offset)
		offset += depthLevelSize
	}
	for i := 0; i < schema.DepthLevels; i++ {
		depth.Sell[i] = depthLevel(pkt, offset)
		offset += depthLevelSize
	}
	tick.Depth = depth
	return tick, true
}

func depthLevel(pkt []byte, offset int) schema.DepthLevel {
	return schema.DepthLevel{
		Qty:    u32(pkt, offset),
		Price:  price(pkt, offset+4),
		Orders: binary.BigEndian.Uint16(pkt[offset+8 : offset+10]),
	}
}

func u32(pkt []byte, offset int) uint32 {
	return binary.BigEndian.Uint32(pkt[offset : offset+4])
}

func price(pkt []byte, offset int) float64 {
	return float64(int32(binary.BigEndian.Uint32(pkt[offset:offset+4]))) / PriceDivisor
}

// AppendFrame serializes ticks into one binary frame, each packet sized by its Mode.
func AppendFrame(dst []byte, ticks []schema.Tick) []byte {
	dst = binary.BigEndian.AppendUint16(dst, uint16(len(ticks)))
	for _, tick := range ticks {
		dst = AppendPacket(dst, tick)
	}
	return dst
}

// AppendPacket serializes a single size-prefixed packet.
func AppendPacket(dst []byte, tick schema.Tick) []byte {
	size := MinimalPacketSize
	switch tick.Mode {
	case schema.ModeQuote:
		size = QuoteFullSize
	case schema.ModeFull:
		size = FullPacketSize
	}

	dst = binary.BigEndian.AppendUint16(dst, uint16(size))
	dst = binary.BigEndian.AppendUint32(dst, tick.Token)
	dst = appendPrice(dst, tick.LastPrice)
	if size == MinimalPacketSize {
		return dst
	}

	ohlc := schema.OHLC{}
	if tick.OHLC != nil {
		ohlc = *tick.OHLC
	}
	dst = binary.BigEndian.AppendUint32(dst, tick.LastQty)
	dst = appendPrice(dst, tick.AvgPrice)
	dst = binary.BigEndian.AppendUint32(dst, tick.Volume)
	dst = binary.BigEndian.AppendUint32(dst, tick.BuyQty)
	dst = binary.BigEndian.AppendUint32(dst, tick.SellQty)
	dst = appendPrice(dst, ohlc.Open)
	dst = appendPrice(dst, ohlc.High)
	dst = appendPrice(dst, ohlc.Low)
	dst = appendPrice(dst, ohlc.Close)
	if size == QuoteFullSize {
		return dst
	}

	depth := schema.Depth{}
	if tick.Depth != nil {
		depth = *tick.Depth
	}
	dst = binary.BigEndian.AppendUint32(dst, tick.LastTradeTime)
	dst = binary.BigEndian.AppendUint32(dst, tick.OI)
	dst = binary.BigEndian.AppendUint32(dst, tick.OIDayHigh)
	dst = binary.BigEndian.AppendUint32(dst, tick.OIDayLow)
	dst = binary.BigEndian.AppendUint32(dst, tick.ExchangeTime)
	for _, level := range depth.Buy {
		dst = appendDepthLevel(dst, level)
	}
	for _, level := range depth.Sell {
		dst = appendDepthLevel(dst, level)
	}
	return dst
}

func appendDepthLevel(dst []byte, level schema.DepthLevel) []byte {
	dst = binary.BigEndian.AppendUint32(dst, level.Qty)
	dst = appendPrice(dst, level.Price)
	dst = binary.BigEndian.AppendUint16(dst, level.Orders)
	return append(dst, 0, 0)
}

func appendPrice(dst []byte, p float64) []byte {
	return binary.BigEndian.AppendUint32(dst, uint32(int32(math.Round(p*PriceDivisor))))
}
