package schema

// Mode tells which optional tick fields were present on the wire.
type Mode uint8

const (
	ModeUnknown Mode = iota
	ModeMinimal
	ModeQuote
	ModeFull
)

func (m Mode) String() string {
	switch m {
	case ModeMinimal:
		return "minimal"
	case ModeQuote:
		return "quote"
	case ModeFull:
		return "full"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// DepthLevels is the number of order book levels on each side.
const DepthLevels = 5

// DepthLevel is a single order book level.
type DepthLevel struct {
	Price  float64 `json:"price"`
	Qty    uint32  `json:"quantity"`
	Orders uint16  `json:"orders"`
}

// Depth is the 5-level book snapshot carried by full packets.
type Depth struct {
	Buy  [DepthLevels]DepthLevel `json:"buy"`
	Sell [DepthLevels]DepthLevel `json:"sell"`
}

// OHLC is the session open/high/low/close snapshot.
type OHLC struct {
	Open  float64 `json:"open"`
	High  float64 `json:"high"`
	Low   float64 `json:"low"`
	Close float64 `json:"close"`
}

// Tick is the decoded market data unit. Prices are already scaled.
// Quote and full fields are only meaningful when Mode allows them.
type Tick struct {
	Token     uint32  `json:"token"`
	LastPrice float64 `json:"lastPrice"`
	Mode      Mode    `json:"mode"`

	// quote
	LastQty  uint32  `json:"lastQty,omitempty"`
	AvgPrice float64 `json:"avgPrice,omitempty"`
	Volume   uint32  `json:"volume,omitempty"`
	BuyQty   uint32  `json:"buyQty,omitempty"`
	SellQty  uint32  `json:"sellQty,omitempty"`
	OHLC     *OHLC   `json:"ohlc,omitempty"`

	// full
	LastTradeTime uint32 `json:"lastTradeTime,omitempty"`
	OI            uint32 `json:"oi,omitempty"`
	OIDayHigh     uint32 `json:"oiDayHigh,omitempty"`
	OIDayLow      uint32 `json:"oiDayLow,omitempty"`
	ExchangeTime  uint32 `json:"exchangeTime,omitempty"`
	Depth         *Depth `json:"depth,omitempty"`
}

// EnrichedTick is a tick after fusion and indicator derivation.
type EnrichedTick struct {
	Tick
	Source     string   `json:"source"`
	Symbol     string   `json:"symbol"`
	FusedPrice float64  `json:"fusedPrice"`
	EMA        *float64 `json:"ema,omitempty"`
	Basis      *float64 `json:"basis,omitempty"`
}
