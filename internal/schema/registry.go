package schema

import (
	"strconv"

	"github.com/yanun0323/errors"
)

// Segment is the exchange segment carried in the low byte of a token.
type Segment uint8

const (
	SegmentNSE        Segment = 1
	SegmentNFO        Segment = 2
	SegmentCDS        Segment = 3
	SegmentBSE        Segment = 4
	SegmentBFO        Segment = 5
	SegmentBCD        Segment = 6
	SegmentMCX        Segment = 7
	SegmentMCXSX      Segment = 8
	SegmentIndices    Segment = 9
	SegmentBSEIndices Segment = 10
)

// SegmentOf returns the segment encoded in an instrument token.
func SegmentOf(token uint32) Segment {
	return Segment(token & 0xff)
}

// IsIndex reports whether the segment carries index instruments.
func (s Segment) IsIndex() bool {
	return s == SegmentIndices || s == SegmentBSEIndices
}

// Instrument maps a numeric token of one source to a shared symbol name.
type Instrument struct {
	Token  uint32 `json:"token" yaml:"token"`
	Source string `json:"source" yaml:"source"`
	Symbol string `json:"symbol" yaml:"symbol"`
}

type instrumentKey struct {
	source string
	token  uint32
}

// Registry resolves source tokens to symbol names so that the same
// instrument streamed by different brokers fuses under one key.
type Registry struct {
	bySource map[instrumentKey]string
	byToken  map[uint32]string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		bySource: make(map[instrumentKey]string),
		byToken:  make(map[uint32]string),
	}
}

// Add registers an instrument. An empty source registers the token for every source.
func (r *Registry) Add(in Instrument) error {
	if in.Symbol == "" {
		return errors.Errorf("instrument symbol is empty, token: %d", in.Token)
	}
	if in.Source == "" {
		r.byToken[in.Token] = in.Symbol
		return nil
	}
	r.bySource[instrumentKey{source: in.Source, token: in.Token}] = in.Symbol
	return nil
}

// Symbol returns the symbol name for a token streamed by source.
// Unknown tokens resolve to their decimal string and ok=false.
func (r *Registry) Symbol(source string, token uint32) (string, bool) {
	if r != nil {
		if s, ok := r.bySource[instrumentKey{source: source, token: token}]; ok {
			return s, true
		}
		if s, ok := r.byToken[token]; ok {
			return s, true
		}
	}
	return strconv.FormatUint(uint64(token), 10), false
}

// Len returns the number of registered mappings.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.bySource) + len(r.byToken)
}
