package recorder

import (
	"bufio"
	"encoding/binary"
	"io"

	"tickcore/pkg/exception"
)

// ReaderOptions controls record decoding.
type ReaderOptions struct {
	DisableChecksum bool
	MaxPayloadSize  int
}

// Reader decodes tape records sequentially.
type Reader struct {
	r         *bufio.Reader
	opts      ReaderOptions
	headerBuf []byte
	body      []byte
}

// NewReader wraps r with tape decoding.
func NewReader(r io.Reader, opts ReaderOptions) *Reader {
	return &Reader{
		r:         bufio.NewReader(r),
		opts:      opts,
		headerBuf: make([]byte, recordHeaderSize),
	}
}

// Next returns the next frame. Frame.Payload is only valid until the next
// call to Next. A clean end of input returns io.EOF, a torn record returns
// io.ErrUnexpectedEOF.
func (r *Reader) Next() (Frame, error) {
	n, err := io.ReadFull(r.r, r.headerBuf)
	if err != nil {
		if err == io.EOF && n == 0 {
			return Frame{}, io.EOF
		}
		return Frame{}, io.ErrUnexpectedEOF
	}

	h, err := decodeHeader(r.headerBuf)
	if err != nil {
		return Frame{}, err
	}
	if r.opts.MaxPayloadSize > 0 && h.payloadLen > uint32(r.opts.MaxPayloadSize) {
		return Frame{}, exception.ErrTapePayloadTooLarge
	}

	size := h.bodyLen()
	if cap(r.body) < size {
		r.body = make([]byte, size)
	}
	r.body = r.body[:size]
	if _, err := io.ReadFull(r.r, r.body); err != nil {
		return Frame{}, io.ErrUnexpectedEOF
	}

	var sum [recordChecksumSize]byte
	if _, err := io.ReadFull(r.r, sum[:]); err != nil {
		return Frame{}, io.ErrUnexpectedEOF
	}
	if !r.opts.DisableChecksum && checksum(r.headerBuf, r.body) != binary.LittleEndian.Uint32(sum[:]) {
		return Frame{}, exception.ErrTapeChecksumMismatch
	}

	key := int(h.keyLen)
	source := key + int(h.sourceLen)
	return Frame{
		Seq:      h.seq,
		RecvNano: h.recvNano,
		Key:      string(r.body[:key]),
		Source:   string(r.body[key:source]),
		Binary:   h.flags&flagBinary != 0,
		Payload:  r.body[source:],
	}, nil
}
