// Package recorder captures raw feed frames into checksummed, size-rotated
// tape segments and plays them back.
package recorder

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"

	"tickcore/pkg/exception"
)

// Frame is one captured transport frame.
type Frame struct {
	Seq      uint64
	RecvNano int64
	Key      string
	Source   string
	Binary   bool
	Payload  []byte
}

const (
	recordVersion      uint16 = 1
	recordHeaderSize          = 40
	recordChecksumSize        = 4

	flagBinary uint16 = 1 << 0
)

var (
	recordMagic = [4]byte{'T', 'A', 'P', '1'}
	crcTable    = crc32.MakeTable(crc32.Castagnoli)
)

// header layout, little endian:
//
//	0  magic      [4]byte
//	4  version    uint16
//	6  headerSize uint16
//	8  flags      uint16
//	10 keyLen     uint16
//	12 sourceLen  uint16
//	14 reserved   uint16
//	16 payloadLen uint32
//	20 seq        uint64
//	28 recvNano   int64
//	36 reserved   uint32
type recordHeader struct {
	flags      uint16
	keyLen     uint16
	sourceLen  uint16
	payloadLen uint32
	seq        uint64
	recvNano   int64
}

func (h recordHeader) bodyLen() int {
	return int(h.keyLen) + int(h.sourceLen) + int(h.payloadLen)
}

func headerOf(f Frame) recordHeader {
	h := recordHeader{
		keyLen:     uint16(len(f.Key)),
		sourceLen:  uint16(len(f.Source)),
		payloadLen: uint32(len(f.Payload)),
		seq:        f.Seq,
		recvNano:   f.RecvNano,
	}
	if f.Binary {
		h.flags |= flagBinary
	}
	return h
}

func encodeHeader(dst []byte, h recordHeader) {
	_ = dst[recordHeaderSize-1]
	copy(dst[0:4], recordMagic[:])
	binary.LittleEndian.PutUint16(dst[4:6], recordVersion)
	binary.LittleEndian.PutUint16(dst[6:8], uint16(recordHeaderSize))
	binary.LittleEndian.PutUint16(dst[8:10], h.flags)
	binary.LittleEndian.PutUint16(dst[10:12], h.keyLen)
	binary.LittleEndian.PutUint16(dst[12:14], h.sourceLen)
	binary.LittleEndian.PutUint16(dst[14:16], 0)
	binary.LittleEndian.PutUint32(dst[16:20], h.payloadLen)
	binary.LittleEndian.PutUint64(dst[20:28], h.seq)
	binary.LittleEndian.PutUint64(dst[28:36], uint64(h.recvNano))
	binary.LittleEndian.PutUint32(dst[36:40], 0)
}

func decodeHeader(src []byte) (recordHeader, error) {
	if len(src) < recordHeaderSize {
		return recordHeader{}, exception.ErrTapeInvalidHeaderSize
	}
	if !bytes.Equal(src[0:4], recordMagic[:]) {
		return recordHeader{}, exception.ErrTapeInvalidMagic
	}
	if ver := binary.LittleEndian.Uint16(src[4:6]); ver != recordVersion {
		return recordHeader{}, exception.ErrTapeUnsupportedVer
	}
	if size := binary.LittleEndian.Uint16(src[6:8]); size != recordHeaderSize {
		return recordHeader{}, exception.ErrTapeInvalidHeaderSize
	}
	return recordHeader{
		flags:      binary.LittleEndian.Uint16(src[8:10]),
		keyLen:     binary.LittleEndian.Uint16(src[10:12]),
		sourceLen:  binary.LittleEndian.Uint16(src[12:14]),
		payloadLen: binary.LittleEndian.Uint32(src[16:20]),
		seq:        binary.LittleEndian.Uint64(src[20:28]),
		recvNano:   int64(binary.LittleEndian.Uint64(src[28:36])),
	}, nil
}

func checksum(header, body []byte) uint32 {
	crc := crc32.Update(0, crcTable, header)
	return crc32.Update(crc, crcTable, body)
}
