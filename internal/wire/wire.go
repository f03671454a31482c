package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
)

const (
	version      byte = 1
	kindValue    byte = 1
	kindNull     byte = 2
	kindEnvelope byte = 3
)

var (
	ErrCorrupt = errors.New("lockcache: corrupt entry")
	magic4     = [...]byte{'L', 'K', 'C', 'V'}
)

func hasMagic(b []byte) bool {
	return len(b) >= 4 && bytes.Equal(b[:4], magic4[:])
}

func header(buf *bytes.Buffer, kind byte) {
	buf.Write(magic4[:])
	buf.WriteByte(version)
	buf.WriteByte(kind)
}

// Value: magic(4) | ver(1) | kind(1=value) | vlen(u32 be) | payload(vlen)
func EncodeValue(payload []byte) []byte {
	var buf bytes.Buffer
	buf.Grow(4 + 1 + 1 + 4 + len(payload))
	header(&buf, kindValue)

	var u4 [4]byte
	binary.BigEndian.PutUint32(u4[:], uint32(len(payload)))
	buf.Write(u4[:])

	buf.Write(payload)
	return buf.Bytes()
}

// Null: magic(4) | ver(1) | kind(2=null)
//
// The null frame is the stored form of a cached "no value" result. It is
// distinct from a missing key.
func EncodeNull() []byte {
	var buf bytes.Buffer
	buf.Grow(4 + 1 + 1)
	header(&buf, kindNull)
	return buf.Bytes()
}

// DecodeValue parses a value or null frame. For a null frame it returns
// (nil, true, nil).
func DecodeValue(b []byte) (payload []byte, null bool, err error) {
	if len(b) < 6 || !hasMagic(b) || b[4] != version {
		return nil, false, ErrCorrupt
	}
	switch b[5] {
	case kindNull:
		if len(b) != 6 {
			return nil, false, ErrCorrupt
		}
		return nil, true, nil
	case kindValue:
	default:
		return nil, false, ErrCorrupt
	}

	off := 6
	if off+4 > len(b) {
		return nil, false, ErrCorrupt
	}
	vlen := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	if vlen < 0 || vlen != len(b)-off { // strict: no trailing bytes
		return nil, false, ErrCorrupt
	}
	return b[off : off+vlen], false, nil
}

// IsNull reports whether b is a well-formed null frame.
func IsNull(b []byte) bool {
	_, null, err := DecodeValue(b)
	return err == nil && null
}

// Envelope wraps a stored frame with expiry metadata for stores that cannot
// expire entries on their own. Times are unix milliseconds and durations are
// milliseconds; zero disables.
//
//	magic(4) | ver(1) | kind(3=envelope) | deadline(i64 be) | idle(i64 be) | access(i64 be) | vlen(u32 be) | payload(vlen)
type Envelope struct {
	Deadline int64 // absolute expiry, unix ms
	Idle     int64 // max idle, ms
	Access   int64 // last access, unix ms
	Payload  []byte
}

const envelopeHdr = 4 + 1 + 1 + 8 + 8 + 8 + 4

func EncodeEnvelope(e Envelope) []byte {
	var buf bytes.Buffer
	buf.Grow(envelopeHdr + len(e.Payload))
	header(&buf, kindEnvelope)

	var u8 [8]byte
	var u4 [4]byte
	for _, v := range [...]int64{e.Deadline, e.Idle, e.Access} {
		binary.BigEndian.PutUint64(u8[:], uint64(v))
		buf.Write(u8[:])
	}

	binary.BigEndian.PutUint32(u4[:], uint32(len(e.Payload)))
	buf.Write(u4[:])
	buf.Write(e.Payload)
	return buf.Bytes()
}

func DecodeEnvelope(b []byte) (Envelope, error) {
	if len(b) < envelopeHdr || !hasMagic(b) || b[4] != version || b[5] != kindEnvelope {
		return Envelope{}, ErrCorrupt
	}
	off := 6
	var e Envelope
	e.Deadline = int64(binary.BigEndian.Uint64(b[off : off+8]))
	off += 8
	e.Idle = int64(binary.BigEndian.Uint64(b[off : off+8]))
	off += 8
	e.Access = int64(binary.BigEndian.Uint64(b[off : off+8]))
	off += 8

	vlen := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	if vlen < 0 || vlen != len(b)-off {
		return Envelope{}, ErrCorrupt
	}
	e.Payload = b[off : off+vlen]
	return e, nil
}

// Expired reports whether the envelope is past its deadline or idle window at now.
func (e Envelope) Expired(now int64) bool {
	if e.Deadline > 0 && now >= e.Deadline {
		return true
	}
	return e.Idle > 0 && now-e.Access >= e.Idle
}
