package wire

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"
)

func mustDecodeValue(t *testing.T, b []byte) ([]byte, bool) {
	t.Helper()
	p, null, err := DecodeValue(b)
	if err != nil {
		t.Fatalf("DecodeValue error: %v", err)
	}
	return p, null
}

func TestValueRTEmptyAndNonEmpty(t *testing.T) {
	cases := [][]byte{
		nil,
		[]byte("hello"),
		{0, 1, 2, 3, 4},
	}
	for _, payload := range cases {
		enc := EncodeValue(payload)
		p, null := mustDecodeValue(t, enc)
		if null {
			t.Fatalf("value frame decoded as null")
		}
		if !bytes.Equal(p, payload) {
			t.Fatalf("payload mismatch: got %x want %x", p, payload)
		}
	}
}

func TestNullFrame(t *testing.T) {
	enc := EncodeNull()
	p, null := mustDecodeValue(t, enc)
	if !null || p != nil {
		t.Fatalf("null frame: null=%v payload=%x", null, p)
	}
	if !IsNull(enc) {
		t.Fatalf("IsNull should report true for null frame")
	}
	if IsNull(EncodeValue(nil)) {
		t.Fatalf("empty value frame must not be null")
	}
	if IsNull([]byte("junk")) {
		t.Fatalf("junk must not be null")
	}
}

func TestValueRejectsTrailingBytes(t *testing.T) {
	enc := EncodeValue([]byte("x"))
	enc = append(enc, 0xDE, 0xAD) // add junk
	if _, _, err := DecodeValue(enc); err == nil {
		t.Fatalf("expected error on trailing bytes")
	}

	null := append(EncodeNull(), 0x00)
	if _, _, err := DecodeValue(null); err == nil {
		t.Fatalf("expected error on trailing bytes after null frame")
	}
}

func TestValueCorruptHeadersAndLengths(t *testing.T) {
	enc := EncodeValue([]byte("abc"))

	// bad magic
	badMagic := append([]byte(nil), enc...)
	badMagic[0] = 'X'
	if _, _, err := DecodeValue(badMagic); err == nil {
		t.Fatalf("expected error on bad magic")
	}

	// wrong version
	badVer := append([]byte(nil), enc...)
	badVer[4] = version + 1
	if _, _, err := DecodeValue(badVer); err == nil {
		t.Fatalf("expected error on bad version")
	}

	// wrong kind
	badKind := append([]byte(nil), enc...)
	badKind[5] = kindEnvelope
	if _, _, err := DecodeValue(badKind); err == nil {
		t.Fatalf("expected error on bad kind")
	}

	// vlen too large (announce more than available)
	// vlen is at offset 6..9 (4 magic +1 ver +1 kind)
	tooLong := append([]byte(nil), enc...)
	binary.BigEndian.PutUint32(tooLong[6:10], uint32(len("abc")+1))
	if _, _, err := DecodeValue(tooLong); err == nil {
		t.Fatalf("expected error on vlen beyond buffer")
	}

	// truncated buffer
	trunc := enc[:len(enc)-1]
	if _, _, err := DecodeValue(trunc); err == nil {
		t.Fatalf("expected error on truncated buffer")
	}

	// header only
	if _, _, err := DecodeValue(enc[:7]); err == nil {
		t.Fatalf("expected error on missing vlen")
	}
}

func TestValueZeroCopyPayload(t *testing.T) {
	enc := EncodeValue([]byte("Z"))
	p, _ := mustDecodeValue(t, enc)
	if len(p) != 1 {
		t.Fatalf("unexpected payload len")
	}
	// mutate payload slice. should mutate underlying enc bytes (zero-copy)
	p[0] = 'Q'
	p2, _ := mustDecodeValue(t, enc)
	if p2[0] != 'Q' {
		t.Fatalf("expected zero-copy slice into enc buffer")
	}
}

func TestEnvelopeRoundTrip(t *testing.T) {
	cases := []Envelope{
		{},
		{Deadline: 10, Idle: 20, Access: 30, Payload: []byte("v")},
		{Deadline: math.MaxInt64, Idle: 0, Access: -1, Payload: EncodeNull()},
	}
	for _, e := range cases {
		got, err := DecodeEnvelope(EncodeEnvelope(e))
		if err != nil {
			t.Fatalf("DecodeEnvelope: %v", err)
		}
		if got.Deadline != e.Deadline || got.Idle != e.Idle || got.Access != e.Access || !bytes.Equal(got.Payload, e.Payload) {
			t.Fatalf("envelope mismatch: got=%+v want=%+v", got, e)
		}
	}
}

func TestEnvelopeRejectsCorrupt(t *testing.T) {
	enc := EncodeEnvelope(Envelope{Deadline: 1, Payload: []byte("abc")})

	if _, err := DecodeEnvelope(append(append([]byte(nil), enc...), 0x01)); err == nil {
		t.Fatalf("expected error on trailing bytes")
	}
	if _, err := DecodeEnvelope(enc[:len(enc)-1]); err == nil {
		t.Fatalf("expected error on truncated payload")
	}
	if _, err := DecodeEnvelope(EncodeValue([]byte("abc"))); err == nil {
		t.Fatalf("expected error decoding a value frame as envelope")
	}
}

func TestEnvelopeExpired(t *testing.T) {
	tests := []struct {
		name string
		e    Envelope
		now  int64
		want bool
	}{
		{"no_policy", Envelope{}, 1 << 40, false},
		{"before_deadline", Envelope{Deadline: 100}, 99, false},
		{"at_deadline", Envelope{Deadline: 100}, 100, true},
		{"idle_fresh", Envelope{Idle: 10, Access: 50}, 59, false},
		{"idle_elapsed", Envelope{Idle: 10, Access: 50}, 60, true},
		{"deadline_wins_over_idle", Envelope{Deadline: 55, Idle: 10, Access: 50}, 56, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.e.Expired(tc.now); got != tc.want {
				t.Fatalf("Expired(%d) = %v, want %v", tc.now, got, tc.want)
			}
		})
	}
}
