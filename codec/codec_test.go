package codec

import (
	"errors"
	"strings"
	"testing"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

type item struct {
	ID    string    `json:"id" msgpack:"id" cbor:"id"`
	Count int       `json:"count" msgpack:"count" cbor:"count"`
	At    time.Time `json:"at" msgpack:"at" cbor:"at"`
}

func roundTrip[V any](t *testing.T, c Codec[V], v V) V {
	t.Helper()
	b, err := c.Encode(v)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := c.Decode(b)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	return got
}

func TestStructCodecs(t *testing.T) {
	in := item{ID: "a", Count: 3, At: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)}

	codecs := map[string]Codec[item]{
		"json":       JSON[item]{},
		"msgpack":    Msgpack[item]{},
		"msgpack_js": Msgpack[item]{JSONTags: true},
		"cbor":       MustCBOR[item](CBOROptions{}),
		"cbor_det":   MustCBOR[item](CBOROptions{Deterministic: true}),
		"limit_json": Limit[item]{Inner: JSON[item]{}, MaxDecode: 1024},
	}
	for name, c := range codecs {
		t.Run(name, func(t *testing.T) {
			got := roundTrip(t, c, in)
			if got.ID != in.ID || got.Count != in.Count || !got.At.Equal(in.At) {
				t.Fatalf("got %+v want %+v", got, in)
			}
		})
	}
}

func TestRawCodecs(t *testing.T) {
	if got := roundTrip[string](t, String{}, "héllo"); got != "héllo" {
		t.Fatalf("String: got %q", got)
	}
	if got := roundTrip[[]byte](t, Bytes{}, []byte{1, 2, 3}); string(got) != "\x01\x02\x03" {
		t.Fatalf("Bytes: got %x", got)
	}
}

func TestLimitRejectsOversized(t *testing.T) {
	c := Limit[string]{Inner: String{}, MaxDecode: 4}
	if _, err := c.Decode([]byte(strings.Repeat("x", 5))); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("want ErrTooLarge on oversized payload, got %v", err)
	}
	if _, err := c.Decode([]byte("xxxx")); err != nil {
		t.Fatalf("boundary payload should decode: %v", err)
	}

	w := Limit[string]{Inner: String{}, MaxEncode: 2}
	if _, err := w.Encode("abc"); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("want ErrTooLarge on oversized value, got %v", err)
	}
	if b, err := w.Encode("ab"); err != nil || string(b) != "ab" {
		t.Fatalf("Encode within bound: %q %v", b, err)
	}
}

func TestProtobuf(t *testing.T) {
	c := NewProtobuf(func() *wrapperspb.StringValue { return &wrapperspb.StringValue{} })
	got := roundTrip[*wrapperspb.StringValue](t, c, wrapperspb.String("ada"))
	if !proto.Equal(got, wrapperspb.String("ada")) {
		t.Fatalf("got %v", got)
	}

	var zero Protobuf[*wrapperspb.StringValue]
	if _, err := zero.Decode(nil); err == nil {
		t.Fatalf("expected error from zero-value Protobuf codec")
	}
}

func TestCBORStrictRejectsForeignShape(t *testing.T) {
	type other struct {
		Name string `cbor:"name"`
	}
	b, err := MustCBOR[other](CBOROptions{}).Encode(other{Name: "x"})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if _, err := MustCBOR[item](CBOROptions{Strict: true}).Decode(b); err == nil {
		t.Fatalf("strict decode accepted unknown field")
	}
	if _, err := MustCBOR[item](CBOROptions{}).Decode(b); err != nil {
		t.Fatalf("lenient decode should ignore unknown field: %v", err)
	}
}
