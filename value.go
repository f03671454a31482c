package lockcache

import (
	"reflect"

	"github.com/unkn0wn-root/lockcache/codec"
	"github.com/unkn0wn-root/lockcache/internal/wire"
)

type presence uint8

const (
	absent presence = iota
	null
	present
)

// Value is the result of a plain read: absent, present but null, or present
// with a payload. The zero Value is absent.
type Value[V any] struct {
	v V
	p presence
}

func Absent[V any]() Value[V] { return Value[V]{} }
func Null[V any]() Value[V]   { return Value[V]{p: null} }
func Of[V any](v V) Value[V]  { return Value[V]{v: v, p: present} }

// Present reports whether an entry exists, including a cached null.
func (x Value[V]) Present() bool { return x.p != absent }

// IsNull reports whether the entry is a cached null.
func (x Value[V]) IsNull() bool { return x.p == null }

// Get returns the payload and true, or the zero V and false for absent and
// null entries.
func (x Value[V]) Get() (V, bool) { return x.v, x.p == present }

// isNil reports whether v is a nil pointer, map, slice, chan, func or
// interface. Such values are stored as the null marker.
func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Chan, reflect.Func, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

// toStoreValue frames v for the store. ok=false or a nil v yields the null marker.
func toStoreValue[V any](c codec.Codec[V], v V, ok bool) ([]byte, error) {
	if !ok || isNil(v) {
		return wire.EncodeNull(), nil
	}
	payload, err := c.Encode(v)
	if err != nil {
		return nil, err
	}
	return wire.EncodeValue(payload), nil
}

// fromStoreValue is the inverse of toStoreValue. Errors mean the bytes are not
// a V: a foreign frame or a payload the codec rejects.
func fromStoreValue[V any](c codec.Codec[V], raw []byte) (Value[V], error) {
	payload, isNull, err := wire.DecodeValue(raw)
	if err != nil {
		return Value[V]{}, err
	}
	if isNull {
		return Null[V](), nil
	}
	v, err := c.Decode(payload)
	if err != nil {
		return Value[V]{}, err
	}
	return Of(v), nil
}
