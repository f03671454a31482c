package codec

import (
	"github.com/fxamacker/cbor/v2"
)

// CBOROptions configure a CBOR codec. The zero value gives compact,
// unsorted encoding and lenient decoding.
type CBOROptions struct {
	// Deterministic selects RFC 8949 Core Deterministic encoding for
	// byte-stable output.
	Deterministic bool
	// Strict rejects unknown struct fields and duplicate map keys on decode,
	// so an entry written for another type surfaces as a type mismatch.
	Strict bool
}

// CBOR is a Codec backed by fxamacker/cbor. Construct with NewCBOR or MustCBOR.
// Time values are encoded as RFC3339Nano.
type CBOR[V any] struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

var _ Codec[struct{}] = CBOR[struct{}]{}

func NewCBOR[V any](o CBOROptions) (CBOR[V], error) {
	eo := cbor.PreferredUnsortedEncOptions()
	if o.Deterministic {
		eo = cbor.CoreDetEncOptions()
	}
	eo.Time = cbor.TimeRFC3339Nano
	em, err := eo.EncMode()
	if err != nil {
		return CBOR[V]{}, err
	}

	var do cbor.DecOptions
	if o.Strict {
		do.DupMapKey = cbor.DupMapKeyEnforcedAPF
		do.ExtraReturnErrors = cbor.ExtraDecErrorUnknownField
	}
	dm, err := do.DecMode()
	if err != nil {
		return CBOR[V]{}, err
	}
	return CBOR[V]{enc: em, dec: dm}, nil
}

// MustCBOR is like NewCBOR but panics on error. Meant for package-level vars.
func MustCBOR[V any](o CBOROptions) CBOR[V] {
	c, err := NewCBOR[V](o)
	if err != nil {
		panic(err)
	}
	return c
}

func (c CBOR[V]) Encode(v V) ([]byte, error) { return c.enc.Marshal(v) }

func (c CBOR[V]) Decode(b []byte) (V, error) {
	var v V
	err := c.dec.Unmarshal(b, &v)
	return v, err
}
