// Package codec provides payload codecs for lockcache values.
//
// A codec only turns V into bytes and back. The cache frames the bytes
// itself, so a codec never sees the null marker: Decode is only called for
// present, non-null entries.
package codec

// Codec encodes/decodes values V to []byte for storage.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}
