// Package lockcache is a cache-aside layer over a shared key/value store with
// cluster-wide load coordination.
//
// A Cache is one named region of a provider.Store. Plain reads and writes go
// straight to the store; GetOrLoad computes missing values under a per-key
// store lock so that a miss is loaded once across every process sharing the
// region.
//
// Components:
//   - provider.Store: byte store with per-entry TTL/max-idle and per-key locks
//     (provider/redis for clusters, provider/local for a single process).
//   - Codec[V]: (de)serializes V <-> []byte.
//   - Value[V]: read result that tells an absent key from a cached null.
//
// Stored values are framed (internal/wire) so that a null result can be cached:
//
//	"LKCV" | ver | kind=1 | len | payload   value
//	"LKCV" | ver | kind=2                   null marker
//
// Load pattern:
//
//	u, ok, err := users.GetOrLoad(ctx, "u:1", func(ctx context.Context) (User, bool, error) {
//	    return db.FindUser(ctx, "1") // ok=false caches "not found"
//	})
package lockcache
