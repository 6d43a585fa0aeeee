package ghola

import (
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/segmentio/fasthash/fnv1a"

	"github.com/seb7887/lazarus/sietch"
)

const graphCachePrefix = "lazarus:graph:"

// Fingerprint hashes everything in reg that shapes the dependency graph.
// Two registries with the same types, columns and references share a
// fingerprint, so a cached graph is reused until the schema changes.
func Fingerprint(reg *sietch.Registry) string {
	h := fnv1a.Init64
	for _, t := range reg.Types() {
		h = fnv1a.AddString64(h, t.Name)
		h = fnv1a.AddString64(h, t.Table)
		h = fnv1a.AddString64(h, strconv.FormatBool(t.SoftDeletable()))
		for _, c := range t.Columns() {
			h = fnv1a.AddString64(h, c)
		}
		for _, ref := range t.References {
			h = fnv1a.AddString64(h, ref.Field)
			h = fnv1a.AddString64(h, ref.Target)
			h = fnv1a.AddString64(h, ref.Kind.String())
			h = fnv1a.AddString64(h, ref.Discriminator)
		}
		h = fnv1a.AddString64(h, ";")
	}
	return fmt.Sprintf("%016x", h)
}

// NewRedisGraphCache caches dependency graphs in Redis.
func NewRedisGraphCache(client *redis.Client, ttl time.Duration) *sietch.RedisCache[DependencyGraph] {
	return sietch.NewRedisCache[DependencyGraph](client, ttl, graphCachePrefix)
}
