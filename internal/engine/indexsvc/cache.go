package indexsvc

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/kailas-cloud/marketsearch/internal/domain/search/request"
)

// DefaultCacheTTL is the read-through result cache lifetime.
const DefaultCacheTTL = 300 * time.Second

const cacheKeyPrefix = "msearch:cache:search:"

// cacheKey derives a stable cache key from every request dimension that
// affects the result, with the record type spelled out explicitly.
func cacheKey(req request.Request) string {
	geoPart := ""
	if loc := req.Location(); loc.IsUsable() {
		geoPart = fmt.Sprintf("%g,%g,%g", loc.Lat, loc.Lng, loc.Radius())
	}

	raw := fmt.Sprintf("%s|%s|%s|%s|%d|%d|%s",
		req.RecordType(),
		req.Query(),
		req.Filters().Fingerprint(),
		req.Sort(),
		req.Page(),
		req.PerPage(),
		geoPart,
	)

	sum := sha256.Sum256([]byte(raw))
	return cacheKeyPrefix + hex.EncodeToString(sum[:16])
}
