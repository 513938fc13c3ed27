// Package normalize maps source-specific raw records into the canonical
// transaction schema. All mapping functions are pure apart from the
// run-scoped token-metadata cache; a record that cannot be mapped yields
// domain.ErrUnmappable and is dropped by the batch helpers, never failing
// the batch.
package normalize

import (
	"fmt"
	"math"
	"time"

	"github.com/crazysoldier/CryptoBookKeeper/internal/domain"
)

// msThreshold separates epoch seconds from epoch milliseconds. Any numeric
// timestamp at or above 1e10 is treated as milliseconds (1e10 seconds is the
// year 2286, far outside plausible trade history).
const msThreshold = 1e10

// isoLayouts are tried in order for string timestamps. Exchange APIs are
// inconsistent about offsets and fractional seconds.
var isoLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// Time converts a raw source timestamp to UTC. Integer seconds, integer
// milliseconds, and ISO strings are all accepted; naive strings are assumed
// to be UTC already.
func Time(ts domain.Timestamp) (time.Time, error) {
	if ts.Unix != 0 {
		if ts.Unix < 0 || math.IsNaN(ts.Unix) || math.IsInf(ts.Unix, 0) {
			return time.Time{}, fmt.Errorf("normalize: %w: timestamp %v out of range", domain.ErrUnmappable, ts.Unix)
		}
		if ts.Unix >= msThreshold {
			return time.UnixMilli(int64(ts.Unix)).UTC(), nil
		}
		sec, frac := math.Modf(ts.Unix)
		return time.Unix(int64(sec), int64(frac*float64(time.Second))).UTC(), nil
	}
	if ts.ISO != "" {
		for _, layout := range isoLayouts {
			if t, err := time.Parse(layout, ts.ISO); err == nil {
				return t.UTC(), nil
			}
		}
		return time.Time{}, fmt.Errorf("normalize: %w: unparseable timestamp %q", domain.ErrUnmappable, ts.ISO)
	}
	return time.Time{}, fmt.Errorf("normalize: %w: empty timestamp", domain.ErrUnmappable)
}
