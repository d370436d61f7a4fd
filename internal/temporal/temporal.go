// Package temporal normalizes generated date text into day-granularity date sets.
package temporal

import (
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Delimiter separates date tokens in generated text.
const Delimiter = "///"

// none is the generator's answer when the text names no date.
const none = "none"

var tokenLayouts = []string{"02/01/2006", "2/1/2006"}

// Midnight truncates t to 00:00 UTC of its own calendar day.
func Midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Normalize parses raw into a sorted, deduplicated set of midnight dates.
// Tokens that fail to parse are logged and dropped. When nothing survives the
// result is the publication day alone, so it is never empty.
func Normalize(raw string, pub time.Time, logger *zap.Logger) []time.Time {
	if logger == nil {
		logger = zap.NewNop()
	}
	seen := make(map[time.Time]struct{})
	var out []time.Time

	raw = strings.TrimSpace(raw)
	if raw != "" && !strings.EqualFold(raw, none) {
		for _, tok := range strings.Split(raw, Delimiter) {
			tok = strings.TrimSpace(tok)
			if tok == "" || strings.EqualFold(tok, none) {
				continue
			}
			d, ok := parseToken(tok)
			if !ok {
				logger.Warn("unparsable date token", zap.String("token", tok))
				continue
			}
			if _, dup := seen[d]; dup {
				continue
			}
			seen[d] = struct{}{}
			out = append(out, d)
		}
	}

	if len(out) == 0 {
		return []time.Time{Midnight(pub)}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

func parseToken(tok string) (time.Time, bool) {
	for _, layout := range tokenLayouts {
		if t, err := time.Parse(layout, tok); err == nil {
			return Midnight(t), true
		}
	}
	return time.Time{}, false
}

// Days returns every midnight from start to end inclusive. It returns nil
// when end precedes start.
func Days(start, end time.Time) []time.Time {
	start, end = Midnight(start), Midnight(end)
	var out []time.Time
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		out = append(out, d)
	}
	return out
}
