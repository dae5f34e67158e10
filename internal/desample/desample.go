// Package desample reduces an ordered time-series of object keys to a
// smaller, evenly time-distributed subset.
package desample

import (
	"math"
	"path"
	"sort"
	"strconv"
	"strings"
)

// keyTime pairs an object key with the Unix timestamp parsed from it.
type keyTime struct {
	key string
	ts  int64
}

// ParseKeyTimestamp extracts the Unix timestamp encoded as the numeric
// filename stem of the key's final path segment (".../{digits}.{ext}").
func ParseKeyTimestamp(key string) (int64, bool) {
	base := path.Base(key)
	if dot := strings.Index(base, "."); dot >= 0 {
		base = base[:dot]
	}
	if base == "" {
		return 0, false
	}
	ts, err := strconv.ParseInt(base, 10, 64)
	if err != nil {
		return 0, false
	}
	return ts, true
}

// Desample selects up to totalWanted keys from sourceKeys, evenly distributed
// over the time span the keys cover. The earliest and latest keys are always
// kept. Keys whose timestamps cannot be parsed are silently dropped from
// consideration. The result is chronologically ordered, duplicate free, and
// never longer than totalWanted; it may be shorter when distinct target slots
// resolve to the same key.
func Desample(sourceKeys []string, totalWanted int) []string {
	if totalWanted <= 0 || len(sourceKeys) == 0 {
		return []string{}
	}

	items := make([]keyTime, 0, len(sourceKeys))
	for _, key := range sourceKeys {
		ts, ok := ParseKeyTimestamp(key)
		if !ok {
			continue
		}
		items = append(items, keyTime{key: key, ts: ts})
	}
	if len(items) == 0 {
		return []string{}
	}

	sort.SliceStable(items, func(i, j int) bool { return items[i].ts < items[j].ts })

	if len(items) <= totalWanted {
		return keysOf(items)
	}

	first := items[0]
	last := items[len(items)-1]
	span := last.ts - first.ts

	if span == 0 {
		return keysOf(items[:totalWanted])
	}

	switch totalWanted {
	case 1:
		return []string{first.key}
	case 2:
		return []string{first.key, last.key}
	}

	selected := make(map[int]bool, totalWanted)
	selected[0] = true
	picked := []keyTime{first}

	interval := float64(span) / float64(totalWanted-1)
	for i := 1; i <= totalWanted-2; i++ {
		target := float64(first.ts) + float64(i)*interval

		// Stable first-match: a later key must be strictly closer to win.
		closest := 0
		closestDist := math.Abs(float64(items[0].ts) - target)
		for j := 1; j < len(items); j++ {
			dist := math.Abs(float64(items[j].ts) - target)
			if dist < closestDist {
				closest = j
				closestDist = dist
			}
		}

		// A slot whose closest key was already taken is skipped; the result
		// shrinking below totalWanted is acceptable.
		if selected[closest] {
			continue
		}
		selected[closest] = true
		picked = append(picked, items[closest])
	}

	if !selected[len(items)-1] {
		picked = append(picked, last)
	}

	sort.SliceStable(picked, func(i, j int) bool { return picked[i].ts < picked[j].ts })
	return keysOf(picked)
}

func keysOf(items []keyTime) []string {
	keys := make([]string, len(items))
	for i, item := range items {
		keys[i] = item.key
	}
	return keys
}
