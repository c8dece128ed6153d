// Package buyday maps transfer timestamps onto contest buy-day buckets.
//
// With the default 24h width a bucket is a UTC calendar day labelled
// "YYYY-MM-DD". Any other width (used to run the contest at accelerated
// speed) labels buckets with their decimal index since the Unix epoch.
package buyday

import (
	"fmt"
	"strconv"
	"time"
)

// Day is the production bucket width.
const Day = 24 * time.Hour

const dateLayout = "2006-01-02"

// Bucketer assigns timestamps to fixed-width buckets.
type Bucketer struct {
	seconds int64
}

// New returns a Bucketer of the given width. Widths under one second
// fall back to Day.
func New(width time.Duration) Bucketer {
	s := int64(width / time.Second)
	if s < 1 {
		s = int64(Day / time.Second)
	}
	return Bucketer{seconds: s}
}

// Width returns the bucket width.
func (b Bucketer) Width() time.Duration {
	return time.Duration(b.seconds) * time.Second
}

// Calendar reports whether buckets are UTC calendar days.
func (b Bucketer) Calendar() bool {
	return b.seconds == int64(Day/time.Second)
}

// Index returns the bucket number of a Unix timestamp in seconds.
func (b Bucketer) Index(ts int64) int64 {
	idx := ts / b.seconds
	if ts < 0 && ts%b.seconds != 0 {
		idx--
	}
	return idx
}

// Label returns the buy-day identifier for a Unix timestamp in seconds.
func (b Bucketer) Label(ts int64) string {
	if b.Calendar() {
		return time.Unix(ts, 0).UTC().Format(dateLayout)
	}
	return strconv.FormatInt(b.Index(ts), 10)
}

// ParseIndex converts a label produced by Label back to its bucket index.
func (b Bucketer) ParseIndex(label string) (int64, error) {
	if b.Calendar() {
		t, err := time.ParseInLocation(dateLayout, label, time.UTC)
		if err != nil {
			return 0, fmt.Errorf("parse buy day %q: %w", label, err)
		}
		return b.Index(t.Unix()), nil
	}
	idx, err := strconv.ParseInt(label, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse buy day %q: %w", label, err)
	}
	return idx, nil
}

// WindowStart returns the oldest bucket index inside a window reaching
// back n buckets from the bucket containing now.
func (b Bucketer) WindowStart(now time.Time, n int) int64 {
	return b.Index(now.Unix()) - int64(n)
}
