package ts

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

func TestNowTruncates(t *testing.T) {
	at := time.Date(2025, time.July, 4, 12, 30, 15, 999_000_000, time.FixedZone("x", 3600))
	c := NewClock(clockwork.NewFakeClockAt(at))
	got := c.Now()
	want := time.Date(2025, time.July, 4, 11, 30, 15, 0, time.UTC)
	if !got.Equal(want) || got.Location() != time.UTC {
		t.Errorf("Now() = %v, want %v", got, want)
	}
}
