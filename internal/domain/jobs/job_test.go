package jobs

import (
	"testing"
	"time"
)

func TestDirNameFor(t *testing.T) {
	ts := time.Date(2024, 3, 9, 7, 5, 1, 0, time.UTC)
	if got := DirNameFor(ts, "abc"); got != "20240309070501-abc" {
		t.Fatalf("DirNameFor: got=%q", got)
	}
}

func TestStatusTerminal(t *testing.T) {
	for s, want := range map[Status]bool{
		StatusScheduled: false,
		StatusRunning:   false,
		StatusDone:      true,
		StatusError:     true,
	} {
		if s.Terminal() != want {
			t.Fatalf("%s.Terminal() = %v", s, !want)
		}
	}
}
