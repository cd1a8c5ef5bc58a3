package votes

import (
	"testing"

	"github.com/rs/zerolog"

	"github.com/huginmedia/skald/internal/config"
)

func newTracker(t *testing.T, threshold int, instant []string, notices *[]string) *Tracker {
	t.Helper()
	cfg := &config.Config{
		SkipKeyword:      "!skip",
		SkipThreshold:    threshold,
		InstantSkipUsers: instant,
	}
	notify := func(text string) {
		if notices != nil {
			*notices = append(*notices, text)
		}
	}
	return NewTracker(cfg, notify, nil, zerolog.Nop())
}

func fired(t *testing.T, tr *Tracker) bool {
	t.Helper()
	select {
	case <-tr.Triggered():
		return true
	default:
		return false
	}
}

func TestTracker_ThresholdExactlyOnce(t *testing.T) {
	tr := newTracker(t, 3, nil, nil)

	// Scenario: alice, alice, bob, carol — the repeat from alice counts once
	// and the trigger fires exactly when carol's vote lands.
	tr.OnMessage("alice", "!skip")
	tr.OnMessage("alice", "!skip")
	tr.OnMessage("bob", "!skip")
	if fired(t, tr) {
		t.Fatalf("trigger fired before threshold")
	}

	tr.OnMessage("carol", "!skip")
	if !fired(t, tr) {
		t.Fatalf("trigger did not fire at threshold")
	}

	// Further votes after triggering must not re-fire before a reset.
	tr.OnMessage("dave", "!skip")
	tr.OnMessage("erin", "!skip")
	tr.OnMessage("frank", "!skip")
	if fired(t, tr) {
		t.Fatalf("trigger fired twice for one clip")
	}
}

func TestTracker_BelowThreshold(t *testing.T) {
	tr := newTracker(t, 3, nil, nil)

	tr.OnMessage("alice", "!skip")
	tr.OnMessage("bob", "!skip")
	if fired(t, tr) {
		t.Fatalf("trigger fired with %d distinct votes", tr.Votes())
	}
}

func TestTracker_KeywordNormalization(t *testing.T) {
	tr := newTracker(t, 2, nil, nil)

	tr.OnMessage("alice", "  !SKIP  ")
	tr.OnMessage("BOB", "!Skip")
	if !fired(t, tr) {
		t.Fatalf("normalized keyword and user ids should have triggered")
	}
}

func TestTracker_IgnoresOtherMessages(t *testing.T) {
	tr := newTracker(t, 1, nil, nil)

	tr.OnMessage("alice", "hello")
	tr.OnMessage("alice", "!skip please")
	tr.OnMessage("alice", "skip")
	if fired(t, tr) || tr.Votes() != 0 {
		t.Fatalf("non-keyword messages must be ignored")
	}
}

func TestTracker_InstantSkip(t *testing.T) {
	var notices []string
	tr := newTracker(t, 3, []string{"Admin"}, &notices)

	tr.OnMessage("regular", "!skip")
	tr.OnMessage("ADMIN", "!skip")
	if !fired(t, tr) {
		t.Fatalf("instant-skip user should trigger immediately")
	}
	if len(notices) != 1 {
		t.Fatalf("expected one chat notice, got %v", notices)
	}

	// The instant vote must not count toward the next clip's threshold.
	tr.Reset()
	tr.OnMessage("u1", "!skip")
	tr.OnMessage("u2", "!skip")
	if fired(t, tr) {
		t.Fatalf("instant skip leaked into the next accumulation window")
	}
}

func TestTracker_ResetReturnsToIdle(t *testing.T) {
	tr := newTracker(t, 2, nil, nil)

	tr.OnMessage("a", "!skip")
	tr.OnMessage("b", "!skip")
	if !fired(t, tr) {
		t.Fatalf("expected trigger")
	}

	tr.Reset()
	if tr.Votes() != 0 {
		t.Fatalf("reset must clear votes")
	}
	if fired(t, tr) {
		t.Fatalf("reset must drain the trigger")
	}

	// A fresh accumulation window works after reset.
	tr.OnMessage("c", "!skip")
	tr.OnMessage("d", "!skip")
	if !fired(t, tr) {
		t.Fatalf("tracker did not trigger after reset")
	}
}

func TestTracker_NoticeNamesCount(t *testing.T) {
	var notices []string
	tr := newTracker(t, 2, nil, &notices)

	tr.OnMessage("a", "!skip")
	tr.OnMessage("b", "!skip")
	if len(notices) != 1 {
		t.Fatalf("expected one notice, got %v", notices)
	}
	if notices[0] != "Skip threshold reached with 2 votes! Skipping the current clip." {
		t.Fatalf("unexpected notice: %q", notices[0])
	}
}
