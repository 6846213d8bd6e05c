package common

import (
	"errors"
	"testing"
)

func TestGuardReportsPausedModule(t *testing.T) {
	if err := Guard(nil, "orders"); err != nil {
		t.Fatalf("nil view: %v", err)
	}
	err := Guard(Pauses{"orders": true}, " Orders ")
	if !errors.Is(err, ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused, got %v", err)
	}
	if err := Guard(Pauses{"orders": true}, "catalog"); err != nil {
		t.Fatalf("catalog should run: %v", err)
	}
}

func TestPauseSetToggles(t *testing.T) {
	set := NewPauseSet(map[string]bool{"Catalog": true, "bank": false})
	if !set.IsPaused("catalog") || set.IsPaused("bank") {
		t.Fatalf("unexpected initial state %v", set.Paused())
	}
	set.Set("service-request", true)
	set.Set("catalog", false)
	set.Set("  ", true)
	got := set.Paused()
	if len(got) != 1 || got[0] != "service-request" {
		t.Fatalf("paused = %v", got)
	}
	if err := Guard(set, "service-request"); !errors.Is(err, ErrModulePaused) {
		t.Fatalf("expected pause, got %v", err)
	}
}
