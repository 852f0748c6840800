package loader

import "testing"

func TestState_DropsStaleResults(t *testing.T) {
	var s State
	s.SetActiveLevel(2)

	// Batch issued at level 2, then the view zooms and level 1 becomes active.
	stale := Result{Level: 2, Entries: []Entry{{Name: "A1"}}}
	s.SetActiveLevel(1)
	if s.Commit(stale) {
		t.Fatal("stale result was committed")
	}
	if _, ok := s.Snapshot(); ok {
		t.Fatal("nothing should be committed yet")
	}

	fresh := Result{Level: 1, Entries: []Entry{{Name: "A1"}, {Name: "A2"}}}
	if !s.Commit(fresh) {
		t.Fatal("fresh result was dropped")
	}
	got, ok := s.Current()
	if !ok || got.Level != 1 || len(got.Entries) != 2 {
		t.Fatalf("Current() = %+v, %v", got, ok)
	}
}

func TestState_CurrentBlanksOnLevelChange(t *testing.T) {
	var s State
	s.Commit(Result{Level: 0, Entries: []Entry{{Name: "A1"}}})

	if changed := s.SetActiveLevel(0); changed {
		t.Fatal("same level should not report a change")
	}
	if !s.SetActiveLevel(3) {
		t.Fatal("expected level change")
	}
	if _, ok := s.Current(); ok {
		t.Fatal("old level must not be current after a switch")
	}
	if r, ok := s.Snapshot(); !ok || r.Level != 0 {
		t.Fatalf("snapshot should keep last commit, got %+v %v", r, ok)
	}
}
