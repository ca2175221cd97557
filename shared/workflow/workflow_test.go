package workflow

import "testing"

func TestTransitionFor(t *testing.T) {
	cases := []struct {
		status    string
		eventType string
		want      string
		ok        bool
	}{
		{StatusTodo, EventStarted, StatusInProgress, true},
		{StatusRework, EventStarted, StatusInProgress, true},
		{StatusInProgress, EventSubmitted, StatusSubmitted, true},
		{StatusSubmitted, EventReworkRequested, StatusRework, true},
		{StatusSubmitted, EventAccepted, StatusAccepted, true},
		{StatusTodo, EventSubmitted, "", false},
		{StatusTodo, EventAccepted, "", false},
		{StatusInProgress, EventStarted, "", false},
		{StatusInProgress, EventAccepted, "", false},
		{StatusRework, EventSubmitted, "", false},
		{StatusAccepted, EventStarted, "", false},
		{StatusAccepted, EventAccepted, "", false},
	}
	for _, tc := range cases {
		got, ok := TransitionFor(tc.status, tc.eventType)
		if ok != tc.ok || got != tc.want {
			t.Errorf("TransitionFor(%s, %s) = (%q, %v), want (%q, %v)", tc.status, tc.eventType, got, ok, tc.want, tc.ok)
		}
	}
}

func TestTransitionForNormalizesInput(t *testing.T) {
	got, ok := TransitionFor(" todo ", "started")
	if !ok || got != StatusInProgress {
		t.Fatalf("expected normalized lookup to succeed, got (%q, %v)", got, ok)
	}
}

func TestIsTerminal(t *testing.T) {
	if !IsTerminal(StatusAccepted) {
		t.Fatalf("expected ACCEPTED to be terminal")
	}
	for _, s := range []string{StatusTodo, StatusInProgress, StatusSubmitted, StatusRework} {
		if IsTerminal(s) {
			t.Fatalf("expected %s to be non-terminal", s)
		}
	}
}

func TestActionClassification(t *testing.T) {
	for _, a := range []string{ActionStart, ActionResume, ActionReworkStart} {
		if !IsStartAction(a) {
			t.Errorf("expected %s to be a start action", a)
		}
		if IsEndAction(a) {
			t.Errorf("expected %s not to be an end action", a)
		}
	}
	for _, a := range []string{ActionPause, ActionSubmit} {
		if !IsEndAction(a) {
			t.Errorf("expected %s to be an end action", a)
		}
		if IsStartAction(a) {
			t.Errorf("expected %s not to be a start action", a)
		}
	}
	if IsStartAction("") || IsEndAction("") {
		t.Fatalf("empty action should classify as neither")
	}
}

func TestValidateActionSequence(t *testing.T) {
	cases := []struct {
		name       string
		status     string
		lastAction string
		action     string
		wantErr    bool
	}{
		{"start fresh todo", StatusTodo, "", ActionStart, false},
		{"start after submit on rework", StatusRework, ActionSubmit, ActionStart, false},
		{"start while in progress", StatusInProgress, ActionPause, ActionStart, true},
		{"start after pause", StatusTodo, ActionPause, ActionStart, true},
		{"rework start on rework", StatusRework, ActionSubmit, ActionReworkStart, false},
		{"rework start fresh", StatusRework, "", ActionReworkStart, false},
		{"rework start wrong status", StatusTodo, "", ActionReworkStart, true},
		{"rework start after pause", StatusRework, ActionPause, ActionReworkStart, true},
		{"pause after start", StatusInProgress, ActionStart, ActionPause, false},
		{"pause after resume", StatusInProgress, ActionResume, ActionPause, false},
		{"pause after rework start", StatusInProgress, ActionReworkStart, ActionPause, false},
		{"pause after pause", StatusInProgress, ActionPause, ActionPause, true},
		{"pause with no history", StatusInProgress, "", ActionPause, true},
		{"resume after pause", StatusInProgress, ActionPause, ActionResume, false},
		{"resume after start", StatusInProgress, ActionStart, ActionResume, true},
		{"submit after start", StatusInProgress, ActionStart, ActionSubmit, false},
		{"submit after pause", StatusInProgress, ActionPause, ActionSubmit, false},
		{"submit wrong status", StatusSubmitted, ActionStart, ActionSubmit, true},
		{"submit with no history", StatusInProgress, "", ActionSubmit, true},
		{"unknown action", StatusTodo, "", "ARCHIVE", true},
	}
	for _, tc := range cases {
		err := ValidateActionSequence(tc.status, tc.lastAction, tc.action)
		if (err != nil) != tc.wantErr {
			t.Errorf("%s: ValidateActionSequence(%s, %q, %s) err = %v, wantErr %v", tc.name, tc.status, tc.lastAction, tc.action, err, tc.wantErr)
		}
	}
}

func TestDefaultSettings(t *testing.T) {
	s := DefaultSettings()
	if s.WIPLimit != 1 || s.AutoTimeoutMinutes != 120 || s.WorkdayHours != 8 {
		t.Fatalf("unexpected defaults: %+v", s)
	}
	if w := s.DifficultyWeight(DifficultyHard); w != 2.0 {
		t.Fatalf("expected HARD weight 2.0, got %v", w)
	}
	if w := s.DifficultyWeight("UNCLASSIFIED"); w != 1.0 {
		t.Fatalf("expected fallback weight 1.0, got %v", w)
	}
}

func TestWeightedCases(t *testing.T) {
	s := DefaultSettings()
	got := s.WeightedCases(map[string]int{
		DifficultyEasy: 4,
		DifficultyHard: 2,
		"UNCLASSIFIED": 3,
	})
	if got != 11.0 {
		t.Fatalf("WeightedCases() = %v, want 11.0", got)
	}
	if got := s.WeightedCases(nil); got != 0.0 {
		t.Fatalf("WeightedCases(nil) = %v, want 0.0", got)
	}
}
