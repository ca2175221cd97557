package workflow

import (
	"fmt"
	"strings"
)

const (
	StatusTodo       = "TODO"
	StatusInProgress = "IN_PROGRESS"
	StatusSubmitted  = "SUBMITTED"
	StatusRework     = "REWORK"
	StatusAccepted   = "ACCEPTED"
)

const (
	EventStarted         = "STARTED"
	EventSubmitted       = "SUBMITTED"
	EventReworkRequested = "REWORK_REQUESTED"
	EventAccepted        = "ACCEPTED"
)

const (
	ActionStart       = "START"
	ActionPause       = "PAUSE"
	ActionResume      = "RESUME"
	ActionSubmit      = "SUBMIT"
	ActionReworkStart = "REWORK_START"
)

const (
	DifficultyEasy     = "EASY"
	DifficultyNormal   = "NORMAL"
	DifficultyHard     = "HARD"
	DifficultyVeryHard = "VERY_HARD"
)

// caseTransitions maps current status -> event type -> next status. Pairs
// absent from the table are invalid; there is no wildcard row.
var caseTransitions = map[string]map[string]string{
	StatusTodo: {
		EventStarted: StatusInProgress,
	},
	StatusRework: {
		EventStarted: StatusInProgress,
	},
	StatusInProgress: {
		EventSubmitted: StatusSubmitted,
	},
	StatusSubmitted: {
		EventReworkRequested: StatusRework,
		EventAccepted:        StatusAccepted,
	},
}

func NormalizeStatus(status string) string {
	return strings.ToUpper(strings.TrimSpace(status))
}

func NormalizeEventType(eventType string) string {
	return strings.ToUpper(strings.TrimSpace(eventType))
}

func NormalizeAction(action string) string {
	return strings.ToUpper(strings.TrimSpace(action))
}

func NormalizeDifficulty(difficulty string) string {
	return strings.ToUpper(strings.TrimSpace(difficulty))
}

func IsValidDifficulty(difficulty string) bool {
	switch NormalizeDifficulty(difficulty) {
	case DifficultyEasy, DifficultyNormal, DifficultyHard, DifficultyVeryHard:
		return true
	}
	return false
}

func TransitionFor(status string, eventType string) (string, bool) {
	next := caseTransitions[NormalizeStatus(status)]
	if next == nil {
		return "", false
	}
	to, ok := next[NormalizeEventType(eventType)]
	return to, ok
}

func IsTerminal(status string) bool {
	return NormalizeStatus(status) == StatusAccepted
}

func IsValidStatus(status string) bool {
	switch NormalizeStatus(status) {
	case StatusTodo, StatusInProgress, StatusSubmitted, StatusRework, StatusAccepted:
		return true
	}
	return false
}

func IsValidEventType(eventType string) bool {
	switch NormalizeEventType(eventType) {
	case EventStarted, EventSubmitted, EventReworkRequested, EventAccepted:
		return true
	}
	return false
}

func IsValidAction(action string) bool {
	switch NormalizeAction(action) {
	case ActionStart, ActionPause, ActionResume, ActionSubmit, ActionReworkStart:
		return true
	}
	return false
}

func IsStartAction(action string) bool {
	switch NormalizeAction(action) {
	case ActionStart, ActionResume, ActionReworkStart:
		return true
	}
	return false
}

func IsEndAction(action string) bool {
	switch NormalizeAction(action) {
	case ActionPause, ActionSubmit:
		return true
	}
	return false
}

// ValidateActionSequence checks that action may follow lastAction for a case
// in the given status. lastAction is empty when the case has no worklogs yet.
func ValidateActionSequence(caseStatus string, lastAction string, action string) error {
	caseStatus = NormalizeStatus(caseStatus)
	lastAction = NormalizeAction(lastAction)

	switch NormalizeAction(action) {
	case ActionStart:
		if caseStatus != StatusTodo && caseStatus != StatusRework {
			return fmt.Errorf("cannot START: case status is %s", caseStatus)
		}
		if lastAction != "" && lastAction != ActionSubmit {
			return fmt.Errorf("cannot START: last action was %s", lastAction)
		}
	case ActionReworkStart:
		if caseStatus != StatusRework {
			return fmt.Errorf("REWORK_START only allowed for REWORK status")
		}
		if lastAction != "" && lastAction != ActionSubmit {
			return fmt.Errorf("cannot REWORK_START: last action was %s", lastAction)
		}
	case ActionPause:
		if !IsStartAction(lastAction) {
			return fmt.Errorf("cannot PAUSE: not in active session (last: %s)", lastActionLabel(lastAction))
		}
	case ActionResume:
		if lastAction != ActionPause {
			return fmt.Errorf("cannot RESUME: not paused (last: %s)", lastActionLabel(lastAction))
		}
	case ActionSubmit:
		if caseStatus != StatusInProgress {
			return fmt.Errorf("cannot SUBMIT: case status is %s", caseStatus)
		}
		if lastAction == "" || lastAction == ActionSubmit {
			return fmt.Errorf("cannot SUBMIT: invalid sequence (last: %s)", lastActionLabel(lastAction))
		}
	default:
		return fmt.Errorf("unknown action type: %s", action)
	}
	return nil
}

func lastActionLabel(lastAction string) string {
	if lastAction == "" {
		return "none"
	}
	return lastAction
}

func AllStatuses() []string {
	return []string{
		StatusTodo,
		StatusInProgress,
		StatusSubmitted,
		StatusRework,
		StatusAccepted,
	}
}
