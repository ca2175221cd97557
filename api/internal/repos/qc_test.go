package repos

import (
	"testing"

	"github.com/esheo1787/qc-management-system/shared/workflow"
)

func strPtr(s string) *string { return &s }

func TestClassifyDisagreement(t *testing.T) {
	cases := []struct {
		name       string
		autoQc     *string
		caseStatus string
		hasRework  bool
		want       string
	}{
		{"no auto-qc verdict", nil, workflow.StatusAccepted, true, ""},
		{"fail accepted", strPtr(AutoQcWarn), workflow.StatusAccepted, false, DisagreementFalseNegative},
		{"incomplete accepted", strPtr(AutoQcIncomplete), workflow.StatusAccepted, false, DisagreementFalseNegative},
		{"fail not accepted", strPtr(AutoQcWarn), workflow.StatusSubmitted, false, ""},
		{"pass with rework", strPtr(AutoQcPass), workflow.StatusRework, true, DisagreementFalsePositive},
		{"pass accepted after rework", strPtr(AutoQcPass), workflow.StatusAccepted, true, DisagreementFalsePositive},
		{"pass clean", strPtr(AutoQcPass), workflow.StatusAccepted, false, ""},
		{"pass still open", strPtr(AutoQcPass), workflow.StatusInProgress, false, ""},
		{"fail with rework not accepted", strPtr(AutoQcIncomplete), workflow.StatusRework, true, ""},
	}
	for _, tc := range cases {
		got := classifyDisagreement(tc.autoQc, tc.caseStatus, tc.hasRework)
		if got != tc.want {
			t.Errorf("%s: classifyDisagreement() = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestTotalIssueCount(t *testing.T) {
	cases := []struct {
		name string
		raw  []byte
		want int
	}{
		{"empty payload", nil, 0},
		{"empty object", []byte(`{}`), 0},
		{"single segment", []byte(`{"liver": 3}`), 3},
		{"multiple segments", []byte(`{"liver": 3, "portal_vein": 2, "hepatic_vein": 1}`), 6},
		{"malformed", []byte(`not json`), 0},
		{"wrong shape", []byte(`["liver"]`), 0},
	}
	for _, tc := range cases {
		if got := totalIssueCount(tc.raw); got != tc.want {
			t.Errorf("%s: totalIssueCount() = %d, want %d", tc.name, got, tc.want)
		}
	}
}

func TestDisagreementRateRounding(t *testing.T) {
	if got := round4(1.0 / 3.0); got != 0.3333 {
		t.Fatalf("round4(1/3) = %v, want 0.3333", got)
	}
	if got := round4(2.0 / 3.0); got != 0.6667 {
		t.Fatalf("round4(2/3) = %v, want 0.6667", got)
	}
	if got := round4(0); got != 0.0 {
		t.Fatalf("round4(0) = %v, want 0", got)
	}
}
