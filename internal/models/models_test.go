package models

import (
	"testing"
	"time"
)

func TestIsTerminalStatus(t *testing.T) {
	t.Parallel()

	terminal := []string{RunStatusCompleted, RunStatusFailed, RunStatusCanceled}
	for _, s := range terminal {
		if !IsTerminalStatus(s) {
			t.Errorf("IsTerminalStatus(%q) = false, want true", s)
		}
	}
	for _, s := range []string{RunStatusPending, RunStatusRunning, "", "weird"} {
		if IsTerminalStatus(s) {
			t.Errorf("IsTerminalStatus(%q) = true, want false", s)
		}
	}

	run := Run{Status: RunStatusRunning}
	if run.IsTerminal() {
		t.Error("running run must not be terminal")
	}
	run.Status = RunStatusCanceled
	if !run.IsTerminal() {
		t.Error("canceled run must be terminal")
	}
}

func TestQuotaForPlan(t *testing.T) {
	t.Parallel()

	if q := QuotaForPlan("free"); q.MaxRunsPerMonth != 1_000 || q.MaxCostCentsPerMonth != 10_00 {
		t.Errorf("free quota = %+v", q)
	}
	if q := QuotaForPlan("pro"); q.MaxRunsPerMonth != 50_000 || q.MaxCostCentsPerMonth != 500_00 {
		t.Errorf("pro quota = %+v", q)
	}
	if q := QuotaForPlan("team"); q.MaxRunsPerMonth != 200_000 || q.MaxCostCentsPerMonth != 2_000_00 {
		t.Errorf("team quota = %+v", q)
	}

	// Unknown plans fall back to free limits.
	if q := QuotaForPlan("enterprise-trial"); q != PlanQuotas[DefaultPlan] {
		t.Errorf("unknown plan quota = %+v, want default", q)
	}
}

func TestCurrentPeriod(t *testing.T) {
	t.Parallel()

	tests := []struct {
		now  time.Time
		want string
	}{
		{time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC), "2026-08"},
		{time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), "2026-01"},
		// Local time near a month boundary resolves in UTC.
		{time.Date(2026, 3, 1, 0, 30, 0, 0, time.FixedZone("plus2", 2*3600)), "2026-02"},
	}
	for _, tt := range tests {
		if got := CurrentPeriod(tt.now); got != tt.want {
			t.Errorf("CurrentPeriod(%v) = %q, want %q", tt.now, got, tt.want)
		}
	}
}
