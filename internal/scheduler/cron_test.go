package scheduler

import (
	"testing"
	"time"
)

func TestParseCron_Valid(t *testing.T) {
	expr, err := ParseCron("*/5 * * * *")
	if err != nil {
		t.Fatalf("ParseCron: %v", err)
	}
	if expr.String() != "*/5 * * * *" {
		t.Fatalf("expected raw %q, got %q", "*/5 * * * *", expr.String())
	}
}

func TestParseCron_Invalid(t *testing.T) {
	_, err := ParseCron("not a cron")
	if err == nil {
		t.Fatal("expected error for invalid cron expression")
	}
}

func TestCronExpr_Next(t *testing.T) {
	tests := []struct {
		expr string
		from time.Time
		want time.Time
	}{
		{"0 12 * * *", time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC), time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)},
		{"30 14 * * *", time.Date(2025, 6, 15, 14, 29, 0, 0, time.UTC), time.Date(2025, 6, 15, 14, 30, 0, 0, time.UTC)},
		{"30 14 * * *", time.Date(2025, 6, 15, 14, 30, 45, 0, time.UTC), time.Date(2025, 6, 16, 14, 30, 0, 0, time.UTC)},
		{"*/5 * * * *", time.Date(2025, 1, 1, 10, 3, 0, 0, time.UTC), time.Date(2025, 1, 1, 10, 5, 0, 0, time.UTC)},
		{"*/5 * * * *", time.Date(2025, 1, 1, 10, 5, 0, 0, time.UTC), time.Date(2025, 1, 1, 10, 10, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		expr, err := ParseCron(tt.expr)
		if err != nil {
			t.Fatalf("ParseCron(%q): %v", tt.expr, err)
		}
		if got := expr.Next(tt.from); !got.Equal(tt.want) {
			t.Errorf("%q.Next(%v) = %v, want %v", tt.expr, tt.from, got, tt.want)
		}
	}
}

func TestParseCron_Descriptor(t *testing.T) {
	expr, err := ParseCron("@every 90s")
	if err != nil {
		t.Fatalf("ParseCron: %v", err)
	}
	base := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	if got := expr.Next(base); !got.Equal(base.Add(90 * time.Second)) {
		t.Fatalf("next = %v, want %v", got, base.Add(90*time.Second))
	}
}
