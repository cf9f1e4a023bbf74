package config

import (
	"testing"
	"time"
)

// Reference week:
// Mon 15.10.2018 ... Sun 21.10.2018

func date(day, hour, min, sec int) time.Time {
	return time.Date(2018, 10, day, hour, min, sec, 0, time.UTC)
}

func windowConfig(since, till TimeOfDay, days []time.Weekday) TimelapseConfig {
	cfg := Default()
	cfg.SinceTOD = since
	cfg.TillTOD = till
	cfg.WeekDays = days
	return cfg
}

func TestPermitsAt_PlainWindow(t *testing.T) {
	cfg := windowConfig(
		TimeOfDay{10, 33, 0},
		TimeOfDay{10, 35, 0},
		[]time.Weekday{time.Monday, time.Tuesday, time.Sunday},
	)

	cases := []struct {
		name string
		now  time.Time
		want bool
	}{
		{"monday inside window", date(15, 10, 34, 0), true},
		{"monday at window start", date(15, 10, 33, 0), true},
		{"monday at window end", date(15, 10, 35, 0), true},
		{"monday after window", date(15, 10, 36, 0), false},
		{"monday before window", date(15, 10, 32, 59), false},
		{"wednesday excluded weekday", date(17, 10, 34, 0), false},
		{"sunday inside window", date(21, 10, 34, 0), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := cfg.PermitsAt(tc.now); got != tc.want {
				t.Errorf("PermitsAt(%v) = %v, want %v", tc.now, got, tc.want)
			}
		})
	}
}

func TestPermitsAt_WindowSpansMidnight(t *testing.T) {
	cfg := windowConfig(
		TimeOfDay{22, 0, 0},
		TimeOfDay{2, 0, 0},
		[]time.Weekday{
			time.Monday, time.Tuesday, time.Wednesday, time.Thursday,
			time.Friday, time.Saturday, time.Sunday,
		},
	)

	cases := []struct {
		name string
		now  time.Time
		want bool
	}{
		{"late evening", date(15, 23, 30, 0), true},
		{"at start", date(15, 22, 0, 0), true},
		{"just past midnight", date(16, 0, 30, 0), true},
		{"at end boundary", date(16, 2, 0, 0), true},
		{"after end", date(16, 3, 0, 0), false},
		{"mid afternoon", date(16, 14, 0, 0), false},
		{"just before start", date(15, 21, 59, 59), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := cfg.PermitsAt(tc.now); got != tc.want {
				t.Errorf("PermitsAt(%v) = %v, want %v", tc.now, got, tc.want)
			}
		})
	}
}

func TestPermitsAt_DefaultAlwaysPermits(t *testing.T) {
	cfg := Default()
	for day := 15; day <= 21; day++ {
		for _, now := range []time.Time{
			date(day, 0, 0, 0),
			date(day, 12, 0, 0),
			date(day, 23, 59, 59),
		} {
			if !cfg.PermitsAt(now) {
				t.Errorf("default config should permit %v", now)
			}
		}
	}
}

func TestPermitsAt_Idempotent(t *testing.T) {
	cfg := windowConfig(
		TimeOfDay{10, 30, 0},
		TimeOfDay{22, 0, 0},
		[]time.Weekday{time.Tuesday, time.Wednesday, time.Thursday},
	)
	now := date(16, 12, 0, 0)
	first := cfg.PermitsAt(now)
	for i := 0; i < 100; i++ {
		if got := cfg.PermitsAt(now); got != first {
			t.Fatalf("PermitsAt changed result on call %d: %v -> %v", i, first, got)
		}
	}
}
