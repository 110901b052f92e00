package scheduler

import (
	"testing"
	"time"

	"DealSync/internal/config"
)

func TestCadenceShouldRun(t *testing.T) {
	c, err := NewCadence(&config.ScheduleConfig{
		Timezone:        "America/Chicago",
		ActiveStartHour: 9,
		ActiveEndHour:   24,
		SparseInterval:  30,
	})
	if err != nil {
		t.Fatalf("NewCadence: %v", err)
	}
	chicago, _ := time.LoadLocation("America/Chicago")

	tests := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"active morning", time.Date(2024, 6, 3, 9, 5, 0, 0, chicago), true},
		{"active late", time.Date(2024, 6, 3, 23, 55, 0, 0, chicago), true},
		{"quiet on the half hour", time.Date(2024, 6, 3, 3, 30, 0, 0, chicago), true},
		{"quiet on the hour", time.Date(2024, 6, 3, 0, 0, 0, 0, chicago), true},
		{"quiet off interval", time.Date(2024, 6, 3, 3, 35, 0, 0, chicago), false},
		{"quiet before start", time.Date(2024, 6, 3, 8, 55, 0, 0, chicago), false},
		// 14:05 UTC = 09:05 CDT
		{"converted from utc", time.Date(2024, 6, 3, 14, 5, 0, 0, time.UTC), true},
		// 13:05 UTC = 08:05 CDT
		{"utc before window", time.Date(2024, 6, 3, 13, 5, 0, 0, time.UTC), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.ShouldRun(tt.at); got != tt.want {
				t.Errorf("ShouldRun(%v): got %v, want %v", tt.at, got, tt.want)
			}
		})
	}
}

func TestCadenceWrapsMidnight(t *testing.T) {
	c, err := NewCadence(&config.ScheduleConfig{
		Timezone:        "UTC",
		ActiveStartHour: 22,
		ActiveEndHour:   2,
		SparseInterval:  15,
	})
	if err != nil {
		t.Fatalf("NewCadence: %v", err)
	}
	for h, want := range map[int]bool{21: false, 22: true, 23: true, 0: true, 1: true, 2: false} {
		at := time.Date(2024, 1, 1, h, 7, 0, 0, time.UTC)
		if got := c.ShouldRun(at); got != want {
			t.Errorf("hour %d: got %v, want %v", h, got, want)
		}
	}
}

func TestNewCadenceRejectsBadConfig(t *testing.T) {
	bad := []config.ScheduleConfig{
		{Timezone: "Mars/Olympus", ActiveStartHour: 9, ActiveEndHour: 24, SparseInterval: 30},
		{Timezone: "UTC", ActiveStartHour: 9, ActiveEndHour: 25, SparseInterval: 30},
		{Timezone: "UTC", ActiveStartHour: 9, ActiveEndHour: 24, SparseInterval: 0},
	}
	for i := range bad {
		if _, err := NewCadence(&bad[i]); err == nil {
			t.Errorf("config %d: expected error", i)
		}
	}
}
