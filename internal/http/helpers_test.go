package http

import "testing"

func TestFormatEuros(t *testing.T) {
	tests := []struct {
		cents int64
		want  string
	}{
		{0, "€0,00"},
		{5, "€0,05"},
		{1250, "€12,50"},
		{-199, "-€1,99"},
	}
	for _, tt := range tests {
		if got := formatEuros(tt.cents); got != tt.want {
			t.Errorf("formatEuros(%d) = %q, want %q", tt.cents, got, tt.want)
		}
	}
}

func TestBarWidth(t *testing.T) {
	tests := []struct {
		name       string
		value, max int64
		want       int
	}{
		{"zero max", 10, 0, 0},
		{"zero value", 0, 100, 0},
		{"full", 100, 100, 100},
		{"half rounds", 333, 1000, 33},
		{"tiny stays visible", 1, 1000, 2},
		{"clamped", 150, 100, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := barWidth(tt.value, tt.max); got != tt.want {
				t.Errorf("barWidth(%d, %d) = %d, want %d", tt.value, tt.max, got, tt.want)
			}
		})
	}
}

func TestSanitizeInput(t *testing.T) {
	if got := sanitizeInput("  a\x00b\tc\n "); got != "ab\tc" {
		t.Errorf("sanitizeInput() = %q", got)
	}
}
