package phone

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"+1-555-0100", "15550100"},
		{"+44 (20) 7946.0958", "442079460958"},
		{"9876543210", "9876543210"},
		{"", ""},
		{"n/a", ""},
	}

	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestE164(t *testing.T) {
	if got := E164("+1-555-0100"); got != "+15550100" {
		t.Errorf("E164() = %q, want +15550100", got)
	}
	if got := E164("---"); got != "" {
		t.Errorf("E164() = %q, want empty", got)
	}
}
