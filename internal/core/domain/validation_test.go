package domain

import "testing"

func TestParseValidationMode(t *testing.T) {
	tests := []struct {
		in      string
		want    ValidationMode
		wantErr bool
	}{
		{"enforced", ValidationEnforced, false},
		{"monitor", ValidationMonitorOnly, false},
		{"disabled", ValidationDisabled, false},
		{"", ValidationEnforced, false}, // unset falls back to the safe default
		{"off", "", true},
		{"Enforced", "", true},
	}
	for _, tt := range tests {
		got, err := ParseValidationMode(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseValidationMode(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseValidationMode(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
