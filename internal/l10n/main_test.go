package l10n

import "testing"

func TestT_Untranslated(t *testing.T) {
	if got := T("Removed %s", "/tmp/x"); got != "Removed /tmp/x" {
		t.Errorf("T() = %q", got)
	}
	if got := T("Done"); got != "Done" {
		t.Errorf("T() = %q", got)
	}
}

func TestTN_Untranslated(t *testing.T) {
	tests := []struct {
		n        uint32
		expected string
	}{
		{n: 1, expected: "Removed 1 file"},
		{n: 3, expected: "Removed 3 files"},
	}
	for _, tt := range tests {
		got := TN("Removed %d file", "Removed %d files", tt.n, tt.n)
		if got != tt.expected {
			t.Errorf("TN(%d) = %q, want %q", tt.n, got, tt.expected)
		}
	}
}
