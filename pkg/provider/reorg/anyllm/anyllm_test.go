package anyllm

import "testing"

// ── stripFences ───────────────────────────────────────────────────────────────

func TestStripFences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "bare json",
			in:   `[{"merged_from":[0],"text":"hi"}]`,
			want: `[{"merged_from":[0],"text":"hi"}]`,
		},
		{
			name: "json fence",
			in:   "```json\n[{\"merged_from\":[0],\"text\":\"hi\"}]\n```",
			want: `[{"merged_from":[0],"text":"hi"}]`,
		},
		{
			name: "plain fence",
			in:   "```\n[]\n```",
			want: `[]`,
		},
		{
			name: "surrounding whitespace",
			in:   "  \n[]\n  ",
			want: `[]`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := stripFences(tt.in); got != tt.want {
				t.Errorf("stripFences(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNew_UnknownProvider(t *testing.T) {
	if _, err := New("carrierpigeon", "some-model"); err == nil {
		t.Fatal("expected error for unknown provider name, got nil")
	}
}
