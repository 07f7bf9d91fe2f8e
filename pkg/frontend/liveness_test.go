package frontend

import (
	"sort"
	"strings"
	"testing"
)

func TestLiveDeclarations(t *testing.T) {
	tests := []struct {
		name   string
		src    string
		result string
		want   []string
	}{
		{
			name:   "direct dependency",
			src:    "int a = 1, b = 2, c; c = a + 1;",
			result: "c",
			want:   []string{"a", "c"},
		},
		{
			name:   "transitive dependency",
			src:    "int a = 1, b = a * 2, c = b + 1, d = 7;",
			result: "c",
			want:   []string{"a", "b", "c"},
		},
		{
			name:   "compound assignment reads its target",
			src:    "int a, b; b += a;",
			result: "b",
			want:   []string{"a", "b"},
		},
		{
			name:   "loop condition guards body",
			src:    "int i, n = 10, s; loopc i < n: begin i += 1; s += 2; end",
			result: "s",
			want:   []string{"i", "n", "s"},
		},
		{
			name:   "elif depends on earlier conditions",
			src:    "int a, b, r; if a > 0: begin end elif b > 0: begin r = 1; end",
			result: "r",
			want:   []string{"a", "b", "r"},
		},
		{
			name:   "condition after statement does not leak",
			src:    "int a, r, z; if a > 0: begin z = 1; end r = 5;",
			result: "r",
			want:   []string{"r"},
		},
		{
			name:   "loop counters stay live",
			src:    "int i, j, r = 1; loopc i < 3: begin i += 1; j += 2; end",
			result: "r",
			want:   []string{"i", "r"},
		},
		{
			name:   "undeclared result",
			src:    "int a;",
			result: "missing",
			want:   nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prog, errs := ParseSource(tt.src)
			if len(errs) > 0 {
				t.Fatalf("parse: %v", errs)
			}

			live := LiveDeclarations(prog, tt.result)
			var got []string
			for name := range live {
				got = append(got, name)
			}
			sort.Strings(got)

			if strings.Join(got, ",") != strings.Join(tt.want, ",") {
				t.Errorf("live = %v, want %v", got, tt.want)
			}
		})
	}
}
