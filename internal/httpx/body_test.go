package httpx

import "testing"

func TestParseChunkSize(t *testing.T) {
	cases := []struct {
		line string
		want int64
	}{
		{"4", 4},
		{"1a", 26},
		{"0", 0},
		{"5;foo=bar", 5},
		{"  a  ", 10},
	}
	for _, c := range cases {
		got, err := ParseChunkSize([]byte(c.line))
		if err != nil {
			t.Fatalf("ParseChunkSize(%q): %v", c.line, err)
		}
		if got != c.want {
			t.Fatalf("ParseChunkSize(%q) = %d, want %d", c.line, got, c.want)
		}
	}
}

func TestParseChunkSizeBad(t *testing.T) {
	for _, line := range []string{"", "ZZZ", "-1", ";foo=bar"} {
		if _, err := ParseChunkSize([]byte(line)); err == nil {
			t.Fatalf("expected error for %q", line)
		}
	}
}
