package httpx

import "testing"

func TestCleanPath(t *testing.T) {
	cases := []struct{ in, want string }{
		{"/", "/"},
		{"", "/"},
		{"//a//b", "/a/b"},
		{"/a/./b", "/a/b"},
		{"/a/../b", "/b"},
		{"/../../a", "/a"}, // ascending past origin clamps at "/"
		{"/b/./c", "/b/c"},
		{"///a/../b/./c", "/b/c"}, // scenario 4 from spec §8
		{"/a/b/", "/a/b/"},
		{"/..", "/"},
	}
	for _, c := range cases {
		if got := CleanPath(c.in); got != c.want {
			t.Fatalf("CleanPath(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestCleanPathIdempotent(t *testing.T) {
	inputs := []string{"/a//b/../c/.", "/../x/y/", "/", "//////", "/a/b/c/../../.."}
	for _, in := range inputs {
		once := CleanPath(in)
		twice := CleanPath(once)
		if once != twice {
			t.Fatalf("CleanPath not idempotent for %q: %q vs %q", in, once, twice)
		}
	}
}
