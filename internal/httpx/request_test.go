package httpx

import "testing"

func TestParseRequestLine(t *testing.T) {
	rl, err := ParseRequestLine([]byte("GET /a/b?x=1 HTTP/1.1"))
	if err != nil {
		t.Fatal(err)
	}
	if rl.Method != MethodGet || string(rl.RequestURI) != "/a/b?x=1" || rl.Version != Version11 {
		t.Fatalf("parsed wrong: %+v", rl)
	}
}

func TestParseRequestLineBad(t *testing.T) {
	cases := []string{
		"G ET / HTTP/1.1", // space in method
		"GET / WTF/1.1",   // proto missing HTTP/
		"GET / HTTP/x.y",  // invalid version numbers
		"",                // empty
		"GET / HTTP/1",    // missing minor version
		"get / HTTP/1.1",  // lowercase method
		"GET /",           // too few fields
	}
	for _, c := range cases {
		if _, err := ParseRequestLine([]byte(c)); err == nil {
			t.Fatalf("expected error for %q", c)
		}
	}
}

func TestParseRequestLineToleratesExtraSpaces(t *testing.T) {
	rl, err := ParseRequestLine([]byte("GET   /x\tHTTP/1.0"))
	if err != nil {
		t.Fatal(err)
	}
	if rl.Method != MethodGet || string(rl.RequestURI) != "/x" || rl.Version != Version10 {
		t.Fatalf("parsed wrong: %+v", rl)
	}
}

func TestParseRequestLineZeroCopy(t *testing.T) {
	line := []byte("POST /upload HTTP/1.1")
	rl, err := ParseRequestLine(line)
	if err != nil {
		t.Fatal(err)
	}
	// RequestURI must alias the input slice, not copy it.
	line[5] = 'X'
	if rl.RequestURI[0] != 'X' {
		t.Fatalf("expected RequestURI to alias input buffer, got %q", rl.RequestURI)
	}
}
