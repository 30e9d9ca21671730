//go:build linux

package reactor

import (
	"os"
	"testing"

	"github.com/abgandar/originhttpd/internal/statem"
)

func TestAddAndWaitReportsReadable(t *testing.T) {
	p, err := New(8)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	defer w.Close()

	if err := p.Add(int(r.Fd()), statem.ReadData); err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write([]byte("x")); err != nil {
		t.Fatal(err)
	}

	events, err := p.Wait(1000)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || !events[0].Readable || events[0].Fd != int(r.Fd()) {
		t.Fatalf("got %+v", events)
	}
}

func TestModifyToWriteInterest(t *testing.T) {
	p, err := New(8)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	defer w.Close()

	if err := p.Add(int(w.Fd()), statem.ReadData); err != nil {
		t.Fatal(err)
	}
	if err := p.Modify(int(w.Fd()), statem.WriteData); err != nil {
		t.Fatal(err)
	}
	events, err := p.Wait(1000)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || !events[0].Writable {
		t.Fatalf("got %+v", events)
	}
}

func TestRemoveStopsReporting(t *testing.T) {
	p, err := New(8)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	defer w.Close()

	if err := p.Add(int(r.Fd()), statem.ReadData); err != nil {
		t.Fatal(err)
	}
	if err := p.Remove(int(r.Fd())); err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write([]byte("x")); err != nil {
		t.Fatal(err)
	}
	events, err := p.Wait(50)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 0 {
		t.Fatalf("expected no events after Remove, got %+v", events)
	}
}
