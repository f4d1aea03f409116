package profiling

import (
	"context"
	"testing"
)

func TestDisabledServerIsNoOp(t *testing.T) {
	s := New("")
	s.Start()
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestEnabledServerStartsAndStops(t *testing.T) {
	s := New("127.0.0.1:0")
	s.Start()
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}
