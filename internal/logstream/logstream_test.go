package logstream

import (
	"fmt"
	"sync"
	"testing"
)

func TestMultiplexerPreservesPerStepOrder(t *testing.T) {
	mux := New(4)
	done := make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for i := 0; i < 20; i++ {
			mux.Emit(LogEvent{StepName: "a", Line: fmt.Sprintf("a-line-%d", i)}, done)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 20; i++ {
			mux.Emit(LogEvent{StepName: "b", Line: fmt.Sprintf("b-line-%d", i), IsError: true}, done)
		}
	}()

	wg.Wait()
	store := mux.Close()

	if len(store["a"]) != 20 {
		t.Fatalf("expected 20 lines for step a, got %d", len(store["a"]))
	}
	for i, line := range store["a"] {
		if want := fmt.Sprintf("[OUT] [a] a-line-%d", i); line != want {
			t.Errorf("line %d: got %q, want %q", i, line, want)
		}
	}
	if len(store["b"]) != 20 {
		t.Fatalf("expected 20 lines for step b, got %d", len(store["b"]))
	}
	for i, line := range store["b"] {
		if want := fmt.Sprintf("[ERR] [b] b-line-%d", i); line != want {
			t.Errorf("line %d: got %q, want %q", i, line, want)
		}
	}
}

func TestMultiplexerTrimsTrailingWhitespace(t *testing.T) {
	mux := New(1)
	done := make(chan struct{})
	mux.Emit(LogEvent{StepName: "x", Line: "hello world  \n"}, done)
	store := mux.Close()

	if got, want := store["x"][0], "[OUT] [x] hello world"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestMultiplexerCloseDrainsInFlight(t *testing.T) {
	mux := New(100)
	done := make(chan struct{})
	for i := 0; i < 50; i++ {
		mux.Emit(LogEvent{StepName: "s", Line: "line"}, done)
	}
	store := mux.Close()
	if len(store["s"]) != 50 {
		t.Fatalf("expected all 50 buffered lines drained, got %d", len(store["s"]))
	}
}
