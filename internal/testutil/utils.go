package testutil

import (
	"log"
	"os"
	"testing"
	"time"
)

// EventTimeout bounds how long tests wait for a published event.
const EventTimeout = 2 * time.Second

func TestLogger(t *testing.T) *log.Logger {
	logger := log.New(os.Stdout, "[fbg-lobby-test] ", log.LstdFlags|log.Lmsgprefix)
	t.Cleanup(func() {
		logger.SetOutput(os.Stderr)
	})
	return logger
}

// Receive returns the next value from ch, failing the test if ch is closed
// or nothing arrives within EventTimeout.
func Receive[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v, ok := <-ch:
		if !ok {
			t.Fatal("stream closed")
		}
		return v
	case <-time.After(EventTimeout):
		t.Fatal("timed out waiting for event")
	}

	var zero T
	return zero
}

// AssertClosed drains ch and fails the test if it is not closed within
// EventTimeout.
func AssertClosed[T any](t *testing.T, ch <-chan T) {
	t.Helper()
	deadline := time.After(EventTimeout)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("stream was not closed")
		}
	}
}
