package logging

import "testing"

func TestNew(t *testing.T) {
	t.Run("development", func(t *testing.T) {
		logger, err := New(true)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if logger == nil {
			t.Fatal("expected a logger")
		}
	})

	t.Run("production", func(t *testing.T) {
		logger, err := New(false)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if logger == nil {
			t.Fatal("expected a logger")
		}
	})
}
