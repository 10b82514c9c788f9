package store

import (
	"errors"
	"strings"
	"testing"
)

func TestGenerateID(t *testing.T) {
	t.Run("valid prefix", func(t *testing.T) {
		id, err := GenerateImageID(nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.HasPrefix(id, "img-") {
			t.Fatalf("expected prefix img-, got %s", id)
		}
		if len(id) != len("img-")+36 {
			t.Fatalf("expected uuid suffix, got %s", id)
		}
		if !ValidImageID(id) {
			t.Fatalf("expected %s to validate", id)
		}
	})

	t.Run("empty prefix", func(t *testing.T) {
		if _, err := GenerateID("", nil); err == nil {
			t.Fatal("expected error for empty prefix")
		}
	})

	t.Run("retries on collision", func(t *testing.T) {
		calls := 0
		exists := func(id string) (bool, error) {
			calls++
			return calls < 3, nil
		}
		id, err := GenerateImageID(exists)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if id == "" {
			t.Fatal("expected non-empty id")
		}
		if calls != 3 {
			t.Fatalf("expected 3 exists calls, got %d", calls)
		}
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		_, err := GenerateImageID(func(string) (bool, error) { return true, nil })
		if err == nil {
			t.Fatal("expected error when every id collides")
		}
	})

	t.Run("propagates exists error", func(t *testing.T) {
		boom := errors.New("boom")
		_, err := GenerateImageID(func(string) (bool, error) { return false, boom })
		if !errors.Is(err, boom) {
			t.Fatalf("expected boom, got %v", err)
		}
	})
}

func TestValidImageID(t *testing.T) {
	for _, id := range []string{"", "img-", "img-xyz", "at-6ba7b810-9dad-11d1-80b4-00c04fd430c8"} {
		if ValidImageID(id) {
			t.Fatalf("expected %q to be invalid", id)
		}
	}
	if !ValidImageID("img-6ba7b810-9dad-11d1-80b4-00c04fd430c8") {
		t.Fatal("expected canonical id to be valid")
	}
}
