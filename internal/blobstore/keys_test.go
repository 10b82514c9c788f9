package blobstore

import "testing"

func TestKeyLayout(t *testing.T) {
	if got := OriginalKey("img-1"); got != "images/img-1/original" {
		t.Fatalf("unexpected original key %q", got)
	}
	if got := DerivativePrefix("img-1"); got != "images/img-1/derivatives/" {
		t.Fatalf("unexpected derivative prefix %q", got)
	}
	got := DerivativeKey("img-1", "thumb", "0123456789abcdef0123", "jpg")
	if got != "images/img-1/derivatives/thumb-0123456789ab.jpg" {
		t.Fatalf("unexpected derivative key %q", got)
	}
}

func TestImageIDFromKey(t *testing.T) {
	tests := []struct {
		key  string
		want string
		ok   bool
	}{
		{"images/img-1/original", "img-1", true},
		{"images/img-2/derivatives/thumb-aa.jpg", "img-2", true},
		{"images/", "", false},
		{"other/img-1/original", "", false},
	}
	for _, tc := range tests {
		got, ok := ImageIDFromKey(tc.key)
		if got != tc.want || ok != tc.ok {
			t.Fatalf("ImageIDFromKey(%q) = %q, %v; want %q, %v", tc.key, got, ok, tc.want, tc.ok)
		}
	}
}

func TestIsOriginalKey(t *testing.T) {
	if !IsOriginalKey("images/img-1/original") {
		t.Fatalf("expected original key")
	}
	if IsOriginalKey("images/img-1/derivatives/thumb-aa.jpg") {
		t.Fatalf("derivative key reported as original")
	}
	if IsOriginalKey("scratch/original") {
		t.Fatalf("foreign key reported as original")
	}
}
