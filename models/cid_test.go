package models

import (
	"strings"
	"testing"
)

func TestContentId(t *testing.T) {
	first, err := ContentId([]byte("cats"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, _ := ContentId([]byte("cats"))
	other, _ := ContentId([]byte("dogs"))
	if first != second {
		t.Errorf("content id not deterministic: %s != %s", first, second)
	}
	if first == other {
		t.Errorf("different content produced the same id %s", first)
	}
	// base32 CIDv1 with the raw codec and a sha2-256 multihash
	if !strings.HasPrefix(first, "bafkrei") {
		t.Errorf("unexpected content id format: %s", first)
	}
}
