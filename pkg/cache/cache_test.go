package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestNew(t *testing.T) {
	c := New()

	if c == nil {
		t.Fatal("New returned nil")
	}
	if c.entries == nil {
		t.Error("entries map not initialized")
	}
	if c.Len() != 0 {
		t.Errorf("expected empty cache, got %d entries", c.Len())
	}
}

func TestCache_PutAndGet(t *testing.T) {
	c := New()
	sig := PullsSignature("acme", "widgets")

	before := time.Now()
	if err := c.Put(sig, []byte(`[{"number":1}]`)); err != nil {
		t.Fatalf("Put: %v", err)
	}

	entry, found := c.Get(sig)
	if !found {
		t.Fatal("expected to find entry")
	}
	if string(entry.Payload) != `[{"number":1}]` {
		t.Errorf("unexpected payload %s", entry.Payload)
	}
	if entry.Signature != sig {
		t.Errorf("expected signature %v, got %v", sig, entry.Signature)
	}
	if entry.FetchedAt.Before(before) || entry.FetchedAt.After(time.Now()) {
		t.Errorf("FetchedAt %v outside of [%v, now]", entry.FetchedAt, before)
	}

	if _, found := c.Get(PullsSignature("acme", "gadgets")); found {
		t.Error("expected miss for unknown signature")
	}
}

func TestCache_PutReplacesEntry(t *testing.T) {
	c := New()
	sig := ReviewsSignature("acme", "widgets", 7)

	if err := c.Put(sig, []byte(`[]`)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	first, _ := c.Get(sig)

	if err := c.Put(sig, []byte(`[{"state":"APPROVED"}]`)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	second, _ := c.Get(sig)

	if string(first.Payload) != `[]` {
		t.Errorf("earlier entry was mutated: %s", first.Payload)
	}
	if string(second.Payload) != `[{"state":"APPROVED"}]` {
		t.Errorf("unexpected payload %s", second.Payload)
	}
	if c.Len() != 1 {
		t.Errorf("expected 1 entry, got %d", c.Len())
	}
}

func TestCache_PutCopiesPayload(t *testing.T) {
	c := New()
	sig := PullsSignature("acme", "widgets")
	payload := []byte(`"abc"`)

	if err := c.Put(sig, payload); err != nil {
		t.Fatalf("Put: %v", err)
	}
	payload[1] = 'z'

	entry, _ := c.Get(sig)
	if string(entry.Payload) != `"abc"` {
		t.Errorf("stored payload changed with caller's slice: %s", entry.Payload)
	}
}

func TestCache_ConcurrentAccess(t *testing.T) {
	c := New()
	const goroutines = 50
	const operations = 100

	var wg sync.WaitGroup
	wg.Add(goroutines * 2)

	for i := range goroutines {
		go func(id int) {
			defer wg.Done()
			for j := range operations {
				sig := ReviewsSignature("acme", "widgets", id%10)
				if err := c.Put(sig, fmt.Appendf(nil, "%d", j)); err != nil {
					t.Errorf("Put: %v", err)
				}
			}
		}(i)
	}

	for i := range goroutines {
		go func(id int) {
			defer wg.Done()
			for range operations {
				c.Get(ReviewsSignature("acme", "widgets", id%10))
			}
		}(i)
	}

	wg.Wait()

	if c.Len() != 10 {
		t.Errorf("expected 10 distinct entries, got %d", c.Len())
	}
}

func TestSignature_String(t *testing.T) {
	tests := []struct {
		sig  Signature
		want string
	}{
		{PullsSignature("acme", "widgets"), "acme/widgets:pulls"},
		{ReviewsSignature("acme", "widgets", 12), "acme/widgets:reviews:12"},
		{Signature{Org: "o", Repo: "r", Kind: KindReviews, ID: "x"}, "o/r:reviews:x"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.sig.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSignature_Equality(t *testing.T) {
	if ReviewsSignature("acme", "widgets", 1) != ReviewsSignature("acme", "widgets", 1) {
		t.Error("identical signatures compare unequal")
	}
	if ReviewsSignature("acme", "widgets", 1) == ReviewsSignature("acme", "widgets", 2) {
		t.Error("signatures with different ids compare equal")
	}
	if PullsSignature("acme", "widgets") == PullsSignature("ACME", "widgets") {
		t.Error("signature comparison must be exact")
	}
}
