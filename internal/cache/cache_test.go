package cache

import (
	"testing"
	"time"
)

func TestGetSetExpiry(t *testing.T) {
	c := New[string, int](10 * time.Second)
	clock := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c.SetClock(func() time.Time { return clock })

	if _, ok := c.Get("k"); ok {
		t.Fatal("empty cache returned a value")
	}

	c.Set("k", 42)
	if v, ok := c.Get("k"); !ok || v != 42 {
		t.Fatalf("Get = %d,%v; want 42,true", v, ok)
	}

	clock = clock.Add(9 * time.Second)
	if _, ok := c.Get("k"); !ok {
		t.Fatal("entry expired before TTL")
	}

	clock = clock.Add(2 * time.Second)
	if _, ok := c.Get("k"); ok {
		t.Fatal("entry survived past TTL")
	}
}

func TestClear(t *testing.T) {
	c := New[string, string](time.Minute)
	c.Set("a", "1")
	c.Set("b", "2")
	if c.Len() != 2 {
		t.Fatalf("Len = %d, want 2", c.Len())
	}
	c.Clear()
	if c.Len() != 0 {
		t.Fatalf("Len after Clear = %d, want 0", c.Len())
	}
	if _, ok := c.Get("a"); ok {
		t.Fatal("Get after Clear returned a value")
	}
}
