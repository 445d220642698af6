package resource

import (
	"errors"
	"sync"
	"testing"
)

func TestLocalBackend_Basic(t *testing.T) {
	b := NewLocalBackend()

	slot, err := b.Create("JsRepo", "test value")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if slot == 0 {
		t.Fatal("Expected non-zero slot")
	}

	val, ok := b.Get(slot)
	if !ok {
		t.Fatal("Get failed")
	}
	if val != "test value" {
		t.Fatalf("Expected 'test value', got %v", val)
	}

	class, ok := b.Class(slot)
	if !ok || class != "JsRepo" {
		t.Fatalf("Class = %q, %v", class, ok)
	}

	val, ok = b.Drop(slot)
	if !ok {
		t.Fatal("Drop failed")
	}
	if val != "test value" {
		t.Fatalf("Expected 'test value', got %v", val)
	}

	if _, ok = b.Get(slot); ok {
		t.Fatal("Expected Get to fail after Drop")
	}
}

func TestLocalBackend_Borrow(t *testing.T) {
	b := NewLocalBackend()
	slot, _ := b.Create("c", 1)

	if !b.Borrow(slot) {
		t.Fatal("Borrow failed")
	}
	if _, ok := b.Drop(slot); ok {
		t.Fatal("Drop should fail with outstanding borrow")
	}
	if !b.ReturnBorrow(slot) {
		t.Fatal("ReturnBorrow failed")
	}
	if b.ReturnBorrow(slot) {
		t.Fatal("ReturnBorrow without borrow should fail")
	}
	if _, ok := b.Drop(slot); !ok {
		t.Fatal("Drop should succeed after borrow returned")
	}
}

func TestLocalBackend_MultipleBorrows(t *testing.T) {
	b := NewLocalBackend()
	slot, _ := b.Create("c", 1)

	for i := 0; i < 3; i++ {
		if !b.Borrow(slot) {
			t.Fatalf("Borrow %d failed", i)
		}
	}
	for i := 0; i < 2; i++ {
		b.ReturnBorrow(slot)
		if _, ok := b.Drop(slot); ok {
			t.Fatalf("Drop should fail with %d borrows left", 2-i)
		}
	}
	b.ReturnBorrow(slot)
	if _, ok := b.Drop(slot); !ok {
		t.Fatal("Drop should succeed once all borrows returned")
	}
}

func TestLocalBackend_SlotReuse(t *testing.T) {
	b := NewLocalBackend()

	s1, _ := b.Create("c", "a")
	s2, _ := b.Create("c", "b")
	b.Drop(s1)

	s3, _ := b.Create("c", "c")
	if s3 != s1 {
		t.Fatalf("Expected slot reuse: got %d, want %d", s3, s1)
	}
	if s3 == s2 {
		t.Fatal("Reused slot aliases a live slot")
	}
	val, _ := b.Get(s3)
	if val != "c" {
		t.Fatalf("Reused slot holds %v", val)
	}
}

func TestLocalBackend_Close(t *testing.T) {
	b := NewLocalBackend()
	d := &dropCounter{}
	b.Create("c", d)

	if err := b.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if d.count != 1 {
		t.Fatalf("Dropper called %d times, want 1", d.count)
	}
	if _, err := b.Create("c", 1); !errors.Is(err, ErrClosed) {
		t.Fatalf("Create after Close: %v, want ErrClosed", err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
}

func TestLocalBackend_Concurrent(t *testing.T) {
	b := NewLocalBackend()
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			slot, err := b.Create("c", i)
			if err != nil {
				t.Errorf("Create failed: %v", err)
				return
			}
			b.Get(slot)
			b.Drop(slot)
		}(i)
	}
	wg.Wait()

	if b.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", b.Len())
	}
}

func TestLocalBackend_Each(t *testing.T) {
	b := NewLocalBackend()
	b.Create("a", 1)
	s, _ := b.Create("b", 2)
	b.Create("c", 3)
	b.Drop(s)

	var seen []string
	b.Each(func(_ Slot, class string, _ any) bool {
		seen = append(seen, class)
		return true
	})
	if len(seen) != 2 || seen[0] != "a" || seen[1] != "c" {
		t.Fatalf("Each visited %v", seen)
	}

	count := 0
	b.Each(func(Slot, string, any) bool {
		count++
		return false
	})
	if count != 1 {
		t.Fatalf("Each should stop early, visited %d", count)
	}
}

func TestLocalBackend_InvalidSlot(t *testing.T) {
	b := NewLocalBackend()

	for _, s := range []Slot{0, 1, 99} {
		if _, ok := b.Get(s); ok {
			t.Errorf("Get(%d) should fail", s)
		}
		if _, ok := b.Drop(s); ok {
			t.Errorf("Drop(%d) should fail", s)
		}
		if b.Borrow(s) {
			t.Errorf("Borrow(%d) should fail", s)
		}
	}
}
