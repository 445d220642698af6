package resource

import (
	"testing"
)

type testObserver struct {
	events []Event
}

func (o *testObserver) OnSlotEvent(e Event) {
	o.events = append(o.events, e)
}

type dropCounter struct {
	count int
}

func (d *dropCounter) Drop() {
	d.count++
}

func TestTable_Basic(t *testing.T) {
	table := NewTable()

	s, err := table.Insert("Repo", "test")
	if err != nil || s == 0 {
		t.Fatalf("Insert = %d, %v", s, err)
	}

	val, ok := table.Get(s)
	if !ok || val != "test" {
		t.Fatalf("Get = %v, %v", val, ok)
	}
	if class, ok := table.Class(s); !ok || class != "Repo" {
		t.Fatalf("Class = %q, %v", class, ok)
	}

	val, ok = table.Detach(s)
	if !ok || val != "test" {
		t.Fatalf("Detach = %v, %v", val, ok)
	}
	if table.Len() != 0 {
		t.Fatal("Expected Len() == 0 after Detach")
	}
	if _, ok := table.Get(s); ok {
		t.Fatal("Get after Detach should fail")
	}
}

func TestTable_Observer(t *testing.T) {
	table := NewTable()
	obs := &testObserver{}
	table.Subscribe(obs)

	s, _ := table.Insert("c", "test")
	table.Borrow(s)
	table.ReturnBorrow(s)
	table.Detach(s)

	want := []EventType{EventCreated, EventBorrowed, EventBorrowReturned, EventDropped}
	if len(obs.events) != len(want) {
		t.Fatalf("Expected %d events, got %d", len(want), len(obs.events))
	}
	for i, w := range want {
		if obs.events[i].Type != w {
			t.Errorf("event %d = %v, want %v", i, obs.events[i].Type, w)
		}
		if obs.events[i].Slot != s || obs.events[i].Class != "c" {
			t.Errorf("event %d = %+v", i, obs.events[i])
		}
	}
}

func TestTable_DetachRefusesBorrowed(t *testing.T) {
	table := NewTable()
	s, _ := table.Insert("c", "v")
	table.Borrow(s)
	if _, ok := table.Detach(s); ok {
		t.Fatal("Detach of a borrowed slot should fail")
	}
	table.ReturnBorrow(s)
	if _, ok := table.Detach(s); !ok {
		t.Fatal("Detach after ReturnBorrow failed")
	}
}

func TestTable_ObserverFunc(t *testing.T) {
	table := NewTable()
	var created int
	table.Subscribe(ObserverFunc(func(e Event) {
		if e.Type == EventCreated {
			created++
		}
	}))
	table.Insert("a", 1)
	table.Insert("b", 2)
	if created != 2 {
		t.Fatalf("created = %d, want 2", created)
	}
}

func TestTable_Each(t *testing.T) {
	table := NewTable()
	table.Insert("Repo", "a")
	table.Insert("Remote", "b")
	table.Insert("Remote", "c")

	classes := map[string]int{}
	table.Each(func(_ Slot, class string, _ any) bool {
		classes[class]++
		return true
	})
	if classes["Repo"] != 1 || classes["Remote"] != 2 {
		t.Fatalf("classes = %v", classes)
	}
}

func TestTable_Close(t *testing.T) {
	table := NewTable()

	table.Insert("c", "a")
	if err := table.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if _, err := table.Insert("c", "b"); err == nil {
		t.Fatal("Expected Insert to fail after Close")
	}
}

func TestTable_CloseDropsValues(t *testing.T) {
	table := NewTable()
	d := &dropCounter{}

	table.Insert("c", d)
	if err := table.Close(); err != nil {
		t.Fatal(err)
	}

	if d.count != 1 {
		t.Fatalf("Expected Drop() to be called once, called %d times", d.count)
	}
}

func TestTable_DetachSkipsDropper(t *testing.T) {
	table := NewTable()
	d := &dropCounter{}
	obs := &testObserver{}
	table.Subscribe(obs)

	s, _ := table.Insert("c", d)
	if _, ok := table.Detach(s); !ok {
		t.Fatal("Detach failed")
	}
	if d.count != 0 {
		t.Fatalf("Detach ran Drop %d times", d.count)
	}
	if obs.events[len(obs.events)-1].Type != EventDropped {
		t.Fatal("Detach should notify EventDropped")
	}
}
