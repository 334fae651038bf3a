package agent

import (
	"fmt"
	"testing"
)

func TestStateCacheEvictsOldest(t *testing.T) {
	c := NewStateCache(3)
	var ids []string
	for i := 0; i < 4; i++ {
		st := NewState(fmt.Sprintf("goal %d", i), 0)
		ids = append(ids, st.ID)
		c.Put(st)
	}

	if c.Len() != 3 {
		t.Fatalf("capacity 3 exceeded: %d", c.Len())
	}
	if _, ok := c.Get(ids[0]); ok {
		t.Fatal("oldest entry should have been evicted")
	}
	for _, id := range ids[1:] {
		if _, ok := c.Get(id); !ok {
			t.Fatalf("entry %s missing", id)
		}
	}
}

func TestStateCacheReputKeepsSlot(t *testing.T) {
	c := NewStateCache(2)
	a := NewState("a", 0)
	b := NewState("b", 0)
	c.Put(a)
	c.Put(b)
	c.Put(a) // update, not a new insertion

	d := NewState("d", 0)
	c.Put(d)
	if _, ok := c.Get(a.ID); ok {
		t.Fatal("a kept its original slot and should be evicted first")
	}
	if _, ok := c.Get(b.ID); !ok {
		t.Fatal("b should survive")
	}
}

func TestNewStateClampsStepLimit(t *testing.T) {
	if st := NewState("g", 0); st.StepLimit != DefaultStepLimit {
		t.Fatalf("default limit expected, got %d", st.StepLimit)
	}
	if st := NewState("g", 99); st.StepLimit != HardStepLimit {
		t.Fatalf("hard ceiling expected, got %d", st.StepLimit)
	}
	if st := NewState("g", 5); st.StepLimit != 5 {
		t.Fatalf("explicit limit expected, got %d", st.StepLimit)
	}
	st := NewState("g", 5)
	if st.Status != StatusRunning || st.ID == "" {
		t.Fatalf("fresh state malformed: %+v", st)
	}
}
