package ids

import "testing"

func TestAllocatorSequences(t *testing.T) {
	a := NewAllocator()

	if got := a.NextAgent(); got != 1 {
		t.Fatalf("expected first agent 1, got %d", got)
	}
	if got := a.NextAgent(); got != 2 {
		t.Fatalf("expected second agent 2, got %d", got)
	}
	if got := a.NextMarket(); got != 0 {
		t.Fatalf("expected first market 0, got %d", got)
	}
	if got := a.NextMarket(); got != 1 {
		t.Fatalf("expected second market 1, got %d", got)
	}
	if got := a.NextAsset(); got != 0 {
		t.Fatalf("expected first asset 0, got %d", got)
	}
	for i := 1; i <= 3; i++ {
		if got := a.NextOrder(); got != OrderID(i) {
			t.Fatalf("expected order %d, got %d", i, got)
		}
	}
	if a.Agents() != 2 || a.Orders() != 3 {
		t.Errorf("expected 2 agents and 3 orders, got %d and %d", a.Agents(), a.Orders())
	}
}

func TestAllocatorsAreIndependent(t *testing.T) {
	a, b := NewAllocator(), NewAllocator()
	a.NextAgent()
	a.NextAgent()
	if got := b.NextAgent(); got != 1 {
		t.Errorf("expected fresh allocator to start at 1, got %d", got)
	}
	if NoAgent != 0 {
		t.Errorf("expected NoAgent to be the zero handle")
	}
}
