package graph

import "testing"

func TestDAG_DuplicateVertex(t *testing.T) {
	d := NewDAG()
	if err := d.AddVertex("a", 1, nil); err != nil {
		t.Fatalf("AddVertex: %v", err)
	}
	if err := d.AddVertex("a", 2, nil); err == nil {
		t.Fatal("expected DuplicateId error")
	}
}

func TestDAG_SelfLoopRejected(t *testing.T) {
	d := NewDAG()
	_ = d.AddVertex("a", 1, nil)
	if err := d.AddEdge("a", "a"); err == nil {
		t.Fatal("expected cycle error for self-loop")
	}
}

func TestDAG_CycleRejected(t *testing.T) {
	d := NewDAG()
	_ = d.AddVertex("a", 1, nil)
	_ = d.AddVertex("b", 2, []string{"a"}) // b depends on a
	if err := d.AddEdge("a", "b"); err == nil {
		t.Fatal("expected cycle error: a->b would close a loop with b->a")
	}
}

func TestDAG_TopoSortLinearChain(t *testing.T) {
	d := NewDAG()
	_ = d.AddVertex("a", "a", nil)
	_ = d.AddVertex("b", "b", []string{"a"})
	_ = d.AddVertex("c", "c", []string{"b"})

	order := d.TopoSort(nil)
	want := []any{"a", "b", "c"}
	if len(order) != len(want) {
		t.Fatalf("expected %v, got %v", want, order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("position %d: expected %v, got %v", i, want[i], order[i])
		}
	}
}

func TestDAG_TopoSortDiamond(t *testing.T) {
	d := NewDAG()
	_ = d.AddVertex("a", "a", nil)
	_ = d.AddVertex("b", "b", []string{"a"})
	_ = d.AddVertex("c", "c", []string{"a"})
	_ = d.AddVertex("d", "d", []string{"b", "c"})

	order := d.TopoSort(nil)
	pos := make(map[any]int, len(order))
	for i, v := range order {
		pos[v] = i
	}
	if pos["a"] > pos["b"] || pos["a"] > pos["c"] || pos["b"] > pos["d"] || pos["c"] > pos["d"] {
		t.Errorf("dependency order violated: %v", order)
	}
}

func TestDAG_TopoSortDoesNotMutateStoredEdges(t *testing.T) {
	d := NewDAG()
	_ = d.AddVertex("a", "a", nil)
	_ = d.AddVertex("b", "b", []string{"a"})
	_ = d.AddVertex("c", "c", []string{"a"})

	reverse := func(x, y any) bool { return x.(string) > y.(string) }
	_ = d.TopoSort(reverse)

	_, deps, _ := d.Vertex("b")
	if len(deps) != 1 || deps[0] != "a" {
		t.Fatalf("expected b's stored deps unchanged as [a], got %v", deps)
	}

	// A subsequent call with a different comparator is served from the
	// cache (nothing mutated) and must still be correctly ordered.
	forward := func(x, y any) bool { return x.(string) < y.(string) }
	order := d.TopoSort(forward)
	pos := make(map[any]int, len(order))
	for i, v := range order {
		pos[v] = i
	}
	if pos["a"] > pos["b"] || pos["a"] > pos["c"] {
		t.Errorf("expected a before b and c, got %v", order)
	}
}

func TestDAG_TopoSortPriorityComparator(t *testing.T) {
	type payload struct {
		id       string
		priority int
	}
	d := NewDAG()
	_ = d.AddVertex("low", payload{"low", 1}, nil)
	_ = d.AddVertex("high", payload{"high", 10}, nil)

	byPriorityDesc := func(a, b any) bool {
		return a.(payload).priority > b.(payload).priority
	}
	order := d.TopoSort(byPriorityDesc)
	if order[0].(payload).id != "high" {
		t.Errorf("expected high-priority vertex first, got %v", order)
	}
}

func TestDAG_RemoveVertexScrubsEdges(t *testing.T) {
	d := NewDAG()
	_ = d.AddVertex("a", "a", nil)
	_ = d.AddVertex("b", "b", []string{"a"})

	payload, ok := d.RemoveVertex("a")
	if !ok || payload != "a" {
		t.Fatalf("expected to remove a, got %v %v", payload, ok)
	}

	_, deps, _ := d.Vertex("b")
	if len(deps) != 0 {
		t.Errorf("expected b's deps scrubbed, got %v", deps)
	}
}

func TestDAG_IsTerminal(t *testing.T) {
	d := NewDAG()
	_ = d.AddVertex("a", "a", nil)
	_ = d.AddVertex("b", "b", []string{"a"})

	if d.IsTerminal("a") {
		t.Error("a has a dependent, should not be terminal")
	}
	if !d.IsTerminal("b") {
		t.Error("b has no dependents, should be terminal")
	}
}

func TestDAG_TopoSortCachesUntilMutation(t *testing.T) {
	d := NewDAG()
	_ = d.AddVertex("a", "a", nil)

	first := d.TopoSort(nil)
	second := d.TopoSort(nil)
	if &first[0] != &second[0] {
		t.Error("expected the cached result to be returned while the DAG is unmutated")
	}

	_ = d.AddVertex("b", "b", nil)
	third := d.TopoSort(nil)
	if len(third) != 2 {
		t.Errorf("expected cache invalidated after mutation, got %v", third)
	}
}
