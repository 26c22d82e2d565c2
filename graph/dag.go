package graph

import "sort"

// vertex is one node of the DAG: an id, an arbitrary payload, and the set
// of vertex ids it depends on (its "outgoing" edges, per spec.md §3 — the
// edge's semantic direction is *depends-on*, not "is depended upon by").
type vertex struct {
	id      string
	payload any
	// outgoing is insertion-ordered so topoSort's comparator has a stable
	// base order to sort from even when no priorities differ.
	outgoing []string
	outSet   map[string]bool
}

// DAG is an acyclic graph of payload-bearing vertices, ordered by an
// optional comparator within topological layers. It is the data structure
// backing Workflow's task graph (spec.md §4.3).
//
// DAG is not safe for concurrent use by multiple goroutines; Workflow
// serializes all access to its DAG under its own mutex, per spec.md §5.
type DAG struct {
	vertices map[string]*vertex
	order    []string // insertion order, the topoSort start set before sorting

	sortedCache []any
	cacheValid  bool
}

// NewDAG constructs an empty DAG.
func NewDAG() *DAG {
	return &DAG{vertices: make(map[string]*vertex)}
}

// AddVertex inserts a new vertex with the given payload and outgoing
// (depends-on) edges. Fails with a DuplicateId GraphError if id already
// exists. dependsOn entries that don't yet exist as vertices are recorded
// anyway — Workflow adds tasks in dependency-unaware order, and addEdge's
// cycle/self-loop checks below are enforced for every edge regardless of
// whether it arrived via AddVertex or AddEdge.
func (d *DAG) AddVertex(id string, payload any, dependsOn []string) error {
	if _, exists := d.vertices[id]; exists {
		return newDuplicateIDError(id)
	}

	v := &vertex{id: id, payload: payload, outSet: make(map[string]bool)}
	d.vertices[id] = v
	d.order = append(d.order, id)
	d.invalidate()

	for _, dep := range dependsOn {
		if err := d.AddEdge(id, dep); err != nil {
			return err
		}
	}
	return nil
}

// RemoveVertex detaches id, scrubbing it from every other vertex's outgoing
// set, and returns its payload.
func (d *DAG) RemoveVertex(id string) (any, bool) {
	v, ok := d.vertices[id]
	if !ok {
		return nil, false
	}

	delete(d.vertices, id)
	for i, vid := range d.order {
		if vid == id {
			d.order = append(d.order[:i], d.order[i+1:]...)
			break
		}
	}
	for _, other := range d.vertices {
		if other.outSet[id] {
			delete(other.outSet, id)
			for i, o := range other.outgoing {
				if o == id {
					other.outgoing = append(other.outgoing[:i], other.outgoing[i+1:]...)
					break
				}
			}
		}
	}
	d.invalidate()
	return v.payload, true
}

// AddEdge records that from depends on to. Rejects self-loops and any edge
// whose introduction would create a cycle, detected by checking whether
// from is reachable from to following existing outgoing edges.
func (d *DAG) AddEdge(from, to string) error {
	if from == to {
		return newCycleError(from, to)
	}

	fv, ok := d.vertices[from]
	if !ok {
		fv = &vertex{id: from, outSet: make(map[string]bool)}
		d.vertices[from] = fv
		d.order = append(d.order, from)
	}
	if fv.outSet[to] {
		return nil // already present, idempotent
	}

	if d.reachable(to, from) {
		return newCycleError(from, to)
	}

	fv.outgoing = append(fv.outgoing, to)
	fv.outSet[to] = true
	d.invalidate()
	return nil
}

// reachable reports whether target is reachable from start by following
// outgoing (depends-on) edges.
func (d *DAG) reachable(start, target string) bool {
	if start == target {
		return true
	}
	visited := map[string]bool{start: true}
	stack := []string{start}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		v, ok := d.vertices[cur]
		if !ok {
			continue
		}
		for _, next := range v.outgoing {
			if next == target {
				return true
			}
			if !visited[next] {
				visited[next] = true
				stack = append(stack, next)
			}
		}
	}
	return false
}

// IsTerminal reports whether id has no dependents — no other vertex lists
// id in its outgoing set.
func (d *DAG) IsTerminal(id string) bool {
	for other, v := range d.vertices {
		if other == id {
			continue
		}
		if v.outSet[id] {
			return false
		}
	}
	return true
}

func (d *DAG) invalidate() {
	d.cacheValid = false
	d.sortedCache = nil
}

// Compare reports whether a should sort before b. TopoSort treats a nil
// Compare as "preserve insertion order".
type Compare func(a, b any) bool

// TopoSort returns payloads ordered so that every vertex appears after all
// vertices it depends on. Results are cached and invalidated on mutation.
// The cache is not keyed by compare: until the next mutation, a call with a
// different comparator returns the previously cached order.
//
// Ordering is computed via post-order DFS: before recursing from a vertex,
// its start set (for the top-level call) or its outgoing edges (for nested
// calls) are stable-sorted into a scratch slice by Compare — the stored
// edge set itself is never reordered, avoiding the mutating-read hazard
// spec.md §9 flags in the reference implementation.
func (d *DAG) TopoSort(compare Compare) []any {
	if d.cacheValid {
		return d.sortedCache
	}

	starts := append([]string(nil), d.order...)
	if compare != nil {
		sort.SliceStable(starts, func(i, j int) bool {
			return compare(d.vertices[starts[i]].payload, d.vertices[starts[j]].payload)
		})
	}

	visited := make(map[string]bool, len(d.vertices))
	var out []any
	var visit func(id string)
	visit = func(id string) {
		if visited[id] {
			return
		}
		visited[id] = true
		v, ok := d.vertices[id]
		if !ok {
			return
		}

		deps := append([]string(nil), v.outgoing...)
		if compare != nil {
			sort.SliceStable(deps, func(i, j int) bool {
				return compare(d.vertices[deps[i]].payload, d.vertices[deps[j]].payload)
			})
		}
		for _, dep := range deps {
			visit(dep)
		}
		out = append(out, v.payload)
	}

	for _, id := range starts {
		visit(id)
	}

	d.sortedCache = out
	d.cacheValid = true
	return out
}

// Vertex returns the payload and dependency ids for id, or ok=false.
func (d *DAG) Vertex(id string) (payload any, dependsOn []string, ok bool) {
	v, exists := d.vertices[id]
	if !exists {
		return nil, nil, false
	}
	return v.payload, append([]string(nil), v.outgoing...), true
}

// Len returns the number of vertices currently in the DAG.
func (d *DAG) Len() int { return len(d.vertices) }
