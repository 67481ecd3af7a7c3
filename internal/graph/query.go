package graph

// FindNearestDownstreamGateway runs a breadth-first search from the targets of
// start's outgoing flows and returns the first gateway reached, or nil.
// Every element is visited at most once and start itself is never returned.
func FindNearestDownstreamGateway(g Lookup, start *Element) *Element {
	if start == nil {
		return nil
	}

	visited := map[string]bool{start.ID: true}
	queue := make([]*Element, 0, len(start.Outgoing))
	for _, t := range targets(g, start) {
		if !visited[t.ID] {
			visited[t.ID] = true
			queue = append(queue, t)
		}
	}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		if current.IsGateway() {
			return current
		}

		for _, t := range targets(g, current) {
			if !visited[t.ID] {
				visited[t.ID] = true
				queue = append(queue, t)
			}
		}
	}
	return nil
}

// IsLoopGateway matches the two-gateway while-loop idiom:
//
//	G1(exclusive, 1 out) -> X(1 out) -> G2(exclusive) -> ... ; G2 -> Y(1 out) -> G1
//
// Loops built from longer chains are not recognised and are treated as plain
// split/join pairs.
func IsLoopGateway(g Lookup, gw *Element) bool {
	if gw == nil || gw.Kind != KindExclusiveGateway || len(gw.Outgoing) != 1 {
		return false
	}

	forward := singleTarget(g, gw)
	if forward == nil || len(forward.Outgoing) != 1 {
		return false
	}

	second := singleTarget(g, forward)
	if second == nil || second.Kind != KindExclusiveGateway {
		return false
	}

	for _, back := range targets(g, second) {
		if len(back.Outgoing) != 1 {
			continue
		}
		if t := singleTarget(g, back); t != nil && t.ID == gw.ID {
			return true
		}
	}
	return false
}

// singleTarget returns the target of e's only outgoing flow, or nil.
func singleTarget(g Lookup, e *Element) *Element {
	if e == nil || len(e.Outgoing) != 1 || e.Outgoing[0] == nil {
		return nil
	}
	t, ok := g.Element(e.Outgoing[0].TargetID)
	if !ok {
		return nil
	}
	return t
}

// CollectElementsBetween returns start, end and every element on a forward
// path between them. Exploration stops at end and never re-enters start.
//
// When start is a loop gateway, every simple path from each of end's targets
// (other than start) back to start is added as well, which covers loop-body
// elements sitting on the back edge after the join.
func CollectElementsBetween(g Lookup, start, end *Element) []*Element {
	if start == nil || end == nil {
		return nil
	}

	set := newOrderedSet()
	set.add(start)
	set.add(end)

	visited := map[string]bool{start.ID: true}
	queue := targets(g, start)
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		if visited[current.ID] {
			continue
		}
		visited[current.ID] = true
		set.add(current)

		if current.ID == end.ID {
			continue
		}
		for _, t := range targets(g, current) {
			if !visited[t.ID] && t.ID != start.ID {
				queue = append(queue, t)
			}
		}
	}

	if IsLoopGateway(g, start) {
		for _, t := range targets(g, end) {
			if t.ID == start.ID {
				continue
			}
			for _, e := range returnPathElements(g, t, start.ID) {
				set.add(e)
			}
		}
	}

	return set.items
}

// pathFrame is one pending DFS step. visited is owned by the frame: siblings
// never share it, so diamonds inside the loop body are explored on every path.
type pathFrame struct {
	node    *Element
	path    []*Element
	visited map[string]bool
}

// returnPathElements enumerates every simple path from from to targetID and
// returns the union of their elements in discovery order. Termination is
// bounded by the per-path visited set, including on graphs with extra cycles.
func returnPathElements(g Lookup, from *Element, targetID string) []*Element {
	set := newOrderedSet()
	stack := []pathFrame{{node: from, visited: map[string]bool{}}}

	for len(stack) > 0 {
		frame := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if frame.node == nil || frame.visited[frame.node.ID] {
			continue
		}
		frame.visited[frame.node.ID] = true
		path := append(frame.path, frame.node)

		if frame.node.ID == targetID {
			for _, e := range path {
				set.add(e)
			}
			continue
		}

		next := targets(g, frame.node)
		// Push in reverse so the first outgoing flow is explored first.
		for i := len(next) - 1; i >= 0; i-- {
			if frame.visited[next[i].ID] {
				continue
			}
			stack = append(stack, pathFrame{
				node:    next[i],
				path:    clonePath(path),
				visited: cloneVisited(frame.visited),
			})
		}
	}
	return set.items
}

// FindGatewayRegion returns the elements enclosed by gw and its nearest
// downstream gateway. It is empty when gw is not a gateway or no downstream
// gateway is reachable; callers treat that as "nothing to highlight".
func FindGatewayRegion(g Lookup, gw *Element) []*Element {
	if !gw.IsGateway() {
		return nil
	}
	end := FindNearestDownstreamGateway(g, gw)
	if end == nil {
		return nil
	}
	return CollectElementsBetween(g, gw, end)
}

// FindJoiningGateway walks every branch of split one element per round and
// returns the first multi-incoming gateway that all branches have reached.
func FindJoiningGateway(g Lookup, split *Element) *Element {
	if split == nil {
		return nil
	}

	type branch struct {
		at      *Element
		visited map[string]bool
	}

	var branches []*branch
	for _, t := range targets(g, split) {
		branches = append(branches, &branch{
			at:      t,
			visited: map[string]bool{split.ID: true, t.ID: true},
		})
	}
	if len(branches) == 0 {
		return nil
	}

	hits := make(map[string]int)
	for {
		active := false
		for _, b := range branches {
			if b.at == nil {
				continue
			}
			active = true

			if b.at.IsGateway() && len(b.at.Incoming) > 1 {
				hits[b.at.ID]++
				if hits[b.at.ID] == len(branches) {
					return b.at
				}
			}

			var next *Element
			for _, t := range targets(g, b.at) {
				if !b.visited[t.ID] {
					next = t
					break
				}
			}
			if next != nil {
				b.visited[next.ID] = true
			}
			b.at = next
		}
		if !active {
			return nil
		}
	}
}

// orderedSet keeps elements unique by ID in first-insertion order.
type orderedSet struct {
	seen  map[string]bool
	items []*Element
}

func newOrderedSet() *orderedSet {
	return &orderedSet{seen: make(map[string]bool)}
}

func (s *orderedSet) add(e *Element) {
	if e == nil || s.seen[e.ID] {
		return
	}
	s.seen[e.ID] = true
	s.items = append(s.items, e)
}

func clonePath(p []*Element) []*Element {
	out := make([]*Element, len(p))
	copy(out, p)
	return out
}

func cloneVisited(v map[string]bool) map[string]bool {
	out := make(map[string]bool, len(v)+1)
	for k := range v {
		out[k] = true
	}
	return out
}

// IDs returns the element IDs in order.
func IDs(elements []*Element) []string {
	out := make([]string, 0, len(elements))
	for _, e := range elements {
		out = append(out, e.ID)
	}
	return out
}
