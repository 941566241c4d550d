package graph

// Closure returns every job connected to name through dependency edges, in
// either direction, including name itself. name may be a job or a group; a
// group starts from all of its jobs. The result is nil when name is unknown.
func Closure(edges EdgeSet, name string) map[string]struct{} {
	var start []string
	switch {
	case edges.Has(name):
		start = []string{name}
	case len(edges.Members(name)) > 0:
		start = edges.Members(name)
	default:
		return nil
	}

	seen := make(map[string]struct{}, len(start))
	for _, s := range start {
		seen[s] = struct{}{}
	}
	walk(start, edges.Predecessors, seen)
	walk(start, edges.Successors, seen)
	return seen
}

// walk adds everything reachable from start along next to seen. Each direction
// tracks its own visited set, so siblings of an ancestor are not pulled in.
func walk(start []string, next func(string) []string, seen map[string]struct{}) {
	stack := append([]string(nil), start...)
	visited := make(map[string]bool, len(start))
	for len(stack) > 0 {
		curr := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[curr] {
			continue
		}
		visited[curr] = true
		seen[curr] = struct{}{}
		for _, n := range next(curr) {
			if !visited[n] {
				stack = append(stack, n)
			}
		}
	}
}
