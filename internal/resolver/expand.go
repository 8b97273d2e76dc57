package resolver

// Lookup returns the spec for a tool name, if known.
type Lookup func(name string) (ToolSpec, bool)

// Expand returns the specs for requested plus every transitive prerequisite
// that lookup knows about, in breadth-first discovery order. Names lookup
// cannot resolve are returned in missing; only requested names are
// reported there, since unknown prerequisites are treated as already
// installed.
//
// One visited set is shared across the whole walk, so each tool is visited
// once and cycles terminate.
func Expand(requested []string, lookup Lookup) (specs []ToolSpec, missing []string) {
	visited := make(map[string]bool)
	queue := make([]string, 0, len(requested))
	isRequested := make(map[string]bool, len(requested))

	for _, name := range requested {
		isRequested[name] = true
		if !visited[name] {
			visited[name] = true
			queue = append(queue, name)
		}
	}

	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]

		spec, ok := lookup(name)
		if !ok {
			if isRequested[name] {
				missing = append(missing, name)
			}
			continue
		}
		if spec.ToolName == "" {
			spec.ToolName = name
		}
		specs = append(specs, spec)

		for _, dep := range spec.Dependencies {
			if visited[dep] {
				continue
			}
			visited[dep] = true
			queue = append(queue, dep)
		}
	}

	return specs, missing
}
