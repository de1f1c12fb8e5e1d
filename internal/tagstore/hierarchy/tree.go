package hierarchy

// Node is one tag in an explicit tree built from flat names.
type Node struct {
	Name     string
	Base     string
	Depth    int
	Children []*Node
}

// BuildTree arranges names into a forest. Missing intermediate names are
// materialized so every node has its parent. Siblings follow Normalize order.
func BuildTree(names []string) []*Node {
	complete := make([]string, 0, len(names))
	for _, n := range names {
		complete = append(complete, n)
		complete = append(complete, Ancestors(n)...)
	}
	sorted := Normalize(complete)

	index := make(map[string]*Node, len(sorted))
	var roots []*Node
	for _, name := range sorted {
		node := &Node{Name: name, Base: Base(name), Depth: Depth(name)}
		index[name] = node
		if parent, ok := Parent(name); ok {
			if p := index[parent]; p != nil {
				p.Children = append(p.Children, node)
				continue
			}
		}
		roots = append(roots, node)
	}
	return roots
}

// Walk visits every node depth-first, parents before children.
func Walk(roots []*Node, fn func(*Node)) {
	for _, n := range roots {
		fn(n)
		Walk(n.Children, fn)
	}
}
