package catalog

import "github.com/shopzz/catmap/internal/domain"

// Node is a category with its nested children.
type Node struct {
	domain.Category
	Children []*Node `json:"children"`
}

// BuildTree nests a flat list by parent_id. Categories without a parent are
// roots; categories whose parent is not in the list are left out, the same
// way they are hidden in the catalog view while their parent is linked.
// Sibling order follows the input order.
func BuildTree(cats []domain.Category) []*Node {
	nodes := make(map[domain.CategoryID]*Node, len(cats))
	for _, c := range cats {
		if _, dup := nodes[c.ID]; dup {
			continue
		}
		nodes[c.ID] = &Node{Category: c, Children: []*Node{}}
	}

	roots := []*Node{}
	placed := make(map[*Node]bool, len(nodes))
	for _, c := range cats {
		node := nodes[c.ID]
		if placed[node] {
			continue
		}
		placed[node] = true
		if c.IsRoot() {
			roots = append(roots, node)
			continue
		}
		if parent, ok := nodes[c.ParentID]; ok && parent != node {
			parent.Children = append(parent.Children, node)
		}
	}
	return roots
}

// Count returns the number of nodes in the forest.
func Count(roots []*Node) int {
	n := 0
	for _, r := range roots {
		n += 1 + Count(r.Children)
	}
	return n
}
