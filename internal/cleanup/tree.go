package cleanup

import (
	"path"
	"strings"
)

// TreeNode is one segment of the declared install tree. A target node owns
// everything below it on disk.
type TreeNode struct {
	Name     string
	IsTarget bool
	Children map[string]*TreeNode
}

// BuildTree creates the declared tree from root-relative slash paths. Empty
// paths declare the root itself and make every on-disk entry owned.
func BuildTree(paths []string) *TreeNode {
	root := &TreeNode{}
	for _, p := range paths {
		root.Add(p)
	}
	return root
}

// Add declares rel and marks its deepest node as a target.
func (n *TreeNode) Add(rel string) {
	rel = strings.Trim(path.Clean("/"+strings.ReplaceAll(rel, "\\", "/")), "/")
	node := n
	if rel != "" {
		for _, segment := range strings.Split(rel, "/") {
			node = node.child(segment)
		}
	}
	node.IsTarget = true
}

func (n *TreeNode) child(name string) *TreeNode {
	if n.Children == nil {
		n.Children = map[string]*TreeNode{}
	}
	c, ok := n.Children[name]
	if !ok {
		c = &TreeNode{Name: name}
		n.Children[name] = c
	}
	return c
}

// Lookup returns the declared child called name.
func (n *TreeNode) Lookup(name string) (*TreeNode, bool) {
	c, ok := n.Children[name]
	return c, ok
}
