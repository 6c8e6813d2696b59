// Package debug renders the live scope identifier tree as ASCII art, for
// diagnostics when a scope fails deep in a nested hierarchy. The renderer
// started life drawing a reactive dependency graph; here it draws the
// scope parent/child tree tracked by the identifier package instead.
package debug

import (
	"sort"
	"strings"

	"github.com/m1gwings/treedrawer/tree"

	"github.com/pumped-fn/scopert/identifier"
)

// Render draws the subtree rooted at scopeID as a horizontal ASCII tree,
// sorted by unique name at each level for deterministic output.
func Render(t *identifier.Tree, scopeID string) string {
	label, ok := t.Label(scopeID)
	if !ok {
		return "(scope not found)"
	}
	root := buildTree(t, scopeID, label)
	return root.String()
}

func buildTree(t *identifier.Tree, scopeID, label string) *tree.Tree {
	node := tree.NewTree(tree.NodeString(label))
	childIDs := t.ChildIDs(scopeID)
	sort.Slice(childIDs, func(i, j int) bool {
		ni, _ := t.Label(childIDs[i])
		nj, _ := t.Label(childIDs[j])
		return ni < nj
	})
	for _, childID := range childIDs {
		childLabel, ok := t.Label(childID)
		if !ok {
			continue
		}
		childTree := buildTree(t, childID, childLabel)
		addTreeAsChild(node, childTree)
	}
	return node
}

func addTreeAsChild(parent *tree.Tree, child *tree.Tree) {
	newChild := parent.AddChild(child.Val())
	for _, grandchild := range child.Children() {
		addTreeAsChild(newChild, grandchild)
	}
}

// Summary renders every recorded root scope's subtree, joined by blank
// lines, for a process-wide snapshot.
func Summary(t *identifier.Tree, rootScopeIDs []string) string {
	var b strings.Builder
	for i, id := range rootScopeIDs {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(Render(t, id))
	}
	return b.String()
}
