package report

import (
	"fmt"

	"github.com/mitchellh/go-wordwrap"
	"github.com/willibrandon/copgy/internal/manifest"
	"github.com/xlab/treeprint"
)

// DefaultPlanWidth is the column SQL is wrapped at in plan output.
const DefaultPlanWidth = 72

// RenderPlan renders the steps of m as a tree without touching any database.
func RenderPlan(m manifest.Manifest, width int) string {
	if width <= 0 {
		width = DefaultPlanWidth
	}

	tree := treeprint.New()
	tree.SetValue(fmt.Sprintf("manifest (%d steps)", m.Len()))

	for i, step := range m.Steps {
		branch := tree.AddBranch(fmt.Sprintf("step %d", i))
		if step.IsNoop() {
			branch.AddNode("(no-op)")
			continue
		}
		if step.Copy != nil {
			branch.AddBranch(fmt.Sprintf("%s copy into %s", MarkCopy, step.Copy.DestTable)).
				AddNode(wrap(step.Copy.SourceQuery, width))
		}
		if step.Execute != nil {
			if step.Execute.SourceCommand != nil {
				branch.AddBranch(MarkExecute + " execute on source").
					AddNode(wrap(*step.Execute.SourceCommand, width))
			}
			if step.Execute.DestCommand != nil {
				branch.AddBranch(MarkExecute + " execute on destination").
					AddNode(wrap(*step.Execute.DestCommand, width))
			}
		}
	}

	return tree.String()
}

func wrap(sql string, width int) string {
	return wordwrap.WrapString(sql, uint(width))
}
