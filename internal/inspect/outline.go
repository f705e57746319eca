package inspect

import (
	"fmt"
	"io"
	"strings"

	bt "github.com/dyluth/grove/pkg/behaviortree"
)

// OutlineNode is one row of a tree outline.
type OutlineNode struct {
	Execution int    `json:"execution"`
	Depth     int    `json:"depth"`
	Role      string `json:"role"` // composite, decorator, service or task
	Name      string `json:"name"`
	Logic     string `json:"logic"`
	Detail    string `json:"detail,omitempty"`
	MemOffset int    `json:"mem_offset"`
	MemSize   int    `json:"mem_size"`
}

// Outline lists the nodes of an initialized tree in execution order.
func Outline(tree *bt.Tree) []OutlineNode {
	nodes := tree.Nodes()
	out := make([]OutlineNode, 0, len(nodes))
	for _, n := range nodes {
		row := OutlineNode{
			Execution: n.ExecutionIndex(),
			Depth:     n.Depth(),
			Name:      n.Name(),
		}
		if mr, ok := n.(interface{ MemoryRange() (int, int) }); ok {
			row.MemOffset, row.MemSize = mr.MemoryRange()
		}

		switch v := n.(type) {
		case *bt.Composite:
			row.Role = "composite"
			row.Logic = logicName(v.Logic)
			if len(v.Services) > 0 {
				row.Detail = fmt.Sprintf("services=%d", len(v.Services))
			}
		case *bt.Decorator:
			row.Role = "decorator"
			row.Logic = logicName(v.Logic)
			var parts []string
			if v.AbortMode != bt.AbortNone {
				parts = append(parts, "abort="+v.AbortMode.String())
			}
			if v.Inversed {
				parts = append(parts, "inversed")
			}
			row.Detail = strings.Join(parts, " ")
		case *bt.Service:
			row.Role = "service"
			row.Logic = logicName(v.Logic)
			row.Detail = fmt.Sprintf("every %.2fs", v.Interval)
			if v.Deviation > 0 {
				row.Detail = fmt.Sprintf("every %.2fs±%.2fs", v.Interval, v.Deviation)
			}
		case *bt.Task:
			row.Role = "task"
			row.Logic = logicName(v.Logic)
			if ref, ok := v.Logic.(bt.SubtreeReferencer); ok {
				row.Detail = "subtree=" + ref.SubtreeName()
			}
		}
		out = append(out, row)
	}
	return out
}

// FormatOutline writes an indented tree outline with execution indices and
// memory ranges.
func FormatOutline(w io.Writer, tree *bt.Tree) {
	bb := "-"
	if tree.Blackboard != nil {
		bb = tree.Blackboard.Name
	}
	fmt.Fprintf(w, "Tree '%s' (blackboard %s, %d bytes per instance)\n\n", tree.Name, bb, tree.MemorySize())

	fmt.Fprintf(w, "%-4s %-10s %-44s %s\n", "IDX", "MEMORY", "NODE", "DETAIL")
	fmt.Fprintf(w, "%-4s %-10s %-44s %s\n", "----", "----------", "--------------------------------------------", "----------------")
	for _, row := range Outline(tree) {
		label := fmt.Sprintf("%s%s %s [%s]", strings.Repeat("  ", row.Depth), roleIcon(row.Role), row.Name, row.Logic)
		fmt.Fprintf(w, "%-4d %-10s %-44s %s\n",
			row.Execution,
			fmt.Sprintf("%d+%d", row.MemOffset, row.MemSize),
			truncate(label, 44),
			dash(row.Detail),
		)
	}
}

func roleIcon(role string) string {
	switch role {
	case "composite":
		return "◆"
	case "decorator":
		return "?"
	case "service":
		return "⟳"
	}
	return "•"
}

// logicName renders a strategy's type without package or pointer noise.
func logicName(logic interface{}) string {
	name := strings.TrimPrefix(fmt.Sprintf("%T", logic), "*")
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}
	return name
}
