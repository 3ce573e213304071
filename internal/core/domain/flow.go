package domain

import (
	"errors"
	"fmt"
	"strings"
)

// FlowEnd is the explicit terminal marker usable as a NextOnAnswer target.
const FlowEnd = "end"

type QuestionNode struct {
	ID           string            `json:"id" yaml:"id" toml:"id"`
	Text         string            `json:"text" yaml:"text" toml:"text"`
	Category     string            `json:"category" yaml:"category" toml:"category"`
	NextOnAnswer map[string]string `json:"next_on_answer,omitempty" yaml:"next_on_answer,omitempty" toml:"next_on_answer,omitempty"`
}

// CategoryRule maps answer keywords to an answer category. Rules are
// evaluated in declaration order.
type CategoryRule struct {
	Name     string   `json:"name" yaml:"name" toml:"name"`
	Keywords []string `json:"keywords" yaml:"keywords" toml:"keywords"`
}

type FlowDefinition struct {
	Name       string         `json:"name" yaml:"name" toml:"name"`
	Root       string         `json:"root,omitempty" yaml:"root,omitempty" toml:"root,omitempty"`
	Mode       AnswerMode     `json:"mode,omitempty" yaml:"mode,omitempty" toml:"mode,omitempty"`
	TopK       int            `json:"top_k,omitempty" yaml:"top_k,omitempty" toml:"top_k,omitempty"`
	Categories []CategoryRule `json:"categories,omitempty" yaml:"categories,omitempty" toml:"categories,omitempty"`
	Nodes      []QuestionNode `json:"nodes" yaml:"nodes" toml:"nodes"`
}

// RootID returns the designated root, defaulting to the first node.
func (f FlowDefinition) RootID() string {
	if strings.TrimSpace(f.Root) != "" {
		return f.Root
	}
	if len(f.Nodes) == 0 {
		return ""
	}
	return f.Nodes[0].ID
}

// IndexOf returns the natural-order position of a node or -1.
func (f FlowDefinition) IndexOf(id string) int {
	for i := range f.Nodes {
		if f.Nodes[i].ID == id {
			return i
		}
	}
	return -1
}

// Validate checks the flow graph once at load time: unique ids, a
// resolvable root, resolvable branch targets, and no cycles across branch
// and natural-order edges.
func (f FlowDefinition) Validate() error {
	const op = "validate flow"
	if len(f.Nodes) == 0 {
		return WrapError(ErrInvalidConfig, op, errors.New("flow has no question nodes"))
	}
	if f.Mode != "" {
		if _, err := ParseAnswerMode(string(f.Mode)); err != nil {
			return WrapError(ErrInvalidConfig, op, err)
		}
	}

	index := make(map[string]int, len(f.Nodes))
	for i, node := range f.Nodes {
		id := strings.TrimSpace(node.ID)
		if id == "" {
			return WrapError(ErrInvalidConfig, op, fmt.Errorf("node at position %d has empty id", i))
		}
		if id == FlowEnd {
			return WrapError(ErrInvalidConfig, op, fmt.Errorf("node id %q is reserved", FlowEnd))
		}
		if strings.TrimSpace(node.Text) == "" {
			return WrapError(ErrInvalidConfig, op, fmt.Errorf("node %q has empty text", id))
		}
		if _, dup := index[id]; dup {
			return WrapError(ErrInvalidConfig, op, fmt.Errorf("duplicate node id %q", id))
		}
		index[id] = i
	}

	if _, ok := index[f.RootID()]; !ok {
		return WrapError(ErrInvalidConfig, op, fmt.Errorf("root %q does not resolve to a node", f.Root))
	}

	for _, node := range f.Nodes {
		for category, target := range node.NextOnAnswer {
			if target == FlowEnd {
				continue
			}
			if _, ok := index[target]; !ok {
				return WrapError(ErrInvalidConfig, op, fmt.Errorf("node %q: category %q points to unknown node %q", node.ID, category, target))
			}
		}
	}

	for _, rule := range f.Categories {
		if strings.TrimSpace(rule.Name) == "" {
			return WrapError(ErrInvalidConfig, op, errors.New("category rule with empty name"))
		}
	}

	if cycle := f.findCycle(index); len(cycle) > 0 {
		return WrapError(ErrInvalidConfig, op, fmt.Errorf("cycle detected: %s", strings.Join(cycle, " -> ")))
	}
	return nil
}

func (f FlowDefinition) successors(i int, index map[string]int) []int {
	out := make([]int, 0, len(f.Nodes[i].NextOnAnswer)+1)
	if i+1 < len(f.Nodes) {
		out = append(out, i+1)
	}
	for _, target := range f.Nodes[i].NextOnAnswer {
		if j, ok := index[target]; ok {
			out = append(out, j)
		}
	}
	return out
}

func (f FlowDefinition) findCycle(index map[string]int) []string {
	const (
		white = iota
		grey
		black
	)
	color := make([]int, len(f.Nodes))
	parent := make([]int, len(f.Nodes))

	var cycle []string
	var visit func(i int) bool
	visit = func(i int) bool {
		color[i] = grey
		for _, j := range f.successors(i, index) {
			switch color[j] {
			case grey:
				cycle = []string{f.Nodes[j].ID}
				for k := i; k != j; k = parent[k] {
					cycle = append([]string{f.Nodes[k].ID}, cycle...)
				}
				cycle = append([]string{f.Nodes[j].ID}, cycle...)
				return true
			case white:
				parent[j] = i
				if visit(j) {
					return true
				}
			}
		}
		color[i] = black
		return false
	}

	for i := range f.Nodes {
		if color[i] == white && visit(i) {
			return cycle
		}
	}
	return nil
}
