package task

import (
	"math"
	"strings"
)

// Column is one status lane of the board.
type Column struct {
	ID    Status `json:"id"`
	Label string `json:"label"`
	Tasks []Task `json:"tasks"`
}

// Columns groups tasks into the four status lanes by effective status.
// Tasks with an unknown status land in the pending lane.
func Columns(tasks []Task) []Column {
	cols := make([]Column, len(Statuses))
	index := make(map[Status]int, len(Statuses))
	for i, s := range Statuses {
		cols[i] = Column{ID: s, Label: s.Label(), Tasks: []Task{}}
		index[s] = i
	}
	for _, t := range tasks {
		i, ok := index[t.EffectiveStatus()]
		if !ok {
			i = index[StatusPending]
		}
		cols[i].Tasks = append(cols[i].Tasks, t)
	}
	return cols
}

// Stats summarizes board progress.
type Stats struct {
	Total     int            `json:"total"`
	Completed int            `json:"completed"`
	Percent   int            `json:"percent"`
	ByStatus  map[Status]int `json:"byStatus"`
}

// ComputeStats counts tasks by effective status.
func ComputeStats(tasks []Task) Stats {
	s := Stats{Total: len(tasks), ByStatus: make(map[Status]int, len(Statuses))}
	for _, st := range Statuses {
		s.ByStatus[st] = 0
	}
	for _, t := range tasks {
		if t.IsCompleted() {
			s.Completed++
		}
		s.ByStatus[t.EffectiveStatus()]++
	}
	if s.Total > 0 {
		s.Percent = int(math.Round(float64(s.Completed) * 100 / float64(s.Total)))
	}
	return s
}

// DependencyNode links a task to the tasks it blocks and is blocked by.
type DependencyNode struct {
	Task      Task   `json:"task"`
	Blocking  []Task `json:"blocking"`
	BlockedBy []Task `json:"blockedBy"`
}

// Dependencies resolves each task's dependency names against task keys and
// descriptions. Names that match no task are ignored.
func Dependencies(tasks []Task) []DependencyNode {
	nodes := make([]DependencyNode, len(tasks))
	lookup := make(map[string]int, len(tasks)*2)
	for i, t := range tasks {
		nodes[i] = DependencyNode{Task: t, Blocking: []Task{}, BlockedBy: []Task{}}
		if _, ok := lookup[t.Key()]; !ok {
			lookup[t.Key()] = i
		}
		if _, ok := lookup[t.Description]; !ok {
			lookup[t.Description] = i
		}
	}
	for i, t := range tasks {
		seen := make(map[int]bool)
		for _, dep := range t.Dependencies {
			j, ok := lookup[dep]
			if !ok || j == i || seen[j] {
				continue
			}
			seen[j] = true
			nodes[i].BlockedBy = append(nodes[i].BlockedBy, tasks[j])
			nodes[j].Blocking = append(nodes[j].Blocking, t)
		}
	}
	return nodes
}

// IsBlocked reports whether any dependency of the node is not completed.
func (n DependencyNode) IsBlocked() bool {
	for _, dep := range n.BlockedBy {
		if !dep.IsCompleted() {
			return true
		}
	}
	return false
}

// Filter narrows the visible tasks. Empty fields match everything.
type Filter struct {
	Search   string `json:"search"`
	Category string `json:"category"`
	Priority string `json:"priority"`
}

// Match reports whether t passes the filter. Search is case-insensitive
// over the description and steps; priority "none" matches every task.
func (fl Filter) Match(t Task) bool {
	if search := strings.ToLower(strings.TrimSpace(fl.Search)); search != "" {
		found := strings.Contains(strings.ToLower(t.Description), search)
		for _, step := range t.Steps {
			if found {
				break
			}
			found = strings.Contains(strings.ToLower(step), search)
		}
		if !found {
			return false
		}
	}
	if fl.Category != "" && string(t.Category) != fl.Category {
		return false
	}
	if fl.Priority != "" && fl.Priority != "none" {
		priority := t.Priority
		if priority == "" {
			priority = "none"
		}
		if priority != fl.Priority {
			return false
		}
	}
	return true
}

// Apply returns the tasks that pass the filter, in order.
func (fl Filter) Apply(tasks []Task) []Task {
	out := make([]Task, 0, len(tasks))
	for _, t := range tasks {
		if fl.Match(t) {
			out = append(out, t)
		}
	}
	return out
}
