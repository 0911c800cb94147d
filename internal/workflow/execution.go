package workflow

import (
	"encoding/json"
	"fmt"
)

// NodeStatus is the state of one job within an execution.
type NodeStatus struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Type   string `json:"type,omitempty"`
}

// Execution is a typed view of an execution status or submission response.
type Execution struct {
	ID        int          `json:"execid"`
	Project   string       `json:"project"`
	Flow      string       `json:"flow"`
	Status    string       `json:"status"`
	Message   string       `json:"message,omitempty"`
	StartTime int64        `json:"startTime,omitempty"`
	EndTime   int64        `json:"endTime,omitempty"`
	Nodes     []NodeStatus `json:"nodes,omitempty"`
}

var terminalStatuses = map[string]bool{
	"SUCCEEDED":        true,
	"FAILED":           true,
	"KILLED":           true,
	"CANCELLED":        true,
	"SKIPPED":          true,
	"FAILED_SUCCEEDED": true,
}

// Finished reports whether the execution reached a terminal status.
func (e Execution) Finished() bool { return terminalStatuses[e.Status] }

// Counts tallies nodes by status.
func (e Execution) Counts() map[string]int {
	out := make(map[string]int)
	for _, n := range e.Nodes {
		out[n.Status]++
	}
	return out
}

// ParseExecution converts a decoded response into an Execution.
func ParseExecution(m map[string]any) (Execution, error) {
	var e Execution
	raw, err := json.Marshal(m)
	if err != nil {
		return e, fmt.Errorf("encode execution: %w", err)
	}
	if err := json.Unmarshal(raw, &e); err != nil {
		return e, fmt.Errorf("decode execution: %w", err)
	}
	return e, nil
}
