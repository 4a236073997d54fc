package types

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Priority is the scheduling priority attached to a fetch request.
// Lower values are more urgent. The dual fetcher passes it through untouched;
// only strategies and the rate limiter interpret it.
type Priority int

const (
	PriorityImmediate Priority = iota
	PriorityHigh
	PriorityNormal
	PriorityLow
)

var priorityNames = map[Priority]string{
	PriorityImmediate: "immediate",
	PriorityHigh:      "high",
	PriorityNormal:    "normal",
	PriorityLow:       "low",
}

// String returns the lowercase name of the priority
func (p Priority) String() string {
	if name, ok := priorityNames[p]; ok {
		return name
	}
	return fmt.Sprintf("priority(%d)", int(p))
}

// IsValid reports whether p is one of the declared priorities
func (p Priority) IsValid() bool {
	_, ok := priorityNames[p]
	return ok
}

// MoreUrgentThan reports whether p should be served before other
func (p Priority) MoreUrgentThan(other Priority) bool {
	return p < other
}

// ParsePriority converts a priority name into a Priority
func ParsePriority(s string) (Priority, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for p, n := range priorityNames {
		if n == name {
			return p, nil
		}
	}
	return PriorityNormal, fmt.Errorf("unknown priority %q", s)
}

// UnmarshalYAML accepts priorities written by name
func (p *Priority) UnmarshalYAML(node *yaml.Node) error {
	var name string
	if err := node.Decode(&name); err != nil {
		return err
	}
	parsed, err := ParsePriority(name)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// MarshalYAML writes priorities by name
func (p Priority) MarshalYAML() (interface{}, error) {
	return p.String(), nil
}
