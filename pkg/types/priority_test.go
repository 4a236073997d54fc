package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestPriority_String(t *testing.T) {
	tests := []struct {
		priority Priority
		expected string
	}{
		{PriorityImmediate, "immediate"},
		{PriorityHigh, "high"},
		{PriorityNormal, "normal"},
		{PriorityLow, "low"},
		{Priority(42), "priority(42)"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := tt.priority.String(); got != tt.expected {
				t.Errorf("String() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestPriority_Ordering(t *testing.T) {
	assert.True(t, PriorityImmediate.MoreUrgentThan(PriorityHigh))
	assert.True(t, PriorityHigh.MoreUrgentThan(PriorityNormal))
	assert.True(t, PriorityNormal.MoreUrgentThan(PriorityLow))
	assert.False(t, PriorityLow.MoreUrgentThan(PriorityLow))
}

func TestParsePriority(t *testing.T) {
	p, err := ParsePriority("  HIGH ")
	require.NoError(t, err)
	assert.Equal(t, PriorityHigh, p)

	_, err = ParsePriority("urgent")
	assert.Error(t, err)
}

func TestPriority_YAML(t *testing.T) {
	var doc struct {
		Priority Priority `yaml:"priority"`
	}
	require.NoError(t, yaml.Unmarshal([]byte("priority: low\n"), &doc))
	assert.Equal(t, PriorityLow, doc.Priority)

	out, err := yaml.Marshal(doc)
	require.NoError(t, err)
	assert.Equal(t, "priority: low\n", string(out))

	err = yaml.Unmarshal([]byte("priority: soon\n"), &doc)
	assert.Error(t, err)
}
