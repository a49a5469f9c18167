package metricskey

import (
	"sort"
	"testing"

	"github.com/effective-security/metrics"
	"github.com/stretchr/testify/assert"
)

func TestMetricsDefinitions(t *testing.T) {
	assert.Len(t, Metrics, 21)

	seen := make(map[string]bool)
	for _, m := range Metrics {
		assert.NotEmpty(t, m.Name)
		assert.Contains(t, m.Help, m.Name)
		assert.NotEmpty(t, m.RequiredTags, "metric should have required tags: %s", m.Name)
		assert.False(t, seen[m.Name], "metric name should be unique: %s", m.Name)
		seen[m.Name] = true
	}

	isSorted := sort.SliceIsSorted(Metrics, func(i, j int) bool {
		return Metrics[i].Name < Metrics[j].Name
	})
	assert.True(t, isSorted, "Metrics slice should be sorted by name")

	t.Run("tool metrics have tool tag", func(t *testing.T) {
		for _, m := range []*metrics.Describe{
			&StatsToolCallsSucceeded,
			&StatsToolCallsFailed,
			&StatsToolCallsNotFound,
			&PerfToolCall,
		} {
			assert.Contains(t, m.RequiredTags, "tool", m.Name)
		}
	})

	t.Run("LLM metrics have agent and model tags", func(t *testing.T) {
		for _, m := range []*metrics.Describe{
			&StatsLLMMessagesSent,
			&StatsLLMBytesSent,
			&StatsLLMBytesReceived,
			&StatsLLMInputTokens,
			&StatsLLMOutputTokens,
			&StatsLLMTotalTokens,
			&StatsLLMToolCallsRequested,
			&PerfLLMCall,
		} {
			assert.Equal(t, []string{"agent", "model"}, m.RequiredTags, m.Name)
		}
	})
}
