package trigger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const umbPattern = "^(Update Memory Bank|UMB)$"

// --- UMB ---

func TestMatchUMB(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"UMB", true},
		{"umb", true},
		{"Update Memory Bank", true},
		{"update memory bank", true},
		{"Let's do UMB now", false},
		{"UMB please", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got, err := MatchUMB(umbPattern, tt.text)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMatchUMB_UnanchoredPatternSearches(t *testing.T) {
	got, err := MatchUMB("update memory", "please UPDATE MEMORY bank")
	require.NoError(t, err)
	assert.True(t, got)
}

func TestMatchUMB_EmptyPattern(t *testing.T) {
	got, err := MatchUMB("", "UMB")
	require.NoError(t, err)
	assert.False(t, got)
}

func TestMatchUMB_InvalidPattern(t *testing.T) {
	_, err := MatchUMB("(unclosed", "UMB")
	assert.Error(t, err)
}

func TestMatchUMB_Deterministic(t *testing.T) {
	first, _ := MatchUMB(umbPattern, "UMB")
	for i := 0; i < 10; i++ {
		again, _ := MatchUMB(umbPattern, "UMB")
		assert.Equal(t, first, again)
	}
}

// --- Mode triggers ---

func allAvailable(string) bool { return true }

func TestMatchModeTriggers_Substring(t *testing.T) {
	rules := []Rule{{Target: "architect", Conditions: []string{"needs_architectural_changes"}}}
	got := MatchModeTriggers(rules, "We need to make needs_architectural_changes to the system", allAvailable)
	assert.Equal(t, []string{"architect"}, got)
}

func TestMatchModeTriggers_CaseSensitive(t *testing.T) {
	rules := []Rule{{Target: "architect", Conditions: []string{"needs_architectural_changes"}}}
	got := MatchModeTriggers(rules, "NEEDS_ARCHITECTURAL_CHANGES", allAvailable)
	assert.Empty(t, got)
}

func TestMatchModeTriggers_OrderAndDedup(t *testing.T) {
	rules := []Rule{
		{Target: "test", Conditions: []string{"tests_need_update"}},
		{Target: "debug", Conditions: []string{"nope", "error_investigation_needed"}},
		{Target: "test", Conditions: []string{"error_investigation_needed"}},
		{Target: "ask", Conditions: []string{"missing"}},
	}
	got := MatchModeTriggers(rules, "error_investigation_needed and tests_need_update", allAvailable)
	assert.Equal(t, []string{"test", "debug"}, got)
}

func TestMatchModeTriggers_SkipsUnavailableTargets(t *testing.T) {
	rules := []Rule{
		{Target: "architect", Conditions: []string{"design"}},
		{Target: "debug", Conditions: []string{"design"}},
	}
	available := func(m string) bool { return m == "debug" }
	got := MatchModeTriggers(rules, "design", available)
	assert.Equal(t, []string{"debug"}, got)
}

func TestMatchModeTriggers_EmptyConditionNeverMatches(t *testing.T) {
	rules := []Rule{{Target: "ask", Conditions: []string{""}}}
	assert.Empty(t, MatchModeTriggers(rules, "anything", allAvailable))
}

func TestMatchModeTriggers_NilAvailableAllowsAll(t *testing.T) {
	rules := []Rule{{Target: "ask", Conditions: []string{"why"}}}
	assert.Equal(t, []string{"ask"}, MatchModeTriggers(rules, "why", nil))
}
