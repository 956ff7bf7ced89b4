package assistant

import (
	"testing"

	"github.com/refnexus/platform/internal/domain"
	"github.com/stretchr/testify/assert"
)

func toolNames(tools []ToolSpec) []string {
	out := make([]string, len(tools))
	for i, t := range tools {
		out[i] = t.Name
	}
	return out
}

func TestToolsFor(t *testing.T) {
	assert.ElementsMatch(t,
		[]string{ToolSearchGames, ToolGetGameDetails, ToolFindReferees, ToolCreateGame},
		toolNames(ToolsFor(domain.RoleLeague)))
	assert.ElementsMatch(t,
		[]string{ToolSearchGames, ToolGetGameDetails, ToolGetMyAssignments, ToolGetAvailableGames},
		toolNames(ToolsFor(domain.RoleReferee)))

	// Appending role tools must not leak into the shared slice.
	ToolsFor(domain.RoleLeague)
	assert.Len(t, ToolsFor(domain.RoleReferee), 4)
}

func TestAllowed(t *testing.T) {
	assert.True(t, Allowed(domain.RoleLeague, ToolCreateGame))
	assert.False(t, Allowed(domain.RoleReferee, ToolCreateGame))
	assert.True(t, Allowed(domain.RoleReferee, ToolGetAvailableGames))
	assert.False(t, Allowed(domain.RoleLeague, "drop_tables"))
}

func TestSystemPrompt(t *testing.T) {
	league := SystemPrompt(domain.RoleLeague, Profile{Name: "Valley Youth"})
	assert.Contains(t, league, "League: Valley Youth")
	assert.Contains(t, league, "Region: Unknown")

	ref := SystemPrompt(domain.RoleReferee, Profile{Name: "Pat", CertLevel: "Grade 7", Location: "Springfield"})
	assert.Contains(t, ref, "Certification: Grade 7")
	assert.NotContains(t, ref, "League:")
}
