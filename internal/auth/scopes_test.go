package auth

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseCapabilities(t *testing.T) {
	assert.Nil(t, ParseCapabilities(""))
	assert.Equal(t, Capabilities{"items:write"}, ParseCapabilities("items:write"))
	assert.Equal(t,
		Capabilities{"items:write", "workflow:provision"},
		ParseCapabilities(" items:write , workflow:provision ,"))
}

func TestCapabilitiesHas(t *testing.T) {
	caps := Capabilities{ScopeItemsMove, ScopeSchedulesTrigger}
	assert.True(t, caps.Has(ScopeItemsMove))
	assert.False(t, caps.Has(ScopeWorkflowProvision))
	assert.True(t, Capabilities{"*"}.Has(ScopeWorkflowProvision))
	assert.False(t, Capabilities(nil).Has(ScopeItemsMove))
}

func TestRequire(t *testing.T) {
	caps := Capabilities{ScopeItemsMove}
	assert.NoError(t, caps.Require(ScopeItemsMove))

	err := caps.Require(ScopeWorkflowProvision)
	assert.True(t, errors.Is(err, ErrForbidden))
	assert.Contains(t, err.Error(), ScopeWorkflowProvision)
}
