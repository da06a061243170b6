package featureflags

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnabled_BooleanValues(t *testing.T) {
	m := NewManager("a=on,b=off,c=true,d=false,e=1,f=0")

	for _, name := range []string{"a", "c", "e"} {
		assert.True(t, m.Enabled(name, "admin-1"), name)
	}
	for _, name := range []string{"b", "d", "f", "missing"} {
		assert.False(t, m.Enabled(name, "admin-1"), name)
	}
}

func TestEnabled_PercentageValues(t *testing.T) {
	m := NewManager("always=100%,never=0%,canary=25%,broken=x%")

	assert.True(t, m.Enabled("always", "admin-1"))
	assert.False(t, m.Enabled("never", "admin-1"))
	assert.False(t, m.Enabled("broken", "admin-1"))

	first := m.Enabled("canary", "7d1f0c8e-2f7a-4c55-9d7b-6f2f3f0c1a11")
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, m.Enabled("canary", "7d1f0c8e-2f7a-4c55-9d7b-6f2f3f0c1a11"),
			"rollout evaluation must be deterministic per subject")
	}

	assert.False(t, m.Enabled("canary", ""), "percentage rollout requires a subject")
}

func TestEnabledOr(t *testing.T) {
	m := NewManager("catalog_writes=off")

	assert.False(t, m.EnabledOr(CatalogWrites, "admin-1", true))
	assert.True(t, m.EnabledOr(ReviewerFeed, "admin-1", true))
	assert.False(t, m.EnabledOr(ReviewerFeed, "admin-1", false))

	var nilManager *Manager
	assert.True(t, nilManager.EnabledOr(ReviewerFeed, "admin-1", true))
	assert.False(t, nilManager.Enabled(ReviewerFeed, "admin-1"))
}

func TestParseAndSnapshot(t *testing.T) {
	m := NewManager(" bad ,x=on, Y = 20% ,z=off,=on,w= ")

	assert.Equal(t, map[string]string{"x": "on", "y": "20%", "z": "off"}, m.Raw())

	snap := m.Snapshot("admin-1")
	assert.Len(t, snap, 3)
	assert.True(t, snap["x"])
	assert.False(t, snap["z"])
}
