package ws

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/braianpx/fieldtrack/internal/models"
)

func TestRegistryRemoveReportsOnce(t *testing.T) {
	r := newRegistry()
	c := newConnection(nil, nil)

	r.add(c)
	assert.True(t, r.has(c))
	assert.Equal(t, 1, r.len())

	assert.True(t, r.remove(c))
	assert.False(t, r.remove(c), "second remove must report not-registered")
	assert.False(t, r.has(c))
	assert.Equal(t, 0, r.len())
}

func TestRegistryIgnoresUnregisteredHandles(t *testing.T) {
	r := newRegistry()
	c := newConnection(nil, nil)

	r.setIdentity(c, 7, models.RoleSurveyor)
	r.subscribe(c, models.ChannelLocations)

	assert.Nil(t, c.identity)
	assert.Empty(t, c.subs)

	r.add(c)
	r.setIdentity(c, 7, models.RoleSurveyor)
	r.subscribe(c, models.ChannelLocations)
	assert.NotNil(t, c.identity)
	assert.Contains(t, c.subs, models.ChannelLocations)
}

func TestRegistryForEachVisitsAll(t *testing.T) {
	r := newRegistry()
	a, b := newConnection(nil, nil), newConnection(nil, nil)
	r.add(a)
	r.add(b)

	seen := map[*connection]bool{}
	r.forEach(func(c *connection) { seen[c] = true })
	assert.Len(t, seen, 2)
}
