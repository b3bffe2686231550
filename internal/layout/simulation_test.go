package layout

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func star(n int) ([]NodeSpec, []Link) {
	specs := []NodeSpec{{ID: "hub", Radius: 14}}
	var links []Link
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("leaf-%d", i)
		specs = append(specs, NodeSpec{ID: id, Radius: 12})
		links = append(links, Link{Source: "hub", Target: id})
	}
	return specs, links
}

func distance(a, b Node) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}

func TestNew_PhyllotaxisIsDeterministic(t *testing.T) {
	specs, links := star(5)
	a := New(specs, links, Config{})
	b := New(specs, links, Config{})
	assert.Equal(t, a.Nodes(), b.Nodes())

	first := a.Nodes()[0]
	assert.InDelta(t, 10*math.Sqrt(0.5), first.X, 1e-9)
	assert.InDelta(t, 0, first.Y, 1e-9)
}

func TestRun_ConvergesWithoutOverlap(t *testing.T) {
	specs, links := star(10)
	sim := New(specs, links, Config{})

	ticks := sim.Run()
	assert.Greater(t, ticks, 0)
	assert.LessOrEqual(t, ticks, DefaultConfig().MaxTicks)
	assert.True(t, sim.Stable())

	nodes := sim.Nodes()
	for i := range nodes {
		for j := i + 1; j < len(nodes); j++ {
			assert.Greater(t, distance(nodes[i], nodes[j]), nodes[i].Radius+nodes[j].Radius,
				"%s overlaps %s", nodes[i].ID, nodes[j].ID)
		}
	}

	var cx, cy float64
	for _, n := range nodes {
		cx += n.X
		cy += n.Y
	}
	assert.InDelta(t, 0, cx/float64(len(nodes)), 1)
	assert.InDelta(t, 0, cy/float64(len(nodes)), 1)
}

func TestRun_Repeatable(t *testing.T) {
	specs, links := star(6)
	a := New(specs, links, Config{})
	b := New(specs, links, Config{})
	a.Run()
	b.Run()
	assert.Equal(t, a.Nodes(), b.Nodes())
}

func TestRun_Empty(t *testing.T) {
	sim := New(nil, []Link{{Source: "a", Target: "b"}}, Config{})
	assert.Equal(t, 0, sim.Run())
	minX, minY, maxX, maxY := sim.Bounds()
	assert.Zero(t, minX+minY+maxX+maxY)
}

func TestPin_HoldsPositionUntilRelease(t *testing.T) {
	specs, links := star(4)
	sim := New(specs, links, Config{})
	sim.Run()

	require.True(t, sim.Pin("leaf-0", 400, -250))
	assert.GreaterOrEqual(t, sim.Alpha(), ReheatAlpha)
	assert.False(t, sim.Stable())

	sim.Run()
	pinned, ok := sim.Node("leaf-0")
	require.True(t, ok)
	assert.Equal(t, 400.0, pinned.X)
	assert.Equal(t, -250.0, pinned.Y)
	assert.True(t, pinned.Pinned)
	assert.Zero(t, pinned.VX)

	require.True(t, sim.Release("leaf-0"))
	assert.GreaterOrEqual(t, sim.Alpha(), ReheatAlpha)
	sim.Run()
	released, _ := sim.Node("leaf-0")
	assert.False(t, released.Pinned)
	assert.NotEqual(t, 400.0, released.X)

	assert.False(t, sim.Pin("missing", 0, 0))
	assert.False(t, sim.Release("missing"))
}

func TestNeighbors(t *testing.T) {
	sim := New(
		[]NodeSpec{{ID: "a"}, {ID: "b"}, {ID: "c"}, {ID: "d"}},
		[]Link{{"a", "b"}, {"c", "a"}, {"b", "c"}, {"a", "b"}, {"a", "a"}, {"a", "ghost"}},
		Config{},
	)

	nodes, links := sim.Neighbors("a")
	assert.Equal(t, []string{"b", "c"}, nodes)
	assert.Equal(t, []int{0, 1, 3}, links)

	nodes, links = sim.Neighbors("d")
	assert.Empty(t, nodes)
	assert.Empty(t, links)

	nodes, _ = sim.Neighbors("ghost")
	assert.Nil(t, nodes)
}
