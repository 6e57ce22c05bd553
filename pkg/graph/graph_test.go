package graph_test

import (
	"testing"

	"github.com/ha1tch/hotelmig/pkg/graph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTopologicalOrderParentsFirst(t *testing.T) {
	g := graph.New()
	// insertion order mimics remote order: child before parent
	g.AddNode("43")
	g.AddNode("42")
	g.AddNode("44")
	g.AddNode("45")
	g.AddEdge("43", "42", "parent_id")
	g.AddEdge("45", "43", "parent_id")

	order, err := g.TopologicalOrder()
	require.NoError(t, err)
	assert.Equal(t, []string{"42", "44", "43", "45"}, order)
	assert.False(t, g.HasCycle())
	assert.Equal(t, 4, g.NodeCount())
	assert.Equal(t, 2, g.EdgeCount())
}

func TestTopologicalOrderCycle(t *testing.T) {
	g := graph.New()
	g.AddNode("1")
	g.AddEdge("2", "3", "parent_id")
	g.AddEdge("3", "2", "parent_id")

	assert.True(t, g.HasCycle())

	order, err := g.TopologicalOrder()
	assert.ErrorIs(t, err, graph.ErrCycle)
	assert.Equal(t, []string{"1", "2", "3"}, order, "every node is still listed")
}

func TestClosure(t *testing.T) {
	g := graph.New()
	g.AddEdge("invoices", "partners", "requires")
	g.AddEdge("invoices", "payments", "requires")
	g.AddEdge("payments", "folios", "requires")
	g.AddEdge("folios", "partners", "requires")

	closure, err := g.Closure("invoices")
	require.NoError(t, err)
	assert.Equal(t, []string{"partners", "folios", "payments", "invoices"}, closure)

	assert.Equal(t, []string{"partners", "payments"}, g.Dependencies("invoices"))
	assert.Equal(t, []string{"folios", "invoices"}, g.Dependents("partners"))
	assert.True(t, g.HasNode("folios"))
	assert.False(t, g.HasNode("users"))

	_, err = g.Closure("users")
	assert.Error(t, err)

	g.AddEdge("partners", "invoices", "requires")
	_, err = g.Closure("invoices")
	assert.ErrorIs(t, err, graph.ErrCycle)
}
