package graph

import (
	"bytes"
	"testing"

	"github.com/mihirlaud/karma/vm"
	"github.com/stretchr/testify/assert"
)

func TestEntryIsNodeZero(t *testing.T) {
	g := New()
	a := vm.New("Main", []byte{0x90}, &bytes.Buffer{})
	b := vm.New("Helper", []byte{0x90}, &bytes.Buffer{})

	idxA := g.AddNode("Main", a)
	idxB := g.AddNode("Helper", b)

	assert.Equal(t, 0, idxA)
	assert.Equal(t, 1, idxB)
	assert.Same(t, a, g.Entry())
}

func TestNeighborsReflectAdjacency(t *testing.T) {
	g := New()
	g.AddNode("Main", vm.New("Main", nil, &bytes.Buffer{}))
	g.AddNode("Helper", vm.New("Helper", nil, &bytes.Buffer{}))
	g.Adjacency[0] = []int{1}

	assert.Equal(t, []int{1}, g.Neighbors(0))
	assert.Nil(t, g.Neighbors(1))
}

func TestStringIncludesNodeCountAndAdjacency(t *testing.T) {
	g := New()
	g.AddNode("Main", vm.New("Main", nil, &bytes.Buffer{}))
	g.Adjacency[0] = []int{}

	s := g.String()
	assert.Contains(t, s, "1 nodes")
	assert.Contains(t, s, "Main")
}

func TestEmptyGraphEntryIsNil(t *testing.T) {
	g := New()
	assert.Nil(t, g.Entry())
}
