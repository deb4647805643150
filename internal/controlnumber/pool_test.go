package controlnumber

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewPool_SortsAndDropsEmpty(t *testing.T) {
	p := NewPool([]string{"CN-06-02-001", "", "CN-06-01-003", "CN-06-01-002"})
	assert.Equal(t, []string{"CN-06-01-002", "CN-06-01-003", "CN-06-02-001"}, p.Numbers())
}

func TestPool_Free(t *testing.T) {
	p := NewPool(nil)

	assert.False(t, p.Free(""))
	assert.Equal(t, 0, p.Len())

	assert.True(t, p.Free("CN-06-01-003"))
	assert.Equal(t, []string{"CN-06-01-003"}, p.Numbers())

	p.Free("CN-05-30-010")
	p.Free("CN-06-01-001")
	assert.Equal(t, []string{"CN-05-30-010", "CN-06-01-001", "CN-06-01-003"}, p.Numbers())
}

func TestPool_TakeEmpty(t *testing.T) {
	p := NewPool(nil)
	n, ok := p.Take()
	assert.False(t, ok)
	assert.Empty(t, n)
}

func TestPool_Remove(t *testing.T) {
	p := NewPool([]string{"CN-06-01-001", "CN-06-01-002", "CN-06-01-001"})
	assert.Equal(t, 2, p.Remove("CN-06-01-001"))
	assert.Equal(t, []string{"CN-06-01-002"}, p.Numbers())
	assert.Equal(t, 0, p.Remove("CN-09-09-009"))
}

func TestPool_NumbersIsACopy(t *testing.T) {
	p := NewPool([]string{"CN-06-01-001"})
	out := p.Numbers()
	out[0] = "changed"
	assert.Equal(t, []string{"CN-06-01-001"}, p.Numbers())
}
