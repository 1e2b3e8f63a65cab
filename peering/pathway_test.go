package peering

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPathway_LTPOnRapidActivation(t *testing.T) {
	p := NewPathway("peer-1")
	defer p.Stop()

	start := time.Now()
	p.RecordActivation(start, "test.event", 1.0, "")
	p.RecordActivation(start.Add(5*time.Millisecond), "test.event", 1.0, "")

	assert.InDelta(t, initialStrength+ltpDelta, p.Strength(), 1e-9)
}

func TestPathway_LTDOnSlowActivation(t *testing.T) {
	p := NewPathway("peer-1")
	defer p.Stop()

	start := time.Now()
	p.RecordActivation(start, "test.event", 1.0, "")
	p.RecordActivation(start.Add(200*time.Millisecond), "test.event", 1.0, "")

	assert.InDelta(t, initialStrength-ltdDelta, p.Strength(), 1e-9)
}

func TestPathway_StrengthClampedToBounds(t *testing.T) {
	p := NewPathway("peer-1")
	defer p.Stop()

	now := time.Now()
	for i := 0; i < 50; i++ {
		now = now.Add(time.Millisecond)
		p.RecordActivation(now, "test.event", 1.0, "")
	}
	assert.LessOrEqual(t, p.Strength(), maxSmoothedWeight)

	p2 := NewPathway("peer-2")
	defer p2.Stop()
	now = time.Now()
	for i := 0; i < 50; i++ {
		now = now.Add(200 * time.Millisecond)
		p2.RecordActivation(now, "test.event", 1.0, "")
	}
	assert.GreaterOrEqual(t, p2.Strength(), minSmoothedWeight)
}
