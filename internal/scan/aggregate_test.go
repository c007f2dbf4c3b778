package scan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregateEmpty(t *testing.T) {
	assert.Empty(t, Aggregate(nil))
	assert.Empty(t, Aggregate([]Event{}))
}

func TestAggregateGroupsByDesignAndLot(t *testing.T) {
	events := []Event{
		{Design: "A", Lot: "L1", UniqueIdentifier: "U1"},
		{Design: "B", Lot: "L2", UniqueIdentifier: "U2"},
		{Design: "A", Lot: "L1", UniqueIdentifier: "U3"},
		{Design: "A", Lot: "L2", UniqueIdentifier: "U4"},
		{Design: "A", Lot: "L1", UniqueIdentifier: "U5"},
	}

	lines := Aggregate(events)
	require.Len(t, lines, 3)

	// First-seen order of keys.
	assert.Equal(t, "A", lines[0].Design)
	assert.Equal(t, "L1", lines[0].Lot)
	assert.Equal(t, 3, lines[0].Count)
	assert.Equal(t, []string{"U1", "U3", "U5"}, lines[0].UniqueIdentifiers)

	assert.Equal(t, "B", lines[1].Design)
	assert.Equal(t, "L2", lines[1].Lot)
	assert.Equal(t, 1, lines[1].Count)

	// Same design, different lot is its own line.
	assert.Equal(t, "A", lines[2].Design)
	assert.Equal(t, "L2", lines[2].Lot)
	assert.Equal(t, 1, lines[2].Count)
}

func TestAggregateCountsSumToEventCount(t *testing.T) {
	events := []Event{
		{Design: "A", Lot: "L1", UniqueIdentifier: "U1"},
		{Design: "A", Lot: "L1", UniqueIdentifier: "U2"},
		{Design: "B", Lot: "L1", UniqueIdentifier: "U3"},
		{Design: "C", Lot: "L9", UniqueIdentifier: "U4"},
		{Design: "B", Lot: "L1", UniqueIdentifier: "U5"},
	}

	total := 0
	for _, line := range Aggregate(events) {
		total += line.Count
		assert.Len(t, line.UniqueIdentifiers, line.Count)
	}
	assert.Equal(t, len(events), total)
}

func TestAggregateDoesNotMutateInput(t *testing.T) {
	events := []Event{
		{Design: "A", Lot: "L1", UniqueIdentifier: "U1"},
		{Design: "A", Lot: "L1", UniqueIdentifier: "U2"},
	}
	before := make([]Event, len(events))
	copy(before, events)

	Aggregate(events)
	assert.Equal(t, before, events)
}
