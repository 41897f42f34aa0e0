package thinking

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func zeroTable(n int) []StepTiming {
	table := make([]StepTiming, n)
	for i := range table {
		table[i] = StepTiming{Thought: "step", Tool: "tool", ToolDisplayName: "Tool"}
	}
	return table
}

func TestSimulator_RunsSequentially(t *testing.T) {
	var updates []Step
	sim := New(
		WithTimingTable(PhaseMessage, zeroTable(3)),
		WithOnUpdate(func(s Step) { updates = append(updates, s) }),
	)

	steps, err := sim.Run(context.Background(), PhaseMessage)
	require.NoError(t, err)
	require.Len(t, steps, 3)

	// Two updates per step: running then completed, strictly interleaved.
	require.Len(t, updates, 6)
	for i := 0; i < 3; i++ {
		assert.Equal(t, StatusRunning, updates[2*i].Status)
		assert.Equal(t, StatusCompleted, updates[2*i+1].Status)
		assert.Equal(t, i+1, updates[2*i].Ordinal)
		assert.Equal(t, updates[2*i].ID, updates[2*i+1].ID)
	}

	// At no point does a step start before the previous one completed.
	for i, step := range steps {
		assert.Equal(t, StatusCompleted, step.Status)
		if i > 0 {
			assert.False(t, step.StartTime.Before(steps[i-1].EndTime))
		}
	}
}

func TestSimulator_EndPhaseLongerThanStart(t *testing.T) {
	sim := New()
	assert.Greater(t, sim.Total(PhaseEnd), sim.Total(PhaseStart))
	assert.Greater(t, sim.Total(PhaseEnd), sim.Total(PhaseMessage))
}

func TestSimulator_Cancellation(t *testing.T) {
	sim := New(WithTimingTable(PhaseEnd, []StepTiming{
		{Thought: "long step", Duration: time.Minute},
	}))

	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() {
		_, err := sim.Run(ctx, PhaseEnd)
		errCh <- err
	}()

	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}

func TestSimulator_UnknownPhaseIsEmpty(t *testing.T) {
	sim := New()
	steps, err := sim.Run(context.Background(), Phase("bogus"))
	require.NoError(t, err)
	assert.Empty(t, steps)
}
