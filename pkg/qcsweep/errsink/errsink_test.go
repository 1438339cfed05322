package errsink

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotCountsAllCalls(t *testing.T) {
	s := New()

	const goroutines, perGoroutine = 32, 100
	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < perGoroutine; i++ {
				if i%3 == 0 {
					s.AddError(fmt.Sprintf("g%d item %d failed", g, i))
				} else {
					s.AddWarning(fmt.Sprintf("g%d item %d skipped", g, i))
				}
			}
		}(g)
	}
	wg.Wait()

	snap := s.Snapshot()
	assert.Len(t, snap, goroutines*perGoroutine)
	assert.Equal(t, goroutines*perGoroutine, s.Len())
	assert.Len(t, s.Errors(), goroutines*34)
	assert.Len(t, s.Warnings(), goroutines*66)
	assert.True(t, s.HasErrors())
}

func TestNoDeduplication(t *testing.T) {
	s := New()
	s.AddWarning("same")
	s.AddWarning("same")
	s.AddError("same")

	assert.Equal(t, []string{"same", "same"}, s.Warnings())
	assert.Equal(t, []string{"same"}, s.Errors())
}

func TestSnapshotIsACopy(t *testing.T) {
	s := New()
	s.AddError("first")

	snap := s.Snapshot()
	require.Len(t, snap, 1)
	snap[0].Message = "mutated"
	s.AddError("second")

	fresh := s.Snapshot()
	assert.Equal(t, "first", fresh[0].Message)
	assert.Len(t, snap, 1)
}

func TestWarningsDoNotCountAsErrors(t *testing.T) {
	s := New()
	s.Warningf("skipped %s", "a.log")
	assert.False(t, s.HasErrors())

	s.Errorf("%s: %v", "b.log", "boom")
	assert.True(t, s.HasErrors())
	assert.Equal(t, []string{"b.log: boom"}, s.Errors())
}

func TestZeroValueSink(t *testing.T) {
	var s Sink
	s.AddWarning("w")
	assert.Equal(t, 1, s.Len())
	assert.Equal(t, Warning, s.Snapshot()[0].Severity)
}
