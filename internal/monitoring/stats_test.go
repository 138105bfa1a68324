package monitoring

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRunStats_Summarize(t *testing.T) {
	started := time.Date(2025, 6, 2, 6, 0, 0, 0, time.UTC)
	stats := NewRunStats(started)

	stats.AddFetched(40)
	stats.IncUpserted()
	stats.IncUpserted()
	stats.IncNewDeal()
	stats.IncRecurrence()
	stats.IncRevived()
	stats.IncErrors()
	stats.IncDropped()

	finished := started.Add(90 * time.Second)
	summary := stats.Summarize(finished, nil)

	assert.Equal(t, 40, summary.Fetched)
	assert.Equal(t, 2, summary.Upserted)
	assert.Equal(t, 1, summary.NewDeals)
	assert.Equal(t, 1, summary.Recurrences)
	assert.Equal(t, 1, summary.Revived)
	assert.Equal(t, 1, summary.Errors)
	assert.Equal(t, 1, summary.Dropped)
	assert.Equal(t, 90.0, summary.ElapsedSecs)
	assert.Nil(t, summary.Health)
}

func TestRunStats_Concurrent(t *testing.T) {
	stats := NewRunStats(time.Now())

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			stats.AddFetched(2)
			stats.IncUpserted()
		}()
	}
	wg.Wait()

	summary := stats.Summarize(time.Now(), nil)
	assert.Equal(t, 100, summary.Fetched)
	assert.Equal(t, 50, summary.Upserted)
}
