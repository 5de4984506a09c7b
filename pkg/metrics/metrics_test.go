package metrics

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordAttemptIncrementsCounter(t *testing.T) {
	c := New()
	c.RecordAttempt("fast", "passed")
	c.RecordAttempt("fast", "passed")
	c.RecordAttempt("strong", "failed")

	assert.Equal(t, 3, testutil.CollectAndCount(c.AttemptsTotal))
}

func TestSetActiveTasksAndSnapshot(t *testing.T) {
	c := New()
	c.RecordAttempt("fast", "passed")
	c.RecordEscalation("fast", "strong")
	c.RecordMerge("merged")
	c.ObserveTaskDuration("passed", 12*time.Second)
	c.SetActiveTasks(3)

	path := filepath.Join(t.TempDir(), "live-metrics.json")
	require.NoError(t, c.WriteSnapshot(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var snap Snapshot
	require.NoError(t, json.Unmarshal(data, &snap))
	assert.Equal(t, float64(3), snap.ActiveTasks)
	assert.NotZero(t, snap.Timestamp)
	assert.NotEmpty(t, snap.Attempts)
	assert.NotEmpty(t, snap.Escalations)
	assert.NotEmpty(t, snap.Merges)
}
