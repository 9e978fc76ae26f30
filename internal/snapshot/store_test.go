package snapshot

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStores(t *testing.T) map[string]Store {
	t.Helper()

	sqlite, err := NewSQLite(filepath.Join(t.TempDir(), "nested", "snapshots.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sqlite.Close() })

	return map[string]Store{
		"sqlite": sqlite,
		"memory": NewMemory(),
	}
}

func TestSnapshots(t *testing.T) {
	for name, st := range setupTestStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			data, err := st.Load(ctx, "new-tickets")
			require.NoError(t, err)
			assert.Nil(t, data)

			first := json.RawMessage(`{"lastProcessedTicketId":1,"lastProcessedTicketDate":"2020-01-01 00:00:00"}`)
			second := json.RawMessage(`{"lastProcessedTicketId":2,"lastProcessedTicketDate":"2020-01-01 00:00:05"}`)
			require.NoError(t, st.Save(ctx, "new-tickets", first))
			require.NoError(t, st.Save(ctx, "new-tickets", second))
			require.NoError(t, st.Save(ctx, "updated-tickets", first))

			data, err = st.Load(ctx, "new-tickets")
			require.NoError(t, err)
			assert.JSONEq(t, string(second), string(data))

			data, err = st.Load(ctx, "updated-tickets")
			require.NoError(t, err)
			assert.JSONEq(t, string(first), string(data))
		})
	}
}

func TestRuns(t *testing.T) {
	for name, st := range setupTestStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			start := time.Date(2020, 1, 1, 10, 0, 0, 0, time.UTC)

			for i := 0; i < 3; i++ {
				run := Run{
					Job:        "new-tickets",
					StartedAt:  start.Add(time.Duration(i) * time.Minute),
					FinishedAt: start.Add(time.Duration(i)*time.Minute + time.Second),
					Emitted:    i,
				}
				if i == 2 {
					run.Error = "upstream failed"
					run.Snapshot = json.RawMessage(`{"lastProcessedTicketId":7}`)
				}
				require.NoError(t, st.RecordRun(ctx, run))
			}

			runs, err := st.ListRuns(ctx, "new-tickets", 2)
			require.NoError(t, err)
			require.Len(t, runs, 2)
			assert.Equal(t, 2, runs[0].Emitted)
			assert.Equal(t, "upstream failed", runs[0].Error)
			assert.JSONEq(t, `{"lastProcessedTicketId":7}`, string(runs[0].Snapshot))
			assert.True(t, runs[0].StartedAt.Equal(start.Add(2*time.Minute)))
			assert.Equal(t, 1, runs[1].Emitted)
			assert.Empty(t, runs[1].Error)
			assert.Nil(t, runs[1].Snapshot)

			runs, err = st.ListRuns(ctx, "other", 10)
			require.NoError(t, err)
			assert.Empty(t, runs)
		})
	}
}
