package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tuannvm/otrs-connector/internal/config"
	"github.com/tuannvm/otrs-connector/internal/models"
	"github.com/tuannvm/otrs-connector/internal/platform"
	"github.com/tuannvm/otrs-connector/internal/snapshot"
)

// fakeInvoker emits one message per call and advances the cursor by one.
type fakeInvoker struct {
	mu        sync.Mutex
	snapshots []string
	failAfter bool
}

func (f *fakeInvoker) Invoke(ctx context.Context, inv platform.Invocation, rec *platform.Recorder) error {
	f.mu.Lock()
	f.snapshots = append(f.snapshots, string(inv.Snapshot))
	fail := f.failAfter
	f.mu.Unlock()

	var prev models.Cursor
	if len(inv.Snapshot) > 0 {
		if err := json.Unmarshal(inv.Snapshot, &prev); err != nil {
			return err
		}
	}
	next := models.Cursor{
		LastProcessedTicketID:   prev.LastProcessedTicketID + 1,
		LastProcessedTicketDate: "2020-01-01 10:00:00",
	}

	msg, err := platform.NewMessageWithBody(map[string]int64{"n": int64(next.LastProcessedTicketID)})
	if err != nil {
		return err
	}
	if err := rec.Emit(ctx, msg); err != nil {
		return err
	}
	if err := rec.AdvanceCursor(ctx, next); err != nil {
		return err
	}
	rec.End()
	if fail {
		return errors.New("upstream failed")
	}
	return nil
}

func newTestScheduler(t *testing.T, inv Invoker, opts ...Option) (*Scheduler, snapshot.Store) {
	t.Helper()
	store := snapshot.NewMemory()
	s := New(inv, append([]Option{WithStore(store)}, opts...)...)
	require.NoError(t, s.Add(Job{
		Name:     "new-tickets",
		Function: "getNewTickets",
		Schedule: "*/5 * * * *",
	}))
	return s, store
}

func TestRunJobCarriesSnapshot(t *testing.T) {
	inv := &fakeInvoker{}
	var forwarded []string
	s, store := newTestScheduler(t, inv, WithForwarder(func(ctx context.Context, job string, msg platform.Message) error {
		forwarded = append(forwarded, job+":"+string(msg.Body))
		return nil
	}))
	ctx := context.Background()

	run, err := s.RunJob(ctx, "new-tickets")
	require.NoError(t, err)
	assert.Equal(t, 1, run.Emitted)
	assert.Empty(t, run.Error)

	_, err = s.RunJob(ctx, "new-tickets")
	require.NoError(t, err)

	require.Len(t, inv.snapshots, 2)
	assert.Empty(t, inv.snapshots[0])
	assert.JSONEq(t, `{"lastProcessedTicketId":1,"lastProcessedTicketDate":"2020-01-01 10:00:00"}`, inv.snapshots[1])
	assert.Equal(t, []string{`new-tickets:{"n":1}`, `new-tickets:{"n":2}`}, forwarded)

	saved, err := store.Load(ctx, "new-tickets")
	require.NoError(t, err)
	assert.JSONEq(t, `{"lastProcessedTicketId":2,"lastProcessedTicketDate":"2020-01-01 10:00:00"}`, string(saved))

	runs, err := store.ListRuns(ctx, "new-tickets", 10)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestRunJobPersistsSnapshotAfterFailure(t *testing.T) {
	inv := &fakeInvoker{failAfter: true}
	s, store := newTestScheduler(t, inv)
	ctx := context.Background()

	run, err := s.RunJob(ctx, "new-tickets")
	require.Error(t, err)
	assert.Equal(t, "upstream failed", run.Error)

	saved, err := store.Load(ctx, "new-tickets")
	require.NoError(t, err)
	assert.JSONEq(t, `{"lastProcessedTicketId":1,"lastProcessedTicketDate":"2020-01-01 10:00:00"}`, string(saved))

	runs, err := store.ListRuns(ctx, "new-tickets", 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "upstream failed", runs[0].Error)
	assert.JSONEq(t, string(saved), string(runs[0].Snapshot))
}

func TestRunJobForwardError(t *testing.T) {
	inv := &fakeInvoker{}
	s, store := newTestScheduler(t, inv, WithForwarder(func(ctx context.Context, job string, msg platform.Message) error {
		return errors.New("downstream unavailable")
	}))
	ctx := context.Background()

	_, err := s.RunJob(ctx, "new-tickets")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "downstream unavailable")

	saved, err := store.Load(ctx, "new-tickets")
	require.NoError(t, err)
	assert.Nil(t, saved)
}

func TestRunJobUnknown(t *testing.T) {
	s := New(&fakeInvoker{})
	_, err := s.RunJob(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrUnknownJob)
}

func TestAdd(t *testing.T) {
	s := New(&fakeInvoker{})

	err := s.Add(Job{Name: "bad", Function: "getNewTickets", Schedule: "not a schedule"})
	assert.Error(t, err)

	err = s.Add(Job{Name: "", Function: "getNewTickets", Schedule: "* * * * *"})
	assert.Error(t, err)

	require.NoError(t, s.Add(Job{Name: "b", Function: "getUpdatedTickets", Schedule: "@every 1m"}))
	require.NoError(t, s.Add(Job{Name: "a", Function: "getNewTickets", Schedule: "* * * * *"}))
	assert.Error(t, s.Add(Job{Name: "a", Function: "getNewTickets", Schedule: "* * * * *"}))

	jobs := s.Jobs()
	require.Len(t, jobs, 2)
	assert.Equal(t, "a", jobs[0].Name)
	assert.Equal(t, "b", jobs[1].Name)
}

func TestJobsFromConfig(t *testing.T) {
	jobs, err := JobsFromConfig([]config.JobConfig{
		{
			Function: "getNewTickets",
			Schedule: "*/5 * * * *",
			Cfg: map[string]interface{}{
				"baseUrl":         "https://otrs.example.com",
				"username":        "agent",
				"password":        "secret",
				"limit":           10,
				"queues":          "Raw, Junk",
				"includeArticles": "first",
				"startDateTime":   "2020-01-01 00:00:00",
			},
		},
		{Name: "updated", Function: "getUpdatedTickets", Schedule: "@hourly"},
	})
	require.NoError(t, err)
	require.Len(t, jobs, 2)

	assert.Equal(t, "getNewTickets", jobs[0].Name)
	assert.Equal(t, "https://otrs.example.com", jobs[0].Cfg.BaseURL)
	assert.Equal(t, "agent", jobs[0].Cfg.Username)
	assert.Equal(t, "Raw, Junk", jobs[0].Cfg.Queues)
	assert.Equal(t, models.ArticlesFirst, jobs[0].Cfg.IncludeArticles)
	assert.Equal(t, models.FlexString("10"), jobs[0].Cfg.Limit)
	assert.Equal(t, "agent", jobs[0].Cfg.Credentials().User)
	assert.Equal(t, "2020-01-01 00:00:00", jobs[0].Cfg.StartDateTime)

	assert.Equal(t, "updated", jobs[1].Name)
	assert.Empty(t, jobs[1].Cfg.BaseURL)
}
