package platform

import (
	"context"
	"errors"
	"sync"

	"github.com/tuannvm/otrs-connector/internal/models"
)

// ErrStreamEnded is returned when emitting after End.
var ErrStreamEnded = errors.New("output stream already ended")

// Sink receives everything a connector function produces.
type Sink interface {
	// Emit hands one data message to the platform.
	Emit(ctx context.Context, msg Message) error
	// AdvanceCursor records the newest snapshot. Only the last one per run is kept.
	AdvanceCursor(ctx context.Context, cursor models.Cursor) error
	// Fail reports the run's error. Only the first one is kept.
	Fail(err error)
}

// Recorder is an in-memory Sink. When Forward is set every emitted message is
// passed on before it is recorded; a Forward error fails the Emit.
type Recorder struct {
	Forward func(ctx context.Context, msg Message) error

	mu       sync.Mutex
	data     []Message
	snapshot *models.Cursor
	err      error
	ended    bool
}

func (r *Recorder) Emit(ctx context.Context, msg Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ended {
		return ErrStreamEnded
	}
	if r.Forward != nil {
		if err := r.Forward(ctx, msg); err != nil {
			return err
		}
	}
	r.data = append(r.data, msg)
	return nil
}

func (r *Recorder) AdvanceCursor(ctx context.Context, cursor models.Cursor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ended {
		return ErrStreamEnded
	}
	r.snapshot = &cursor
	return nil
}

func (r *Recorder) Fail(err error) {
	if err == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err == nil {
		r.err = err
	}
}

// End closes the stream.
func (r *Recorder) End() {
	r.mu.Lock()
	r.ended = true
	r.mu.Unlock()
}

// Data returns the emitted messages in order.
func (r *Recorder) Data() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.data...)
}

// Snapshot returns the last cursor, if any was emitted.
func (r *Recorder) Snapshot() (models.Cursor, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.snapshot == nil {
		return models.Cursor{}, false
	}
	return *r.snapshot, true
}

// Err returns the first reported error.
func (r *Recorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Ended reports whether End was called.
func (r *Recorder) Ended() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ended
}
