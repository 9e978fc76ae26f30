package actions

import (
	"context"
	"encoding/json"

	"github.com/tuannvm/otrs-connector/internal/models"
	"github.com/tuannvm/otrs-connector/internal/platform"
	"github.com/tuannvm/otrs-connector/internal/poller"
)

func pollerField(name string) poller.Field {
	if name == GetUpdatedTickets {
		return poller.ChangeTime
	}
	return poller.CreateTime
}

// pollTickets returns a trigger that runs one poll cycle from the snapshot.
// Configuration is checked before any client is created.
func (r *Registry) pollTickets(field poller.Field) platform.Function {
	return func(ctx context.Context, _ platform.Message, cfg models.StepConfig, snapshot json.RawMessage, out platform.Sink) error {
		opts, err := poller.OptionsFromConfig(field, cfg)
		if err != nil {
			return err
		}
		if err := opts.Validate(); err != nil {
			return err
		}
		cursor, err := models.ParseCursor(snapshot)
		if err != nil {
			return err
		}
		client, err := r.client(cfg)
		if err != nil {
			return err
		}
		return poller.New(client, opts).Run(ctx, cursor, out)
	}
}

// forEach emits every element of body.list. A single value is one element;
// a missing list is none.
func forEach(ctx context.Context, msg platform.Message, _ models.StepConfig, _ json.RawMessage, out platform.Sink) error {
	var body struct {
		List models.Seq[json.RawMessage] `json:"list"`
	}
	if err := msg.Decode(&body); err != nil {
		return err
	}
	for _, item := range body.List {
		if err := emit(ctx, out, item); err != nil {
			return err
		}
	}
	return nil
}
