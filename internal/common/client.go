package common

import (
	"context"
	"fmt"

	"trpc.group/trpc-go/trpc-a2a-go/client"
	"trpc.group/trpc-go/trpc-a2a-go/protocol"

	"github.com/tuannvm/otrs-connector/internal/config"
	log "github.com/tuannvm/otrs-connector/internal/logging"
	"github.com/tuannvm/otrs-connector/internal/platform"
)

// SetupA2AClient creates and configures an A2A client with appropriate authentication
func SetupA2AClient(cfg *config.Config, targetURL string) (*client.A2AClient, error) {
	var a2aClient *client.A2AClient
	var err error

	switch cfg.AuthType {
	case "jwt":
		log.Infof("Using JWT authentication for A2A client")
		a2aClient, err = client.NewA2AClient(targetURL)
	case "apikey":
		log.Infof("Using API key authentication for A2A client (API key length: %d)", len(cfg.APIKey))
		a2aClient, err = client.NewA2AClient(targetURL, client.WithAPIKeyAuth(cfg.APIKey, "X-API-Key"))
	default:
		log.Warnf("No authentication configured for A2A client")
		a2aClient, err = client.NewA2AClient(targetURL)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to create A2A client: %w", err)
	}

	return a2aClient, nil
}

// SendTask synchronously sends a task via JSON-RPC and returns the consolidated Message.
func SendTask(ctx context.Context, a2aClient *client.A2AClient, params protocol.SendTaskParams) (protocol.Message, error) {
	task, err := a2aClient.SendTasks(ctx, params)
	if err != nil {
		return protocol.Message{}, fmt.Errorf("SendTasks RPC failed: %w", err)
	}
	var parts []protocol.Part
	for _, art := range task.Artifacts {
		parts = append(parts, art.Parts...)
	}
	return protocol.Message{Parts: parts}, nil
}

// SendInvocation asks a remote connector agent to run inv and returns the task
// as the agent left it.
func SendInvocation(ctx context.Context, a2aClient *client.A2AClient, inv platform.Invocation) (*protocol.Task, error) {
	msg, err := InvocationMessage(inv)
	if err != nil {
		return nil, err
	}
	task, err := a2aClient.SendTasks(ctx, protocol.SendTaskParams{Message: msg})
	if err != nil {
		return nil, fmt.Errorf("SendTasks RPC failed: %w", err)
	}
	return task, nil
}

// NewA2AForwarder passes every message a scheduled job emits to a downstream
// agent as its own task.
func NewA2AForwarder(a2aClient *client.A2AClient) func(ctx context.Context, job string, msg platform.Message) error {
	return func(ctx context.Context, job string, msg platform.Message) error {
		message := protocol.Message{
			Parts: []protocol.Part{&protocol.DataPart{
				Type: "data",
				Data: msg.Body,
				Metadata: map[string]interface{}{
					"content-type": "application/json",
					"job":          job,
					"messageId":    msg.ID,
				},
			}},
		}
		task, err := a2aClient.SendTasks(ctx, protocol.SendTaskParams{Message: message})
		if err != nil {
			return fmt.Errorf("failed to forward message %s: %w", msg.ID, err)
		}
		log.Debugf("Forwarded message %s of job %s as task %s", msg.ID, job, task.ID)
		return nil
	}
}
