// Package agents exposes the OTRS connector to other agents over A2A and to
// plain HTTP callers.
package agents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"trpc.group/trpc-go/trpc-a2a-go/auth"
	"trpc.group/trpc-go/trpc-a2a-go/protocol"
	"trpc.group/trpc-go/trpc-a2a-go/server"
	"trpc.group/trpc-go/trpc-a2a-go/taskmanager"

	"github.com/tuannvm/otrs-connector/internal/actions"
	"github.com/tuannvm/otrs-connector/internal/common"
	"github.com/tuannvm/otrs-connector/internal/config"
	log "github.com/tuannvm/otrs-connector/internal/logging"
	"github.com/tuannvm/otrs-connector/internal/models"
	"github.com/tuannvm/otrs-connector/internal/platform"
)

const (
	artifactData     = "data"
	artifactSnapshot = "snapshot"

	maxInvokeBody = 10 << 20
)

// Invoker runs a connector function by name.
type Invoker interface {
	Invoke(ctx context.Context, inv platform.Invocation, rec *platform.Recorder) error
}

// taskHandle is the part of taskmanager.TaskHandle the agent uses.
type taskHandle interface {
	UpdateStatus(state protocol.TaskState, msg *protocol.Message) error
	AddArtifact(artifact protocol.Artifact) error
}

// InvokeResponse is the /invoke reply.
type InvokeResponse struct {
	Data     []json.RawMessage `json:"data"`
	Snapshot *models.Cursor    `json:"snapshot,omitempty"`
	Error    string            `json:"error,omitempty"`
}

// ConnectorAgent runs connector invocations received as A2A tasks or HTTP requests.
type ConnectorAgent struct {
	cfg     *config.Config
	invoker Invoker
}

// NewConnectorAgent creates a ConnectorAgent.
func NewConnectorAgent(cfg *config.Config, invoker Invoker) *ConnectorAgent {
	return &ConnectorAgent{cfg: cfg, invoker: invoker}
}

// Process implements the TaskProcessor interface
func (a *ConnectorAgent) Process(ctx context.Context, taskID string, msg protocol.Message, handle taskmanager.TaskHandle) error {
	return a.process(ctx, taskID, msg, handle)
}

func (a *ConnectorAgent) process(ctx context.Context, taskID string, msg protocol.Message, handle taskHandle) error {
	inv, err := common.ExtractInvocation(msg)
	if err != nil {
		log.Warnf("Task %s: %v", taskID, err)
		return a.finish(handle, protocol.TaskState("failed"), err.Error())
	}

	if err := handle.UpdateStatus(protocol.TaskState("working"), nil); err != nil {
		return fmt.Errorf("failed to update status: %w", err)
	}

	rec, runErr := a.Run(ctx, inv)

	for i, out := range rec.Data() {
		var data interface{}
		if err := json.Unmarshal(out.Body, &data); err != nil {
			log.Warnf("Task %s: skipping undecodable message %s: %v", taskID, out.ID, err)
			continue
		}
		artifact := protocol.Artifact{
			Name:        common.StringPtr(artifactData),
			Description: common.StringPtr(fmt.Sprintf("%s message %d", inv.Function, i+1)),
			Parts:       []protocol.Part{&protocol.DataPart{Type: "data", Data: data}},
			Metadata: map[string]interface{}{
				"messageId": out.ID,
				"headers":   out.Headers,
			},
		}
		if err := handle.AddArtifact(artifact); err != nil {
			log.Errorf("Task %s: failed to add artifact: %v", taskID, err)
		}
	}

	if cursor, ok := rec.Snapshot(); ok {
		artifact := protocol.Artifact{
			Name:        common.StringPtr(artifactSnapshot),
			Description: common.StringPtr("Trigger snapshot"),
			Parts: []protocol.Part{&protocol.DataPart{
				Type: "data",
				Data: map[string]interface{}{
					"lastProcessedTicketId":   int64(cursor.LastProcessedTicketID),
					"lastProcessedTicketDate": cursor.LastProcessedTicketDate,
				},
			}},
		}
		if err := handle.AddArtifact(artifact); err != nil {
			log.Errorf("Task %s: failed to add snapshot artifact: %v", taskID, err)
		}
	}

	if runErr != nil {
		return a.finish(handle, protocol.TaskState("failed"), runErr.Error())
	}
	return a.finish(handle, protocol.TaskState("completed"),
		fmt.Sprintf("%s emitted %d messages", inv.Function, len(rec.Data())))
}

func (a *ConnectorAgent) finish(handle taskHandle, state protocol.TaskState, text string) error {
	responseMsg := &protocol.Message{
		Parts: []protocol.Part{protocol.NewTextPart(text)},
	}
	if err := handle.UpdateStatus(state, responseMsg); err != nil {
		return fmt.Errorf("failed to update task status: %w", err)
	}
	return nil
}

// Run invokes inv, filling in the configured OTRS credentials when the
// invocation carries none.
func (a *ConnectorAgent) Run(ctx context.Context, inv platform.Invocation) (*platform.Recorder, error) {
	if inv.Cfg.BaseURL == "" && a.cfg != nil {
		inv.Cfg.BaseURL = a.cfg.OTRSBaseURL
		if inv.Cfg.User == "" && inv.Cfg.Username == "" {
			inv.Cfg.User = a.cfg.OTRSUser
		}
		if inv.Cfg.Password == "" {
			inv.Cfg.Password = a.cfg.OTRSPassword
		}
	}
	rec := &platform.Recorder{}
	err := a.invoker.Invoke(ctx, inv, rec)
	return rec, err
}

// HandleInvoke runs the invocation posted as JSON and replies with what it produced.
func (a *ConnectorAgent) HandleInvoke(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		common.ReturnJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxInvokeBody))
	if err != nil {
		common.ReturnJSONError(w, http.StatusBadRequest, "Failed to read request body")
		return
	}
	var inv platform.Invocation
	if err := json.Unmarshal(body, &inv); err != nil || inv.Function == "" {
		common.ReturnJSONError(w, http.StatusBadRequest, "Request must be an invocation with a function")
		return
	}

	start := time.Now()
	rec, runErr := a.Run(r.Context(), inv)

	resp := InvokeResponse{Data: []json.RawMessage{}}
	for _, msg := range rec.Data() {
		resp.Data = append(resp.Data, msg.Body)
	}
	if cursor, ok := rec.Snapshot(); ok {
		resp.Snapshot = &cursor
	}

	status := http.StatusOK
	if runErr != nil {
		resp.Error = runErr.Error()
		status = http.StatusUnprocessableEntity
		if errors.Is(runErr, actions.ErrUnknownFunction) {
			status = http.StatusNotFound
		}
	}
	log.Infow("invoke", "function", inv.Function, "status", status, "emitted", len(resp.Data), "elapsed", time.Since(start))
	common.WriteJSON(w, status, resp)
}

// Routes returns the plain HTTP surface: /invoke behind provider, plus
// /healthz and /metrics.
func (a *ConnectorAgent) Routes(provider auth.Provider) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/invoke", common.AuthMiddleware(provider, http.HandlerFunc(a.HandleInvoke)))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		common.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// Skills lists the connector functions for the agent card.
func Skills(names []string) []server.AgentSkill {
	skills := make([]server.AgentSkill, 0, len(names))
	for _, name := range names {
		kind := "action"
		if actions.IsTrigger(name) {
			kind = "trigger"
		}
		skills = append(skills, server.AgentSkill{
			ID:          name,
			Name:        name,
			Description: common.StringPtr(fmt.Sprintf("OTRS connector %s %s", kind, name)),
		})
	}
	return skills
}
