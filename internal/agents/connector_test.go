package agents

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"trpc.group/trpc-go/trpc-a2a-go/protocol"

	"github.com/tuannvm/otrs-connector/internal/actions"
	"github.com/tuannvm/otrs-connector/internal/common"
	"github.com/tuannvm/otrs-connector/internal/config"
	"github.com/tuannvm/otrs-connector/internal/models"
	"github.com/tuannvm/otrs-connector/internal/otrs/otrstest"
	"github.com/tuannvm/otrs-connector/internal/platform"
)

type fakeHandle struct {
	states    []protocol.TaskState
	last      *protocol.Message
	artifacts []protocol.Artifact
}

func (h *fakeHandle) UpdateStatus(state protocol.TaskState, msg *protocol.Message) error {
	h.states = append(h.states, state)
	if msg != nil {
		h.last = msg
	}
	return nil
}

func (h *fakeHandle) AddArtifact(artifact protocol.Artifact) error {
	h.artifacts = append(h.artifacts, artifact)
	return nil
}

func setupAgent(t *testing.T) (*ConnectorAgent, *otrstest.Server) {
	t.Helper()
	srv := otrstest.NewServer("agent", "pw")
	t.Cleanup(srv.Close)

	cfg := &config.Config{OTRSBaseURL: srv.BaseURL(), OTRSUser: "agent", OTRSPassword: "pw"}
	registry := actions.NewRegistry(actions.NewClientFactory(otrstest.NewStorage(), 5*time.Second))
	return NewConnectorAgent(cfg, registry), srv
}

func invocationMessage(t *testing.T, body string) protocol.Message {
	t.Helper()
	var data map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(body), &data))
	return protocol.Message{Parts: []protocol.Part{&protocol.DataPart{Type: "data", Data: data}}}
}

func TestProcessTrigger(t *testing.T) {
	agent, srv := setupAgent(t)
	for _, id := range []models.ID{1, 2} {
		srv.AddTicket(models.Ticket{TicketID: id, Created: "2020-01-01 10:00:00", Changed: "2020-01-01 10:00:00"})
	}
	srv.SearchFunc = func(filters map[string]interface{}) []models.ID {
		if _, sameInstant := filters["TicketCreateTimeOlderDate"]; sameInstant {
			return nil
		}
		return []models.ID{1, 2}
	}

	handle := &fakeHandle{}
	msg := invocationMessage(t, `{"function":"getNewTickets","cfg":{"startDateTime":"2020-01-01 00:00:00"}}`)
	require.NoError(t, agent.process(context.Background(), "task-1", msg, handle))

	assert.Equal(t, []protocol.TaskState{"working", "completed"}, handle.states)

	data, err := common.ArtifactData(handle.artifacts, artifactData)
	require.NoError(t, err)
	require.Len(t, data, 2)
	var first map[string]map[string]interface{}
	require.NoError(t, json.Unmarshal(data[0], &first))
	assert.Equal(t, float64(1), first["ticket"]["TicketID"])
	assert.Equal(t, "2020-01-01 00:00:00", first["meta"]["startDateTime"])

	snap, err := common.ArtifactData(handle.artifacts, artifactSnapshot)
	require.NoError(t, err)
	require.Len(t, snap, 1)
	assert.JSONEq(t, `{"lastProcessedTicketId":2,"lastProcessedTicketDate":"2020-01-01 10:00:00"}`, string(snap[0]))
}

func TestProcessFailures(t *testing.T) {
	agent, _ := setupAgent(t)

	handle := &fakeHandle{}
	msg := protocol.Message{Parts: []protocol.Part{&protocol.TextPart{Text: "hello"}}}
	require.NoError(t, agent.process(context.Background(), "task-2", msg, handle))
	assert.Equal(t, []protocol.TaskState{"failed"}, handle.states)

	handle = &fakeHandle{}
	msg = invocationMessage(t, `{"function":"updateTicket","body":{"Ticket":{"Title":"x"}}}`)
	require.NoError(t, agent.process(context.Background(), "task-3", msg, handle))
	assert.Equal(t, []protocol.TaskState{"working", "failed"}, handle.states)
	assert.Empty(t, handle.artifacts)
	require.NotNil(t, handle.last)
}

func TestRunFillsDefaultCredentials(t *testing.T) {
	agent, srv := setupAgent(t)

	rec, err := agent.Run(context.Background(), platform.Invocation{Function: actions.VerifyCredentials})
	require.NoError(t, err)
	require.Len(t, rec.Data(), 1)

	requests := srv.Requests()
	require.NotEmpty(t, requests)
	assert.Equal(t, "agent", requests[0].Query.Get("UserLogin"))
}

func TestHandleInvoke(t *testing.T) {
	agent, _ := setupAgent(t)
	provider, err := common.NewAuthProvider("apikey", "", "s3cret")
	require.NoError(t, err)
	handler := agent.Routes(provider)

	post := func(body, key string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/invoke", strings.NewReader(body))
		if key != "" {
			req.Header.Set("X-API-Key", key)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	rec := post(`{"function":"createTicket","body":{"Ticket":{"Title":"Printer"},"Article":{"Subject":"s","Body":"b"}}}`, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = post(`{"function":"createTicket","body":{"Ticket":{"Title":"Printer"},"Article":{"Subject":"s","Body":"b"}}}`, "s3cret")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp InvokeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 1)
	assert.Contains(t, string(resp.Data[0]), "TicketNumber")
	assert.Nil(t, resp.Snapshot)
	assert.Empty(t, resp.Error)

	rec = post(`{"function":"deleteTicket"}`, "s3cret")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = post(`not json`, "s3cret")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	hrec := httptest.NewRecorder()
	handler.ServeHTTP(hrec, req)
	assert.Equal(t, http.StatusOK, hrec.Code)
}

func TestSkills(t *testing.T) {
	skills := Skills([]string{actions.CreateTicket, actions.GetNewTickets})
	require.Len(t, skills, 2)
	assert.Equal(t, actions.CreateTicket, skills[0].ID)
	assert.Contains(t, *skills[1].Description, "trigger")
}
