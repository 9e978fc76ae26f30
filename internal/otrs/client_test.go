package otrs

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tuannvm/otrs-connector/internal/models"
	"github.com/tuannvm/otrs-connector/internal/otrs/otrstest"
)

func newTestClient(t *testing.T, srv *otrstest.Server, opts ...Option) *Client {
	t.Helper()
	client, err := NewClient(srv.Creds(), opts...)
	require.NoError(t, err)
	return client
}

func TestNewClientRequiresCredentials(t *testing.T) {
	tests := []struct {
		name  string
		creds models.Credentials
	}{
		{"missing host", models.Credentials{User: "u", Password: "p"}},
		{"missing user", models.Credentials{BaseURL: "https://otrs", Password: "p"}},
		{"missing password", models.Credentials{BaseURL: "https://otrs", User: "u"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewClient(tt.creds)
			assert.ErrorIs(t, err, ErrMissingCredentials)
		})
	}
}

func TestSearchTickets(t *testing.T) {
	srv := otrstest.NewServer("agent", "s3cret&pw")
	defer srv.Close()
	srv.SearchFunc = func(filters map[string]interface{}) []models.ID {
		if filters["TicketNumber"] == "0" {
			return nil
		}
		return []models.ID{101, 102}
	}
	client := newTestClient(t, srv)
	ctx := context.Background()

	ids, err := client.SearchTickets(ctx, SearchFilters{
		TicketCreateTimeNewerDate: "2020-01-01 10:00:01",
		SortBy:                    SortKeys{"Created", "TicketNumber"},
		OrderBy:                   SortKeys{"Up"},
		Limit:                     2,
		Queues:                    []string{"Raw"},
		Extra:                     map[string]interface{}{"StateType": "open"},
	})
	require.NoError(t, err)
	assert.Equal(t, []models.ID{101, 102}, ids)

	requests := srv.RequestsTo(http.MethodPost, "/Tickets")
	require.Len(t, requests, 1)
	body := requests[0].Body
	assert.Equal(t, []interface{}{"Created", "TicketNumber"}, body["SortBy"])
	assert.Equal(t, "Up", body["OrderBy"])
	assert.Equal(t, float64(2), body["Limit"])
	assert.Equal(t, []interface{}{"Raw"}, body["Queues"])
	assert.Equal(t, "open", body["StateType"])
	assert.NotContains(t, body, "TicketChangeTimeNewerDate")
	assert.Equal(t, "agent", requests[0].Query.Get("UserLogin"))
	assert.Equal(t, "s3cret&pw", requests[0].Query.Get("Password"))

	ids, err = client.SearchTickets(ctx, SearchFilters{TicketNumber: "0"})
	require.NoError(t, err)
	assert.NotNil(t, ids)
	assert.Empty(t, ids)
}

func TestGetTicketsKeepsRequestOrder(t *testing.T) {
	srv := otrstest.NewServer("agent", "pw")
	defer srv.Close()
	for _, id := range []models.ID{101, 102, 103} {
		srv.AddTicket(models.Ticket{TicketID: id, Created: "2020-01-01 10:00:00"})
	}
	client := newTestClient(t, srv)

	tickets, err := client.GetTickets(context.Background(), []models.ID{102, 101, 103, 999}, GetFilters{
		AllArticles:   true,
		ArticleLimit:  1,
		DynamicFields: true,
	})
	require.NoError(t, err)

	var got []models.ID
	for _, ticket := range tickets {
		got = append(got, ticket.TicketID)
	}
	assert.Equal(t, []models.ID{102, 101, 103}, got)

	requests := srv.RequestsTo(http.MethodGet, "/Ticket/")
	require.Len(t, requests, 1)
	assert.Equal(t, "/Ticket/102,101,103,999", requests[0].Path)
	assert.Equal(t, "1", requests[0].Query.Get("AllArticles"))
	assert.Equal(t, "1", requests[0].Query.Get("ArticleLimit"))
	assert.Equal(t, "1", requests[0].Query.Get("DynamicFields"))
	assert.Empty(t, requests[0].Query.Get("Attachments"))

	_, err = client.GetTicket(context.Background(), 999, GetFilters{})
	assert.Error(t, err)
}

func TestGetTicketsWithoutIDsMakesNoRequest(t *testing.T) {
	srv := otrstest.NewServer("agent", "pw")
	defer srv.Close()

	tickets, err := newTestClient(t, srv).GetTickets(context.Background(), nil, GetFilters{})
	require.NoError(t, err)
	assert.Empty(t, tickets)
	assert.Empty(t, srv.Requests())
}

func TestAPIErrorOnBadCredentials(t *testing.T) {
	srv := otrstest.NewServer("agent", "pw")
	defer srv.Close()

	creds := srv.Creds()
	creds.Password = "wrong"
	client, err := NewClient(creds)
	require.NoError(t, err)

	_, err = client.SearchTickets(context.Background(), SearchFilters{})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "TicketSearch.AuthFail", apiErr.Code)
}

func TestHTTPErrorRedactsPassword(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client, err := NewClient(models.Credentials{BaseURL: srv.URL + "/", User: "agent", Password: "topsecret"})
	require.NoError(t, err)

	_, err = client.GetTickets(context.Background(), []models.ID{1}, GetFilters{})
	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusInternalServerError, httpErr.StatusCode)
	assert.Equal(t, http.MethodGet, httpErr.Method)
	assert.True(t, strings.HasPrefix(httpErr.URL, srv.URL+"/Ticket/1?"))
	assert.NotContains(t, err.Error(), "topsecret")
	assert.Contains(t, httpErr.URL, "Password=%2A%2A%2A")
}

func TestCreateTicketNormalizesInput(t *testing.T) {
	srv := otrstest.NewServer("agent", "pw")
	defer srv.Close()
	storage := otrstest.NewStorage()
	storage.Put("https://storage.test/objects/report", []byte("report body"))
	client := newTestClient(t, srv, WithStorage(storage))

	result, err := client.CreateTicket(context.Background(), models.TicketRequest{
		Ticket: &models.Ticket{
			Title:        "Printer on fire",
			Other:        map[string]interface{}{"Queue": "Raw", "Service": "IT"},
			DynamicField: models.Seq[models.DynamicField]{{Name: "Severity", Value: "high"}},
		},
		Article: &models.Article{
			Subject: "help",
			Body:    "it burns",
			Attachment: models.Seq[models.Attachment]{
				{Filename: "report.txt", Content: "https://storage.test/objects/report"},
				{Filename: "inline.txt", Content: "aGk="},
			},
		},
		DynamicFieldOther: models.Seq[models.DynamicField]{{Name: "Origin", Value: "platform"}},
	})
	require.NoError(t, err)
	assert.NotZero(t, result.TicketID)
	assert.NotZero(t, result.ArticleID)

	requests := srv.RequestsTo(http.MethodPost, "/Ticket")
	require.Len(t, requests, 1)
	body := requests[0].Body

	ticket := body["Ticket"].(map[string]interface{})
	assert.Equal(t, "Raw", ticket["Queue"])
	assert.Equal(t, "IT", ticket["Service"])
	assert.NotContains(t, ticket, "OTHER")
	assert.NotContains(t, ticket, "DynamicField")

	article := body["Article"].(map[string]interface{})
	assert.NotContains(t, article, "Attachment")

	attachments := body["Attachment"].([]interface{})
	require.Len(t, attachments, 2)
	first := attachments[0].(map[string]interface{})
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("report body")), first["Content"])
	assert.Equal(t, "aGk=", attachments[1].(map[string]interface{})["Content"])

	fields := body["DynamicField"].([]interface{})
	require.Len(t, fields, 2)
	assert.Equal(t, "Severity", fields[0].(map[string]interface{})["Name"])
	assert.Equal(t, "Origin", fields[1].(map[string]interface{})["Name"])
	assert.NotContains(t, body, "DynamicFieldOther")
}

func TestCreateTicketWithURLAttachmentNeedsStorage(t *testing.T) {
	srv := otrstest.NewServer("agent", "pw")
	defer srv.Close()

	_, err := newTestClient(t, srv).CreateTicket(context.Background(), models.TicketRequest{
		Attachment: models.Seq[models.Attachment]{{Filename: "a", Content: "https://storage.test/objects/1"}},
	})
	assert.Error(t, err)
	assert.Empty(t, srv.Requests())
}

func TestAddArticleIsTicketUpdate(t *testing.T) {
	srv := otrstest.NewServer("agent", "pw")
	defer srv.Close()
	client := newTestClient(t, srv)

	result, err := client.AddArticle(context.Background(), 42, models.Article{
		Subject:    "note",
		Body:       "more info",
		Attachment: models.Seq[models.Attachment]{{Filename: "a.txt", Content: "YQ=="}},
	})
	require.NoError(t, err)
	assert.Equal(t, models.ID(42), result.TicketID)

	assert.Empty(t, srv.RequestsTo(http.MethodPost, "/Ticket"))
	requests := srv.RequestsTo(http.MethodPatch, "/Ticket/42")
	require.Len(t, requests, 1)
	body := requests[0].Body
	assert.NotContains(t, body, "Ticket")
	assert.Equal(t, "note", body["Article"].(map[string]interface{})["Subject"])
	assert.Len(t, body["Attachment"], 1)
}

func TestUploadAttachmentsToPlatform(t *testing.T) {
	srv := otrstest.NewServer("agent", "pw")
	defer srv.Close()
	storage := otrstest.NewStorage()
	client := newTestClient(t, srv, WithStorage(storage))

	ticket := &models.Ticket{
		TicketID: 1,
		Article: models.Seq[models.Article]{
			{ArticleID: 10, Attachment: models.Seq[models.Attachment]{{Filename: "a.txt", Content: base64.StdEncoding.EncodeToString([]byte("alpha"))}}},
			{ArticleID: 11},
			{ArticleID: 12, Attachment: models.Seq[models.Attachment]{{Filename: "b.txt", Content: base64.StdEncoding.EncodeToString([]byte("beta"))}}},
		},
	}
	require.NoError(t, client.UploadAttachmentsToPlatform(context.Background(), ticket))

	first := ticket.Article[0].Attachment[0].Content
	assert.Equal(t, "https://storage.test/objects/1", first)
	assert.Equal(t, "https://storage.test/objects/2", ticket.Article[2].Attachment[0].Content)

	data, err := storage.Download(context.Background(), first)
	require.NoError(t, err)
	assert.Equal(t, "alpha", string(data))
}

func TestUploadAttachmentsRejectsInvalidBase64(t *testing.T) {
	srv := otrstest.NewServer("agent", "pw")
	defer srv.Close()
	client := newTestClient(t, srv, WithStorage(otrstest.NewStorage()))

	ticket := &models.Ticket{Article: models.Seq[models.Article]{
		{ArticleID: 1, Attachment: models.Seq[models.Attachment]{{Filename: "x", Content: "%%%"}}},
	}}
	assert.Error(t, client.UploadAttachmentsToPlatform(context.Background(), ticket))
}

func TestVerify(t *testing.T) {
	srv := otrstest.NewServer("agent", "pw")
	defer srv.Close()

	require.NoError(t, Verify(context.Background(), srv.Creds()))

	requests := srv.RequestsTo(http.MethodPost, "/Tickets")
	require.Len(t, requests, 1)
	assert.Equal(t, "0", requests[0].Body["TicketNumber"])

	bad := srv.Creds()
	bad.Password = "nope"
	assert.Error(t, Verify(context.Background(), bad))

	assert.ErrorIs(t, Verify(context.Background(), models.Credentials{}), ErrMissingCredentials)
}

func TestWithTimeoutDoesNotShareClient(t *testing.T) {
	shared := &http.Client{}
	client, err := NewClient(models.Credentials{BaseURL: "https://otrs", User: "u", Password: "p"},
		WithHTTPClient(shared), WithTimeout(5e9))
	require.NoError(t, err)
	assert.Zero(t, shared.Timeout)
	assert.Equal(t, int64(5e9), int64(client.httpClient.Timeout))
}
