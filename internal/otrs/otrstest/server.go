// Package otrstest provides an in-process fake of the OTRS GenericInterface
// ticket web service for tests.
package otrstest

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"sync"

	"github.com/tuannvm/otrs-connector/internal/models"
)

const basePath = "/otrs/nph-genericinterface.pl/Webservice/ws1"

// Request is a call the fake received.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   map[string]interface{}
}

// Server is a fake OTRS web service. Search results come from SearchFunc
// when set, otherwise every stored ticket id is returned in ascending order.
type Server struct {
	*httptest.Server

	User     string
	Password string

	// SearchFunc answers TicketSearch with the decoded request body.
	SearchFunc func(filters map[string]interface{}) []models.ID
	// FailGet makes TicketGet answer 500 when it returns true.
	FailGet func(ids []string) bool

	mu       sync.Mutex
	tickets  map[models.ID]models.Ticket
	requests []Request
	nextID   models.ID
}

// NewServer starts a fake accepting the given agent credentials.
func NewServer(user, password string) *Server {
	s := &Server{
		User:     user,
		Password: password,
		tickets:  map[models.ID]models.Ticket{},
		nextID:   1000,
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

// BaseURL is the web service URL to configure clients with.
func (s *Server) BaseURL() string {
	return s.URL + basePath
}

// Creds returns working credentials for the fake.
func (s *Server) Creds() models.Credentials {
	return models.Credentials{BaseURL: s.BaseURL(), User: s.User, Password: s.Password}
}

// AddTicket stores a ticket returned by TicketGet.
func (s *Server) AddTicket(t models.Ticket) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tickets[t.TicketID] = t
}

// Requests returns the calls received so far.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// RequestsTo returns the calls with the given method and path prefix, e.g. "POST", "/Tickets".
func (s *Server) RequestsTo(method, path string) []Request {
	var out []Request
	for _, r := range s.Requests() {
		if r.Method == method && strings.HasPrefix(r.Path, path) {
			out = append(out, r)
		}
	}
	return out
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, basePath)
	var body map[string]interface{}
	if data, _ := io.ReadAll(r.Body); len(data) > 0 {
		_ = json.Unmarshal(data, &body)
	}

	s.mu.Lock()
	s.requests = append(s.requests, Request{Method: r.Method, Path: path, Query: r.URL.Query(), Body: body})
	s.mu.Unlock()

	q := r.URL.Query()
	if q.Get("UserLogin") != s.User || q.Get("Password") != s.Password {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"Error": map[string]string{
				"ErrorCode":    "TicketSearch.AuthFail",
				"ErrorMessage": "TicketSearch: Authorization failing!",
			},
		})
		return
	}

	switch {
	case r.Method == http.MethodPost && path == "/Tickets":
		s.search(w, body)
	case r.Method == http.MethodPost && path == "/Ticket":
		s.create(w, body)
	case r.Method == http.MethodPatch && strings.HasPrefix(path, "/Ticket/"):
		s.update(w, strings.TrimPrefix(path, "/Ticket/"))
	case r.Method == http.MethodGet && strings.HasPrefix(path, "/Ticket/"):
		s.get(w, strings.Split(strings.TrimPrefix(path, "/Ticket/"), ","))
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) search(w http.ResponseWriter, filters map[string]interface{}) {
	var ids []models.ID
	if s.SearchFunc != nil {
		ids = s.SearchFunc(filters)
	} else {
		s.mu.Lock()
		for id := range s.tickets {
			ids = append(ids, id)
		}
		s.mu.Unlock()
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	}
	if len(ids) == 0 {
		writeJSON(w, http.StatusOK, map[string]interface{}{})
		return
	}
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"TicketID": out})
}

func (s *Server) create(w http.ResponseWriter, body map[string]interface{}) {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"TicketID":     id.String(),
		"TicketNumber": "2020010110000" + id.String(),
		"ArticleID":    (id + 1).String(),
	})
}

func (s *Server) update(w http.ResponseWriter, rawID string) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"TicketID":  rawID,
		"ArticleID": "77",
	})
}

func (s *Server) get(w http.ResponseWriter, rawIDs []string) {
	if s.FailGet != nil && s.FailGet(rawIDs) {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	s.mu.Lock()
	var tickets []models.Ticket
	for _, raw := range rawIDs {
		id, err := models.ParseID(raw)
		if err != nil {
			continue
		}
		if t, ok := s.tickets[id]; ok {
			tickets = append(tickets, t)
		}
	}
	s.mu.Unlock()
	// OTRS does not promise request order.
	sort.Slice(tickets, func(i, j int) bool { return tickets[i].TicketID > tickets[j].TicketID })
	writeJSON(w, http.StatusOK, map[string]interface{}{"Ticket": tickets})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
