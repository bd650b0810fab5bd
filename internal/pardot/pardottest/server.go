// Package pardottest provides an in-memory Pardot and Salesforce identity
// server for tests. It records every request and can be told to fail a given
// operation.
package pardottest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
)

// Operation names, matching the pardot client.
const (
	OpToken          = "token"
	OpUpdateProspect = "update_prospect"
	OpBatchUpdate    = "batch_update"
	OpSendOneToOne   = "send_one_to_one"
	OpSendToList     = "send_to_list"
	OpCreateField    = "create_custom_field"
	OpDeleteField    = "delete_custom_field"
)

// DefaultToken is the access token handed out by the token endpoint.
const DefaultToken = "00D-test-token"

// Request is one recorded call.
type Request struct {
	Operation string
	Method    string
	Path      string
	// ID is the prospect or custom field id taken from the path, if any
	ID           string
	Version      string
	Form         url.Values
	Auth         string
	BusinessUnit string
}

// Failure makes an operation fail once it has succeeded After times.
type Failure struct {
	// Status is the HTTP status to answer with. 200 answers with stat "fail".
	Status int
	// Err is the Pardot error text
	Err   string
	After int
}

// Server is a fake Pardot API with a Salesforce token endpoint.
type Server struct {
	*httptest.Server

	mu          sync.Mutex
	requests    []Request
	failures    map[string]Failure
	calls       map[string]int
	nextFieldID int
	fields      map[string]string
}

// NewServer starts a fake server. It is closed when the test ends.
func NewServer(t interface{ Cleanup(func()) }) *Server {
	s := &Server{
		failures:    map[string]Failure{},
		calls:       map[string]int{},
		fields:      map[string]string{},
		nextFieldID: 1000,
	}
	r := chi.NewRouter()
	s.Routes(r)
	s.Server = httptest.NewServer(r)
	t.Cleanup(s.Close)
	return s
}

// Routes mounts the identity and Pardot routes.
func (s *Server) Routes(r chi.Router) {
	r.Post("/services/oauth2/token", s.token)

	r.Route("/api", func(r chi.Router) {
		r.Use(s.bearerAuth)
		r.Post("/customField/version/{v}/do/create", s.createField)
		r.Delete("/customField/version/{v}/do/delete/id/{id}", s.deleteField)
		r.Post("/prospect/version/{v}/do/update/id/{id}", s.handle(OpUpdateProspect))
		r.Post("/prospect/version/{v}/do/batchUpdate", s.handle(OpBatchUpdate))
		r.Post("/email/version/{v}/do/send/prospect_id/{id}", s.handle(OpSendOneToOne))
		r.Post("/email/version/{v}/do/send/", s.handle(OpSendToList))
	})
}

// Fail registers a failure for an operation.
func (s *Server) Fail(operation string, f Failure) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[operation] = f
}

// Requests returns every recorded request in arrival order.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Request, len(s.requests))
	copy(out, s.requests)
	return out
}

// RequestsFor returns the recorded requests of one operation.
func (s *Server) RequestsFor(operation string) []Request {
	var out []Request
	for _, r := range s.Requests() {
		if r.Operation == operation {
			out = append(out, r)
		}
	}
	return out
}

// Operations returns the operation names in arrival order.
func (s *Server) Operations() []string {
	reqs := s.Requests()
	out := make([]string, len(reqs))
	for i, r := range reqs {
		out[i] = r.Operation
	}
	return out
}

// Fields returns the custom fields currently defined, apiName to id.
func (s *Server) Fields() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.fields))
	for k, v := range s.fields {
		out[k] = v
	}
	return out
}

func (s *Server) bearerAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") || strings.TrimPrefix(auth, "Bearer ") == "" {
			writeJSON(w, http.StatusUnauthorized, failBody("Invalid API key or user key"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// record stores the request and reports the failure to answer with, if any.
func (s *Server) record(operation string, r *http.Request) (Failure, bool) {
	_ = r.ParseForm()
	form := url.Values{}
	for k, v := range r.PostForm {
		form[k] = v
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, Request{
		Operation:    operation,
		Method:       r.Method,
		Path:         r.URL.Path,
		ID:           chi.URLParam(r, "id"),
		Version:      chi.URLParam(r, "v"),
		Form:         form,
		Auth:         r.Header.Get("Authorization"),
		BusinessUnit: r.Header.Get("Pardot-Business-Unit-Id"),
	})
	f, ok := s.failures[operation]
	if ok && s.calls[operation] >= f.After {
		return f, true
	}
	s.calls[operation]++
	return Failure{}, false
}

func (s *Server) token(w http.ResponseWriter, r *http.Request) {
	if f, failed := s.record(OpToken, r); failed {
		writeJSON(w, f.Status, map[string]any{
			"error":             "invalid_grant",
			"error_description": f.Err,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"access_token": DefaultToken,
		"instance_url": s.URL,
		"token_type":   "Bearer",
	})
}

func (s *Server) handle(operation string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if f, failed := s.record(operation, r); failed {
			writeFailure(w, f)
			return
		}
		writeJSON(w, http.StatusOK, okBody(nil))
	}
}

func (s *Server) createField(w http.ResponseWriter, r *http.Request) {
	if f, failed := s.record(OpCreateField, r); failed {
		writeFailure(w, f)
		return
	}
	apiName := r.PostForm.Get("field_id")
	s.mu.Lock()
	s.nextFieldID++
	id := strconv.Itoa(s.nextFieldID)
	s.fields[apiName] = id
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, okBody(map[string]any{
		"customField": map[string]any{
			"id":       idNumber(id),
			"name":     r.PostForm.Get("name"),
			"field_id": apiName,
		},
	}))
}

func (s *Server) deleteField(w http.ResponseWriter, r *http.Request) {
	if f, failed := s.record(OpDeleteField, r); failed {
		writeFailure(w, f)
		return
	}
	id := chi.URLParam(r, "id")
	s.mu.Lock()
	for name, fid := range s.fields {
		if fid == id {
			delete(s.fields, name)
		}
	}
	s.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

// idNumber returns the id as a JSON number, the way Pardot does.
func idNumber(id string) int {
	n, _ := strconv.Atoi(id)
	return n
}

func writeFailure(w http.ResponseWriter, f Failure) {
	status := f.Status
	if status == 0 {
		status = http.StatusBadRequest
	}
	writeJSON(w, status, failBody(f.Err))
}

func okBody(extra map[string]any) map[string]any {
	body := map[string]any{
		"@attributes": map[string]any{"stat": "ok", "version": 1},
	}
	for k, v := range extra {
		body[k] = v
	}
	return body
}

func failBody(msg string) map[string]any {
	return map[string]any{
		"@attributes": map[string]any{"stat": "fail", "errorCode": 1},
		"err":         msg,
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
