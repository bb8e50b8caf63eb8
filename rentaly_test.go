package rentaly

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// fakeAPI is an in-memory /api/contacts backend.
type fakeAPI struct {
	mu       sync.Mutex
	contacts map[string]*Contact
	hits     []string
	failNext int
	lastAuth string
	seq      int
}

func newFakeAPI(contacts ...Contact) *fakeAPI {
	a := &fakeAPI{contacts: make(map[string]*Contact)}
	for i := range contacts {
		c := contacts[i]
		a.contacts[c.ID] = &c
	}
	return a
}

func (a *fakeAPI) Hits() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.hits...)
}

func (a *fakeAPI) Auth() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastAuth
}

func (a *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.hits = append(a.hits, r.Method+" "+r.URL.Path)
	a.lastAuth = r.Header.Get("Authorization")

	if a.failNext > 0 {
		a.failNext--
		writeEnvelope(w, http.StatusInternalServerError, map[string]any{"success": false, "message": "database unavailable"})
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/contacts")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	id := parts[0]

	switch {
	case r.Method == http.MethodGet && id == "":
		var list []Contact
		status := r.URL.Query().Get("status")
		for _, c := range a.contacts {
			if status == "" || string(c.Status) == status {
				list = append(list, *c)
			}
		}
		writeEnvelope(w, http.StatusOK, map[string]any{
			"success":    true,
			"data":       list,
			"pagination": Pagination{Page: 1, Limit: 20, Total: len(list), TotalPages: 1},
		})
	case r.Method == http.MethodPost && id == "":
		var opts CreateContactOptions
		json.NewDecoder(r.Body).Decode(&opts)
		a.seq++
		c := &Contact{ID: "new-" + string(rune('0'+a.seq)), Subject: opts.Subject, Message: opts.Message, Status: StatusPending}
		a.contacts[c.ID] = c
		writeEnvelope(w, http.StatusCreated, map[string]any{"success": true, "data": c})
	case a.contacts[id] == nil:
		writeEnvelope(w, http.StatusNotFound, map[string]any{"success": false, "message": "Contact not found"})
	case r.Method == http.MethodGet:
		writeEnvelope(w, http.StatusOK, map[string]any{"success": true, "data": a.contacts[id]})
	case r.Method == http.MethodPost && len(parts) == 2 && parts[1] == "responses":
		var body struct {
			Message string `json:"message"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		c := a.contacts[id]
		a.seq++
		c.Responses = append(c.Responses, Response{
			ID:      "r-srv-" + string(rune('0'+a.seq)),
			Message: body.Message,
			SentBy:  SentByUser,
			SentAt:  time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC),
		})
		writeEnvelope(w, http.StatusOK, map[string]any{"success": true, "data": c})
	case r.Method == http.MethodPatch:
		var opts UpdateContactOptions
		json.NewDecoder(r.Body).Decode(&opts)
		c := a.contacts[id]
		if opts.Status != "" {
			c.Status = opts.Status
		}
		if opts.Priority != "" {
			c.Priority = opts.Priority
		}
		writeEnvelope(w, http.StatusOK, map[string]any{"success": true, "data": c})
	case r.Method == http.MethodDelete:
		delete(a.contacts, id)
		writeEnvelope(w, http.StatusOK, map[string]any{"success": true, "message": "deleted"})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func writeEnvelope(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func sampleContact(id string, status ContactStatus) Contact {
	return Contact{
		ID:        id,
		Name:      "Ada",
		Email:     "ada@example.com",
		Subject:   "Tent rental",
		Message:   "Is the 4-person tent available?",
		Status:    status,
		Priority:  PriorityMedium,
		CreatedAt: time.Date(2026, 2, 28, 10, 0, 0, 0, time.UTC),
		Responses: []Response{
			{ID: "r1", Message: "Yes it is", SentBy: SentByAdmin, SentAt: time.Date(2026, 2, 28, 11, 0, 0, 0, time.UTC)},
		},
	}
}

func newTestClient(t *testing.T, api http.Handler, opts ...ClientOption) *Client {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	return NewClient("test-token", append([]ClientOption{WithBaseURL(srv.URL)}, opts...)...)
}

func TestContactsList(t *testing.T) {
	queries := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		queries <- r.URL.RawQuery
		if r.Header.Get("Authorization") != "Bearer test-token" {
			t.Errorf("Authorization = %q", r.Header.Get("Authorization"))
		}
		writeEnvelope(w, http.StatusOK, map[string]any{
			"success":    true,
			"data":       []Contact{sampleContact("c1", StatusPending)},
			"pagination": Pagination{Page: 2, Limit: 5, Total: 6, TotalPages: 2},
		})
	}))
	defer srv.Close()
	client := NewClient("test-token", WithBaseURL(srv.URL+"/"))

	list, err := client.Contacts().List(context.Background(), &ListOptions{
		Status: StatusInProgress, Priority: PriorityHigh, Search: "tent poles", Page: 2, Limit: 5,
	})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	want := "limit=5&page=2&priority=high&search=tent+poles&status=in-progress"
	if query := <-queries; query != want {
		t.Fatalf("query = %q, want %q", query, want)
	}
	if len(list.Contacts) != 1 || list.Contacts[0].ID != "c1" {
		t.Fatalf("contacts = %+v", list.Contacts)
	}
	if list.Pagination == nil || list.Pagination.Total != 6 {
		t.Fatalf("pagination = %+v", list.Pagination)
	}
}

func TestContactsListNested(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"success":true,"data":{"contacts":[{"_id":"c7","subject":"s","message":"m","status":"closed","responses":[]}],"pagination":{"page":1,"limit":10,"total":1,"totalPages":1}}}`)
	}))

	list, err := client.Contacts().List(context.Background(), nil)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list.Contacts) != 1 || list.Contacts[0].Status != StatusClosed || list.Pagination.Total != 1 {
		t.Fatalf("list = %+v", list)
	}
}

func TestContactsCRUD(t *testing.T) {
	api := newFakeAPI(sampleContact("c1", StatusPending))
	client := newTestClient(t, api)
	ctx := context.Background()

	t.Run("get", func(t *testing.T) {
		c, err := client.Contacts().Get(ctx, "c1")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if c.Subject != "Tent rental" || len(c.Responses) != 1 || c.Responses[0].SentBy != SentByAdmin {
			t.Fatalf("contact = %+v", c)
		}
		if auth := api.Auth(); auth != "Bearer test-token" {
			t.Fatalf("auth = %q", auth)
		}
	})

	t.Run("respond", func(t *testing.T) {
		res, err := client.Contacts().Respond(ctx, "c1", "Thanks!")
		if err != nil {
			t.Fatalf("Respond: %v", err)
		}
		if res.Response.Message != "Thanks!" || res.Response.ID == "" {
			t.Fatalf("response = %+v", res.Response)
		}
	})

	t.Run("create", func(t *testing.T) {
		c, err := client.Contacts().Create(ctx, &CreateContactOptions{Name: "Bo", Email: "bo@example.com", Subject: "Kayak", Message: "Price?"})
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		if c.ID == "" || c.Status != StatusPending {
			t.Fatalf("created = %+v", c)
		}
	})

	t.Run("update", func(t *testing.T) {
		c, err := client.Contacts().Update(ctx, "c1", &UpdateContactOptions{Status: StatusResolved, Priority: PriorityLow})
		if err != nil {
			t.Fatalf("Update: %v", err)
		}
		if c.Status != StatusResolved || c.Priority != PriorityLow {
			t.Fatalf("updated = %+v", c)
		}
	})

	t.Run("delete", func(t *testing.T) {
		if err := client.Contacts().Delete(ctx, "c1"); err != nil {
			t.Fatalf("Delete: %v", err)
		}
		_, err := client.Contacts().Get(ctx, "c1")
		var apiErr *APIError
		if !errors.As(err, &apiErr) || apiErr.Status != http.StatusNotFound || apiErr.Message != "Contact not found" {
			t.Fatalf("Get after delete = %v", err)
		}
		if CodeOf(err) != ErrorRequestFailed {
			t.Fatalf("code = %v", CodeOf(err))
		}
	})
}

func TestContactsInvalidInput(t *testing.T) {
	api := newFakeAPI()
	client := newTestClient(t, api)
	ctx := context.Background()

	checks := []error{
		func() error { _, err := client.Contacts().Get(ctx, ""); return err }(),
		func() error { _, err := client.Contacts().Respond(ctx, "c1", "  "); return err }(),
		func() error { _, err := client.Contacts().Create(ctx, &CreateContactOptions{Subject: "only"}); return err }(),
		func() error { _, err := client.Contacts().Update(ctx, "c1", &UpdateContactOptions{}); return err }(),
		func() error {
			_, err := client.Contacts().Update(ctx, "c1", &UpdateContactOptions{Status: "archived"})
			return err
		}(),
		client.Contacts().Delete(ctx, ""),
	}
	for i, err := range checks {
		if !errors.Is(err, ErrInvalidInput) {
			t.Errorf("check %d: err = %v, want invalid input", i, err)
		}
	}
	if hits := api.Hits(); len(hits) != 0 {
		t.Fatalf("invalid input reached the server: %v", hits)
	}
}

func TestRequestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	api := newFakeAPI(sampleContact("c1", StatusPending))
	client := newTestClient(t, api, WithMetrics(m))

	client.Contacts().Get(context.Background(), "c1")
	client.Contacts().Get(context.Background(), "missing")

	if n := testutil.CollectAndCount(m.HTTPRequestDuration); n != 2 {
		t.Fatalf("histogram series = %d, want 2 (200 and 404)", n)
	}
}
