// Package rentaly is the Go SDK for the Rentaly storefront contact-support
// service.
//
// It covers the conversation REST surface and the realtime support channel:
// connection lifecycle, room membership, typing presence, notifications and
// a reconciler that folds fetched state and pushed events together.
//
// Example:
//
//	client := rentaly.NewClient(token, rentaly.WithBaseURL("https://api.rentaly.example"))
//	list, _ := client.Contacts().List(ctx, &rentaly.ListOptions{Status: rentaly.StatusPending})
//
//	session := rentaly.NewSession(client, rentaly.Config{Role: rentaly.RoleUser})
//	defer session.Close()
//	session.Start(ctx)
//	session.Rooms.JoinConversation(ctx, list.Contacts[0].ID)
package rentaly

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	DefaultBaseURL = "http://localhost:5000"
	DefaultTimeout = 30 * time.Second
)

// ============================================================================
// Client
// ============================================================================

// Client talks to the storefront API on behalf of one bearer token.
type Client struct {
	token      string
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
	metrics    *Metrics
	contacts   *ContactsClient
}

type ClientOption func(*Client)

func WithBaseURL(u string) ClientOption {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) { c.httpClient.Timeout = timeout }
}

func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = client }
}

func WithLogger(logger *zap.Logger) ClientOption {
	return func(c *Client) { c.logger = logger }
}

func WithMetrics(m *Metrics) ClientOption {
	return func(c *Client) { c.metrics = m }
}

// NewClient creates a client. token may be empty for anonymous calls such as
// opening a conversation from the public contact form.
func NewClient(token string, opts ...ClientOption) *Client {
	c := &Client{
		token:   token,
		baseURL: DefaultBaseURL,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.Named("api")
	c.contacts = &ContactsClient{c: c}
	return c
}

// SetToken replaces the bearer token, e.g. after login.
func (c *Client) SetToken(token string) {
	c.token = token
}

// Token returns the bearer token.
func (c *Client) Token() string { return c.token }

// BaseURL returns the API base URL.
func (c *Client) BaseURL() string { return c.baseURL }

// Contacts returns the conversation sub-client.
func (c *Client) Contacts() *ContactsClient {
	return c.contacts
}

// SocketURL returns the realtime endpoint for the client's token.
func (c *Client) SocketURL() string {
	return SocketURL(c.baseURL, c.token)
}

// ============================================================================
// Internal request helper
// ============================================================================

func (c *Client) doRequest(ctx context.Context, method, path string, body any, query url.Values) (*Envelope, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var bodyReader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, errors.Wrap(err, "marshal request")
		}
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, bodyReader)
	if err != nil {
		return nil, errors.Wrap(err, "create request")
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.observeRequest(method, 0, started)
		return nil, WrapError(ErrorRequestFailed, method+" "+path, err)
	}
	defer resp.Body.Close()
	c.metrics.observeRequest(method, resp.StatusCode, started)

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, WrapError(ErrorRequestFailed, "read response", err)
	}
	c.logger.Debug("request", zap.String("method", method), zap.String("path", path),
		zap.Int("status", resp.StatusCode), zap.Duration("took", time.Since(started)))

	env, decodeErr := decodeJSON[Envelope](data)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		if decodeErr == nil && env.Message != "" {
			apiErr.Message = env.Message
			apiErr.Code = env.Code
		}
		return nil, errors.Wrapf(apiErr, "%s %s", method, path)
	}
	if decodeErr != nil {
		return nil, decodeErr
	}
	if !env.Success {
		return nil, errors.Wrapf(&APIError{Status: resp.StatusCode, Code: env.Code, Message: env.Message}, "%s %s", method, path)
	}
	return env, nil
}

func decodeJSON[T any](data []byte) (*T, error) {
	var result T
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, WrapError(ErrorDecode, "unmarshal response", err)
	}
	return &result, nil
}

// ============================================================================
// Contacts API
// ============================================================================

// ContactsClient covers the /api/contacts endpoints.
type ContactsClient struct{ c *Client }

// List fetches one page of conversations.
func (cc *ContactsClient) List(ctx context.Context, opts *ListOptions) (*ContactList, error) {
	q := url.Values{}
	if opts != nil {
		if opts.Status != "" {
			q.Set("status", string(opts.Status))
		}
		if opts.Priority != "" {
			q.Set("priority", string(opts.Priority))
		}
		if opts.Search != "" {
			q.Set("search", opts.Search)
		}
		if opts.Page > 0 {
			q.Set("page", strconv.Itoa(opts.Page))
		}
		if opts.Limit > 0 {
			q.Set("limit", strconv.Itoa(opts.Limit))
		}
	}
	env, err := cc.c.doRequest(ctx, http.MethodGet, "/api/contacts", nil, q)
	if err != nil {
		return nil, err
	}

	list := &ContactList{Pagination: env.Pagination}
	if err := env.Decode(&list.Contacts); err != nil {
		// Some deployments nest the page under data.
		var nested ContactList
		if nerr := env.Decode(&nested); nerr != nil {
			return nil, WrapError(ErrorDecode, "contact list", err)
		}
		list.Contacts = nested.Contacts
		if list.Pagination == nil {
			list.Pagination = nested.Pagination
		}
	}
	return list, nil
}

// Get fetches one conversation with its full response thread.
func (cc *ContactsClient) Get(ctx context.Context, id string) (*Contact, error) {
	if strings.TrimSpace(id) == "" {
		return nil, invalidInput("get: empty contact id")
	}
	env, err := cc.c.doRequest(ctx, http.MethodGet, "/api/contacts/"+url.PathEscape(id), nil, nil)
	if err != nil {
		return nil, err
	}
	return decodeContact(env)
}

// Respond posts a response message to a conversation.
func (cc *ContactsClient) Respond(ctx context.Context, id, message string) (*RespondResult, error) {
	if strings.TrimSpace(id) == "" {
		return nil, invalidInput("respond: empty contact id")
	}
	if strings.TrimSpace(message) == "" {
		return nil, invalidInput("respond: empty message")
	}
	env, err := cc.c.doRequest(ctx, http.MethodPost, "/api/contacts/"+url.PathEscape(id)+"/responses",
		map[string]string{"message": message}, nil)
	if err != nil {
		return nil, err
	}
	contact, err := decodeContact(env)
	if err != nil {
		return nil, err
	}
	result := &RespondResult{Contact: contact}
	if n := len(contact.Responses); n > 0 {
		result.Response = contact.Responses[n-1]
	}
	return result, nil
}

// Create opens a new conversation.
func (cc *ContactsClient) Create(ctx context.Context, opts *CreateContactOptions) (*Contact, error) {
	if opts == nil || strings.TrimSpace(opts.Subject) == "" || strings.TrimSpace(opts.Message) == "" {
		return nil, invalidInput("create: subject and message are required")
	}
	env, err := cc.c.doRequest(ctx, http.MethodPost, "/api/contacts", opts, nil)
	if err != nil {
		return nil, err
	}
	return decodeContact(env)
}

// Update changes status, priority or subject of a conversation.
func (cc *ContactsClient) Update(ctx context.Context, id string, opts *UpdateContactOptions) (*Contact, error) {
	if strings.TrimSpace(id) == "" {
		return nil, invalidInput("update: empty contact id")
	}
	if opts == nil || (opts.Status == "" && opts.Priority == "" && opts.Subject == "") {
		return nil, invalidInput("update: nothing to change")
	}
	if opts.Status != "" && !opts.Status.Valid() {
		return nil, invalidInput("update: unknown status %q", opts.Status)
	}
	env, err := cc.c.doRequest(ctx, http.MethodPatch, "/api/contacts/"+url.PathEscape(id), opts, nil)
	if err != nil {
		return nil, err
	}
	return decodeContact(env)
}

// Delete removes a conversation.
func (cc *ContactsClient) Delete(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return invalidInput("delete: empty contact id")
	}
	_, err := cc.c.doRequest(ctx, http.MethodDelete, "/api/contacts/"+url.PathEscape(id), nil, nil)
	return err
}

func decodeContact(env *Envelope) (*Contact, error) {
	var ct Contact
	if err := env.Decode(&ct); err != nil {
		return nil, WrapError(ErrorDecode, "contact", err)
	}
	return &ct, nil
}
