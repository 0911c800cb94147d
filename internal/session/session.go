// Package session manages an authenticated conversation with a remote
// workflow service: login, token attachment, expiry detection and the
// refresh-and-retry loop around every request.
package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"strings"

	"github.com/mattjoyce/azkit/internal/errdefs"
	"github.com/mattjoyce/azkit/internal/log"
)

const (
	// CookieName carries the session token when it is not sent in the body.
	CookieName = "azkaban.browser.session.id"
	// FormField carries the session token when a request opts into UseBody.
	FormField = "session.id"
	// DefaultRefreshAttempts bounds refreshes per request unless overridden.
	DefaultRefreshAttempts = 1

	loginMarker = "<!-- /.login -->"
)

// State is the lifecycle state of a Session.
type State string

const (
	StateUnauthenticated State = "unauthenticated"
	StateAuthenticated   State = "authenticated"
	StateExpired         State = "expired"
	StateFailed          State = "failed"
)

// Upload is a file attached to a multipart request. The file is reopened on
// every attempt, so a retried request sends it again from the start.
type Upload struct {
	Field       string
	FileName    string
	ContentType string
	Path        string
}

// Request describes one call against the remote service.
type Request struct {
	Method   string
	Endpoint string
	Query    url.Values
	Form     url.Values
	File     *Upload
	// UseBody sends the token as a form field instead of a cookie.
	UseBody bool
	// MaxRefreshAttempts overrides the session default when non-nil.
	MaxRefreshAttempts *int
}

// Attempts returns a pointer suitable for Request.MaxRefreshAttempts.
func Attempts(n int) *int { return &n }

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Text returns the body as a string.
func (r *Response) Text() string { return string(r.Body) }

// JSON decodes the body into v.
func (r *Response) JSON(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		if r.StatusCode >= http.StatusBadRequest {
			return errdefs.Remote(fmt.Sprintf("HTTP %d: %s", r.StatusCode, snippet(r.Body)))
		}
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// ExtractJSON decodes a JSON object response. A top-level "error" field is
// returned as a remote operation error carrying the server message verbatim.
func ExtractJSON(resp *Response) (map[string]any, error) {
	var out map[string]any
	if err := resp.JSON(&out); err != nil {
		return nil, err
	}
	if msg, ok := out["error"]; ok {
		return nil, errdefs.Remote(fmt.Sprint(msg))
	}
	return out, nil
}

// Session holds the identity and token for one remote endpoint.
//
// A Session is a single-owner object: it mutates its token during Dispatch
// and must not be shared between goroutines without external locking.
type Session struct {
	url      string
	user     string
	id       string
	state    State
	attempts int

	client      *http.Client
	credentials CredentialProvider
	logger      *slog.Logger
}

// Option configures a Session.
type Option func(*Session)

// WithSessionID seeds the session with an existing token.
func WithSessionID(id string) Option {
	return func(s *Session) { s.id = id }
}

// WithHTTPClient sets the HTTP client used for every request.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Session) {
		if c != nil {
			s.client = c
		}
	}
}

// WithLogger sets the session logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithCredentials sets the provider consulted when Dispatch must refresh.
func WithCredentials(p CredentialProvider) Option {
	return func(s *Session) { s.credentials = p }
}

// WithRefreshAttempts sets the default refresh budget per request.
func WithRefreshAttempts(n int) Option {
	return func(s *Session) { s.attempts = n }
}

// New creates a session for rawURL, which may embed a user as user@url.
func New(rawURL string, opts ...Option) (*Session, error) {
	user, endpoint, err := ParseEndpoint(rawURL)
	if err != nil {
		return nil, err
	}
	s := &Session{
		url:      endpoint,
		user:     user,
		state:    StateUnauthenticated,
		attempts: DefaultRefreshAttempts,
		client:   http.DefaultClient,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = log.WithSession(user, endpoint)
	}
	if s.id != "" {
		s.state = StateAuthenticated
	}
	return s, nil
}

func (s *Session) URL() string { return s.url }

func (s *Session) User() string { return s.user }

func (s *Session) ID() string { return s.id }

func (s *Session) State() State { return s.state }

func (s *Session) String() string { return s.user + "@" + s.url }

// Refresh logs in with a password from provider and stores the new token.
func (s *Session) Refresh(ctx context.Context, provider CredentialProvider) error {
	if provider == nil {
		s.state = StateFailed
		return fmt.Errorf("%w: no credential provider configured", errdefs.ErrAuthentication)
	}
	password, err := provider.Credential(ctx, s.user, s.url)
	if err != nil {
		return fmt.Errorf("obtain credential: %w", err)
	}

	form := url.Values{
		"action":   {"login"},
		"username": {s.user},
		"password": {password},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := s.do(req)
	if err != nil {
		return err
	}

	var body map[string]any
	if err := resp.JSON(&body); err != nil {
		return fmt.Errorf("login response: %w", err)
	}
	if msg, ok := body["error"]; ok {
		s.state = StateFailed
		return fmt.Errorf("%w: %v", errdefs.ErrAuthentication, msg)
	}
	id, _ := body["session.id"].(string)
	if id == "" {
		s.state = StateFailed
		return fmt.Errorf("%w: login response carried no session id", errdefs.ErrAuthentication)
	}

	s.id = id
	s.state = StateAuthenticated
	s.logger.Info("session refreshed")
	return nil
}

// Dispatch sends req, refreshing the session and retrying when the server
// reports an expired session. Errors other than authentication failures are
// returned without retry.
func (s *Session) Dispatch(ctx context.Context, req Request) (*Response, error) {
	attempts := s.attempts
	if req.MaxRefreshAttempts != nil {
		attempts = *req.MaxRefreshAttempts
	}

	for {
		if s.id != "" {
			resp, err := s.send(ctx, req)
			if err != nil {
				return nil, err
			}
			if !bytes.Contains(resp.Body, []byte(loginMarker)) {
				s.state = StateAuthenticated
				return resp, nil
			}
			s.state = StateExpired
			s.logger.Warn("session expired", "endpoint", req.Endpoint)
		}

		if attempts <= 0 {
			s.state = StateFailed
			return nil, fmt.Errorf("%w: %s %s", errdefs.ErrSessionExhausted, req.method(), req.Endpoint)
		}
		attempts--
		if err := s.Refresh(ctx, s.credentials); err != nil {
			return nil, err
		}
	}
}

func (r Request) method() string {
	if r.Method == "" {
		return http.MethodGet
	}
	return r.Method
}

func (s *Session) send(ctx context.Context, r Request) (*Response, error) {
	target, err := url.Parse(s.url + "/" + strings.TrimLeft(r.Endpoint, "/"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errdefs.ErrMalformedEndpoint, err)
	}

	query := cloneValues(r.Query)
	form := cloneValues(r.Form)
	method := r.method()
	bodyless := method == http.MethodGet || method == http.MethodHead

	if r.UseBody {
		if bodyless && r.File == nil {
			query.Set(FormField, s.id)
		} else {
			form.Set(FormField, s.id)
		}
	}
	target.RawQuery = query.Encode()

	var body io.Reader
	var contentType string
	switch {
	case r.File != nil:
		buf, ct, err := multipartBody(form, r.File)
		if err != nil {
			return nil, err
		}
		body, contentType = buf, ct
	case len(form) > 0 && !bodyless:
		body, contentType = strings.NewReader(form.Encode()), "application/x-www-form-urlencoded"
	}

	req, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if !r.UseBody {
		req.AddCookie(&http.Cookie{Name: CookieName, Value: s.id})
	}

	s.logger.Debug("dispatch", "method", method, "endpoint", r.Endpoint)
	return s.do(req)
}

func (s *Session) do(req *http.Request) (*Response, error) {
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: data}, nil
}

func multipartBody(form url.Values, up *Upload) (*bytes.Buffer, string, error) {
	f, err := os.Open(up.Path)
	if os.IsNotExist(err) {
		return nil, "", fmt.Errorf("%w: upload file %q", errdefs.ErrMissingResource, up.Path)
	}
	if err != nil {
		return nil, "", fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()

	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)
	for key, values := range form {
		for _, v := range values {
			if err := mw.WriteField(key, v); err != nil {
				return nil, "", fmt.Errorf("write form field: %w", err)
			}
		}
	}

	field := up.Field
	if field == "" {
		field = "file"
	}
	ct := up.ContentType
	if ct == "" {
		ct = "application/octet-stream"
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, up.FileName))
	h.Set("Content-Type", ct)
	part, err := mw.CreatePart(h)
	if err != nil {
		return nil, "", fmt.Errorf("create upload part: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, "", fmt.Errorf("copy upload: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("finalize upload: %w", err)
	}
	return buf, mw.FormDataContentType(), nil
}

func cloneValues(v url.Values) url.Values {
	out := make(url.Values, len(v))
	for k, vs := range v {
		out[k] = append([]string(nil), vs...)
	}
	return out
}

func snippet(b []byte) string {
	const limit = 200
	s := strings.TrimSpace(string(b))
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}
