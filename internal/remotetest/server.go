// Package remotetest runs an in-process fake of the remote workflow service.
// It speaks the same login, manager and executor protocol as the real server
// and records every request so tests can assert on what was sent.
package remotetest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strconv"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const (
	cookieName  = "azkaban.browser.session.id"
	formField   = "session.id"
	loginMarker = "<!-- /.login -->"
	loginPage   = "<html><body>" + loginMarker + "<form>login</form></body></html>"
)

// Execution is a flow execution held by the fake server.
type Execution struct {
	ID               int
	Project          string
	Flow             string
	Disabled         []string
	ConcurrentOption string
	Status           string
	Nodes            map[string]string
	Logs             map[string]string
}

// Upload is an archive received by the fake server.
type Upload struct {
	Project     string
	FileName    string
	ContentType string
	Data        []byte
}

// Request is a recorded inbound request.
type Request struct {
	Method string
	Path   string
	Params url.Values
	Token  string
	// Cookie reports whether the token arrived as a cookie.
	Cookie bool
}

// Server is a fake remote workflow service.
type Server struct {
	mu         sync.Mutex
	users      map[string]string
	sessions   map[string]string
	projects   map[string]string
	flows      map[string]map[string][]string
	executions map[int]*Execution
	uploads    []Upload
	requests   []Request
	logins     int
	nextExec   int
	nextToken  int

	srv *httptest.Server
}

// New starts a fake server and stops it when tb finishes.
func New(tb testing.TB) *Server {
	tb.Helper()
	s := &Server{
		users:      make(map[string]string),
		sessions:   make(map[string]string),
		projects:   make(map[string]string),
		flows:      make(map[string]map[string][]string),
		executions: make(map[int]*Execution),
		nextExec:   1,
	}
	s.srv = httptest.NewServer(s.routes())
	tb.Cleanup(s.srv.Close)
	return s
}

// URL returns the server base URL.
func (s *Server) URL() string { return s.srv.URL }

// Endpoint returns user@url for the server.
func (s *Server) Endpoint(user string) string { return user + "@" + s.srv.URL }

// Client returns an HTTP client for the server.
func (s *Server) Client() *http.Client { return s.srv.Client() }

// AddUser registers a login.
func (s *Server) AddUser(user, password string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user] = password
}

// IssueToken creates a valid session token for user without a login request.
func (s *Server) IssueToken(user string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.issueLocked(user)
}

// ExpireAll invalidates every issued token.
func (s *Server) ExpireAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = make(map[string]string)
}

// AddProject creates a project.
func (s *Server) AddProject(name, description string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.projects[name] = description
}

// AddFlow creates project (if needed) and a flow with the given nodes.
func (s *Server) AddFlow(project, flow string, nodes ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.projects[project]; !ok {
		s.projects[project] = ""
	}
	if s.flows[project] == nil {
		s.flows[project] = make(map[string][]string)
	}
	s.flows[project][flow] = append([]string(nil), nodes...)
}

// AddExecution stores an execution and returns its id.
func (s *Server) AddExecution(e Execution) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.ID == 0 {
		e.ID = s.nextExec
	}
	if e.ID >= s.nextExec {
		s.nextExec = e.ID + 1
	}
	s.executions[e.ID] = &e
	return e.ID
}

// SetStatus updates the status of an execution and all of its nodes.
func (s *Server) SetStatus(id int, status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.executions[id]; ok {
		e.Status = status
		for n := range e.Nodes {
			e.Nodes[n] = status
		}
	}
}

// Execution returns a copy of the stored execution.
func (s *Server) Execution(id int) (Execution, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.executions[id]
	if !ok {
		return Execution{}, false
	}
	return *e, true
}

// HasProject reports whether project exists.
func (s *Server) HasProject(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.projects[name]
	return ok
}

// Uploads returns the archives received so far.
func (s *Server) Uploads() []Upload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Upload(nil), s.uploads...)
}

// Requests returns every request received so far.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// Logins returns the number of login requests received.
func (s *Server) Logins() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logins
}

func (s *Server) routes() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.record)

	r.Post("/", s.handleLogin)
	r.Group(func(r chi.Router) {
		r.Use(s.requireSession)
		r.HandleFunc("/manager", s.handleManager)
		r.HandleFunc("/executor", s.handleExecutor)
	})
	return r
}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := parseForm(r); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		token, cookie := requestToken(r)
		s.mu.Lock()
		s.requests = append(s.requests, Request{
			Method: r.Method,
			Path:   r.URL.Path,
			Params: cloneValues(r.Form),
			Token:  token,
			Cookie: cookie,
		})
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, _ := requestToken(r)
		s.mu.Lock()
		_, ok := s.sessions[token]
		s.mu.Unlock()
		if !ok {
			w.Header().Set("Content-Type", "text/html")
			_, _ = io.WriteString(w, loginPage)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.FormValue("action") != "login" {
		writeJSON(w, map[string]any{"error": "Unknown action"})
		return
	}
	user, password := r.FormValue("username"), r.FormValue("password")

	s.mu.Lock()
	defer s.mu.Unlock()
	s.logins++
	if want, ok := s.users[user]; !ok || want != password {
		writeJSON(w, map[string]any{"error": "Incorrect Login. Username/Password not found."})
		return
	}
	writeJSON(w, map[string]any{"status": "success", "session.id": s.issueLocked(user)})
}

func (s *Server) handleManager(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.FormValue("ajax") == "fetchflowjobs":
		s.fetchFlowJobs(w, r)
	case r.FormValue("ajax") == "upload":
		s.upload(w, r)
	case r.FormValue("action") == "create":
		s.createProject(w, r)
	case r.FormValue("delete") == "true":
		s.deleteProject(w, r)
	default:
		http.Error(w, "unsupported manager request", http.StatusBadRequest)
	}
}

func (s *Server) handleExecutor(w http.ResponseWriter, r *http.Request) {
	switch r.FormValue("ajax") {
	case "fetchexecflow":
		s.fetchExecFlow(w, r)
	case "fetchExecJobLogs":
		s.fetchJobLogs(w, r)
	case "cancelFlow":
		s.cancelFlow(w, r)
	case "executeFlow":
		s.executeFlow(w, r)
	default:
		http.Error(w, "unsupported executor request", http.StatusBadRequest)
	}
}

func (s *Server) fetchFlowJobs(w http.ResponseWriter, r *http.Request) {
	project, flow := r.FormValue("project"), r.FormValue("flow")
	s.mu.Lock()
	nodes, ok := s.flows[project][flow]
	s.mu.Unlock()
	if !ok {
		// The real service answers unknown flows with an HTML error page.
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, "<html><body>Flow not found</body></html>")
		return
	}
	out := make([]map[string]any, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, map[string]any{"id": n, "type": "command"})
	}
	writeJSON(w, map[string]any{"project": project, "flow": flow, "nodes": out})
}

func (s *Server) upload(w http.ResponseWriter, r *http.Request) {
	project := r.FormValue("project")
	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, map[string]any{"error": "Missing file"})
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.projects[project]; !ok {
		writeJSON(w, map[string]any{"error": fmt.Sprintf("Installation Failed. Project '%s' doesn't exist.", project)})
		return
	}
	s.uploads = append(s.uploads, Upload{
		Project:     project,
		FileName:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	})
	writeJSON(w, map[string]any{
		"projectId": strconv.Itoa(len(s.projects)),
		"version":   strconv.Itoa(len(s.uploads)),
	})
}

func (s *Server) createProject(w http.ResponseWriter, r *http.Request) {
	name := r.FormValue("name")
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.projects[name]; ok {
		writeJSON(w, map[string]any{"status": "error", "error": "Project already exists."})
		return
	}
	s.projects[name] = r.FormValue("description")
	writeJSON(w, map[string]any{"status": "success", "path": "manager?project=" + name})
}

func (s *Server) deleteProject(w http.ResponseWriter, r *http.Request) {
	name := r.FormValue("project")
	s.mu.Lock()
	_, ok := s.projects[name]
	if ok {
		delete(s.projects, name)
		delete(s.flows, name)
	}
	s.mu.Unlock()

	w.Header().Set("Content-Type", "text/html")
	if !ok {
		_, _ = fmt.Fprintf(w, "<html><body>Project %s doesn't exist.</body></html>", name)
		return
	}
	_, _ = fmt.Fprintf(w, "<html><body>Project '%s' was successfully deleted and is no longer available.</body></html>", name)
}

func (s *Server) fetchExecFlow(w http.ResponseWriter, r *http.Request) {
	e, ok := s.lookup(r)
	if !ok {
		writeJSON(w, map[string]any{"error": "Cannot find execution '" + r.FormValue("execid") + "'"})
		return
	}
	names := make([]string, 0, len(e.Nodes))
	for n := range e.Nodes {
		names = append(names, n)
	}
	sort.Strings(names)
	nodes := make([]map[string]any, 0, len(names))
	for _, n := range names {
		nodes = append(nodes, map[string]any{"id": n, "status": e.Nodes[n]})
	}
	writeJSON(w, map[string]any{
		"execid":  e.ID,
		"project": e.Project,
		"flow":    e.Flow,
		"status":  e.Status,
		"nodes":   nodes,
	})
}

func (s *Server) fetchJobLogs(w http.ResponseWriter, r *http.Request) {
	e, ok := s.lookup(r)
	if !ok {
		writeJSON(w, map[string]any{"error": "Cannot find execution"})
		return
	}
	logs := e.Logs[r.FormValue("jobId")]
	offset, _ := strconv.Atoi(r.FormValue("offset"))
	length, _ := strconv.Atoi(r.FormValue("length"))
	if offset > len(logs) {
		offset = len(logs)
	}
	end := offset + length
	if length <= 0 || end > len(logs) {
		end = len(logs)
	}
	writeJSON(w, map[string]any{"data": logs[offset:end], "offset": offset, "length": end - offset})
}

func (s *Server) cancelFlow(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.Atoi(r.FormValue("execid"))
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.executions[id]
	if !ok || e.Status != "RUNNING" {
		writeJSON(w, map[string]any{"error": fmt.Sprintf("Execution %d of flow isn't running.", id)})
		return
	}
	e.Status = "KILLED"
	writeJSON(w, map[string]any{})
}

func (s *Server) executeFlow(w http.ResponseWriter, r *http.Request) {
	project, flow := r.FormValue("project"), r.FormValue("flow")
	var disabled []string
	if raw := r.FormValue("disabled"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &disabled); err != nil {
			writeJSON(w, map[string]any{"error": "Invalid disabled list: " + err.Error()})
			return
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	nodes, ok := s.flows[project][flow]
	if !ok {
		writeJSON(w, map[string]any{"error": fmt.Sprintf("Flow '%s' cannot be found in project %s", flow, project)})
		return
	}
	option := r.FormValue("concurrentOption")
	if option == "skip" {
		for _, e := range s.executions {
			if e.Project == project && e.Flow == flow && e.Status == "RUNNING" {
				writeJSON(w, map[string]any{"error": fmt.Sprintf("Flow %s is already running with exec id %d", flow, e.ID)})
				return
			}
		}
	}

	skip := make(map[string]bool, len(disabled))
	for _, d := range disabled {
		skip[d] = true
	}
	e := &Execution{
		ID:               s.nextExec,
		Project:          project,
		Flow:             flow,
		Disabled:         disabled,
		ConcurrentOption: option,
		Status:           "RUNNING",
		Nodes:            make(map[string]string, len(nodes)),
		Logs:             make(map[string]string),
	}
	for _, n := range nodes {
		if skip[n] {
			e.Nodes[n] = "DISABLED"
			continue
		}
		e.Nodes[n] = "RUNNING"
	}
	s.executions[e.ID] = e
	s.nextExec++
	writeJSON(w, map[string]any{
		"message": fmt.Sprintf("Execution submitted successfully with exec id %d", e.ID),
		"project": project,
		"flow":    flow,
		"execid":  e.ID,
	})
}

func (s *Server) lookup(r *http.Request) (Execution, bool) {
	id, err := strconv.Atoi(r.FormValue("execid"))
	if err != nil {
		return Execution{}, false
	}
	return s.Execution(id)
}

func (s *Server) issueLocked(user string) string {
	s.nextToken++
	token := fmt.Sprintf("token-%d", s.nextToken)
	s.sessions[token] = user
	return token
}

func parseForm(r *http.Request) error {
	if r.Header.Get("Content-Type") != "" && r.Method == http.MethodPost {
		if err := r.ParseMultipartForm(32 << 20); err != nil && err != http.ErrNotMultipart {
			return err
		}
	}
	return r.ParseForm()
}

func requestToken(r *http.Request) (string, bool) {
	if c, err := r.Cookie(cookieName); err == nil && c.Value != "" {
		return c.Value, true
	}
	return r.FormValue(formField), false
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func cloneValues(v url.Values) url.Values {
	out := make(url.Values, len(v))
	for k, vs := range v {
		out[k] = append([]string(nil), vs...)
	}
	return out
}
