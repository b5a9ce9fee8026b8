// Package semaphoretest provides an in-memory Semaphore API server for tests.
//
// The server implements the subset of the REST API used by semsync: projects,
// keys, repositories, inventories, secrets, environments, templates and
// tasks. Every request is recorded so tests can assert on exactly what was
// sent.
package semaphoretest

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

const sessionCookie = "semaphore"

// Request is one request received by the server. Path is relative to the
// API root ("/project/1/templates").
type Request struct {
	Method string
	Path   string
	Query  string
	Body   []byte
}

// JSON decodes the request body into a generic object.
func (r Request) JSON() map[string]any {
	var out map[string]any
	_ = json.Unmarshal(r.Body, &out)
	return out
}

type forced struct {
	status int
	body   string
}

// Server is a fake Semaphore server.
type Server struct {
	*httptest.Server

	// Username and Password are accepted by the login endpoint.
	Username string
	Password string

	// Token is accepted as a bearer token.
	Token string

	mu       sync.Mutex
	nextID   int
	projects map[int]map[string]any
	records  map[int]map[string][]map[string]any
	requests []Request
	logins   int
	sessions map[string]bool
	forced   map[string]forced
	delay    time.Duration
}

// NewServer starts a server accepting the given credentials. Close it when
// done.
func NewServer(username, password, token string) *Server {
	s := &Server{
		Username: username,
		Password: password,
		Token:    token,
		nextID:   1,
		projects: make(map[int]map[string]any),
		records:  make(map[int]map[string][]map[string]any),
		sessions: make(map[string]bool),
		forced:   make(map[string]forced),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serveHTTP))
	return s
}

// AddProject seeds a project and returns its id.
func (s *Server) AddProject(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.allocID()
	s.projects[id] = map[string]any{"id": id, "name": name}
	s.records[id] = make(map[string][]map[string]any)
	return id
}

// Seed stores record in a project collection ("keys", "repositories",
// "inventories", "secrets", "environment", "templates", "tasks") and
// returns the assigned id. record is anything that encodes to a JSON object;
// an existing positive "id" is kept.
func (s *Server) Seed(projectID int, collection string, record any) int {
	data, err := json.Marshal(record)
	if err != nil {
		panic(err)
	}
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		panic(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	id := intOf(obj["id"])
	if id <= 0 {
		id = s.allocID()
	} else if id >= s.nextID {
		s.nextID = id + 1
	}
	obj["id"] = id
	obj["project_id"] = projectID
	if s.records[projectID] == nil {
		s.records[projectID] = make(map[string][]map[string]any)
	}
	s.records[projectID][collection] = append(s.records[projectID][collection], obj)
	return id
}

// Records returns copies of the records in a project collection.
func (s *Server) Records(projectID int, collection string) []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []map[string]any
	for _, r := range s.records[projectID][collection] {
		out = append(out, clone(r))
	}
	return out
}

// Record returns a copy of one record, or nil.
func (s *Server) Record(projectID int, collection string, id int) map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, r := s.find(projectID, collection, id); r != nil {
		return clone(r)
	}
	return nil
}

// Requests returns the recorded requests, optionally filtered by method
// ("" matches any) and path prefix.
func (s *Server) Requests(method, pathPrefix string) []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Request
	for _, r := range s.requests {
		if method != "" && r.Method != method {
			continue
		}
		if !strings.HasPrefix(r.Path, pathPrefix) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// Writes returns the recorded POST, PUT and DELETE requests, logins excluded.
func (s *Server) Writes() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Request
	for _, r := range s.requests {
		if r.Method == http.MethodGet || r.Path == "/auth/login" {
			continue
		}
		out = append(out, r)
	}
	return out
}

// ResetRequests clears the request log.
func (s *Server) ResetRequests() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = nil
}

// Logins returns the number of login requests received.
func (s *Server) Logins() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logins
}

// ExpireSessions forgets every cookie session so the next call gets 401.
func (s *Server) ExpireSessions() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = make(map[string]bool)
}

// Force makes every request matching method and path answer with status and
// body instead of being handled. A zero status removes the override.
func (s *Server) Force(method, path string, status int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := method + " " + path
	if status == 0 {
		delete(s.forced, key)
		return
	}
	s.forced[key] = forced{status: status, body: body}
}

// SetDelay delays every response.
func (s *Server) SetDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay = d
}

func (s *Server) serveHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	path := strings.TrimPrefix(r.URL.Path, "/api")

	s.mu.Lock()
	s.requests = append(s.requests, Request{Method: r.Method, Path: path, Query: r.URL.RawQuery, Body: body})
	delay := s.delay
	f, isForced := s.forced[r.Method+" "+path]
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}

	if isForced {
		w.WriteHeader(f.status)
		_, _ = io.WriteString(w, f.body)
		return
	}

	if r.Method == http.MethodPost && path == "/auth/login" {
		s.login(w, body)
		return
	}
	if !s.authorized(r) {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.route(w, r.Method, path, r.URL.Query(), body)
}

func (s *Server) login(w http.ResponseWriter, body []byte) {
	var creds struct {
		Auth     string `json:"auth"`
		Password string `json:"password"`
	}
	_ = json.Unmarshal(body, &creds)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.logins++
	if creds.Auth != s.Username || creds.Password != s.Password || s.Username == "" {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	value := hex.EncodeToString(buf)
	s.sessions[value] = true
	http.SetCookie(w, &http.Cookie{Name: sessionCookie, Value: value, Path: "/"})
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) authorized(r *http.Request) bool {
	if auth := r.Header.Get("Authorization"); auth != "" {
		return s.Token != "" && auth == "Bearer "+s.Token
	}
	c, err := r.Cookie(sessionCookie)
	if err != nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[c.Value]
}

func (s *Server) route(w http.ResponseWriter, method, path string, query map[string][]string, body []byte) {
	parts := strings.Split(strings.Trim(path, "/"), "/")

	if len(parts) == 1 && parts[0] == "projects" {
		switch method {
		case http.MethodGet:
			s.listProjects(w)
		case http.MethodPost:
			s.createProject(w, body)
		default:
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
		return
	}

	if len(parts) < 2 || parts[0] != "project" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	projectID, err := strconv.Atoi(parts[1])
	if err != nil {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	project, ok := s.projects[projectID]
	if !ok {
		writeError(w, http.StatusNotFound, "Project not found")
		return
	}

	switch len(parts) {
	case 2:
		s.projectItem(w, method, project, body)
	case 3:
		s.collection(w, method, projectID, parts[2], query, body)
	case 4:
		id, err := strconv.Atoi(parts[3])
		if err != nil {
			writeError(w, http.StatusNotFound, "not found")
			return
		}
		s.item(w, method, projectID, parts[2], id, body)
	case 5:
		id, err := strconv.Atoi(parts[3])
		if err != nil || parts[2] != "templates" || parts[4] != "run" || method != http.MethodPost {
			writeError(w, http.StatusNotFound, "not found")
			return
		}
		s.runTemplate(w, projectID, id, body)
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

func (s *Server) listProjects(w http.ResponseWriter) {
	ids := make([]int, 0, len(s.projects))
	for id := range s.projects {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]map[string]any, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.projects[id])
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) createProject(w http.ResponseWriter, body []byte) {
	obj, ok := decodeObject(w, body)
	if !ok {
		return
	}
	id := s.allocID()
	obj["id"] = id
	s.projects[id] = obj
	s.records[id] = make(map[string][]map[string]any)
	writeJSON(w, http.StatusCreated, obj)
}

func (s *Server) projectItem(w http.ResponseWriter, method string, project map[string]any, body []byte) {
	id := intOf(project["id"])
	switch method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, project)
	case http.MethodPut:
		obj, ok := decodeObject(w, body)
		if !ok {
			return
		}
		for k, v := range obj {
			if k != "id" {
				project[k] = v
			}
		}
		w.WriteHeader(http.StatusNoContent)
	case http.MethodDelete:
		delete(s.projects, id)
		delete(s.records, id)
		w.WriteHeader(http.StatusNoContent)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

var collections = map[string]bool{
	"keys":         true,
	"repositories": true,
	"inventories":  true,
	"secrets":      true,
	"environment":  true,
	"templates":    true,
	"tasks":        true,
}

func (s *Server) collection(w http.ResponseWriter, method string, projectID int, name string, query map[string][]string, body []byte) {
	if !collections[name] {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	switch method {
	case http.MethodGet:
		out := make([]map[string]any, 0)
		for _, r := range s.records[projectID][name] {
			if name == "tasks" && len(query["template_id"]) > 0 {
				if strconv.Itoa(intOf(r["template_id"])) != query["template_id"][0] {
					continue
				}
			}
			out = append(out, present(name, r))
		}
		writeJSON(w, http.StatusOK, out)
	case http.MethodPost:
		if name == "tasks" {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		obj, ok := decodeObject(w, body)
		if !ok {
			return
		}
		if n, _ := obj["name"].(string); n == "" {
			writeError(w, http.StatusBadRequest, "name is required")
			return
		}
		obj["id"] = s.allocID()
		obj["project_id"] = projectID
		s.records[projectID][name] = append(s.records[projectID][name], obj)
		writeJSON(w, http.StatusCreated, present(name, obj))
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) item(w http.ResponseWriter, method string, projectID int, name string, id int, body []byte) {
	if !collections[name] {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	idx, rec := s.find(projectID, name, id)
	if rec == nil {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	switch method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, present(name, rec))
	case http.MethodPut:
		obj, ok := decodeObject(w, body)
		if !ok {
			return
		}
		for k, v := range obj {
			if k == "id" || k == "project_id" {
				continue
			}
			rec[k] = v
		}
		w.WriteHeader(http.StatusNoContent)
	case http.MethodDelete:
		list := s.records[projectID][name]
		s.records[projectID][name] = append(list[:idx:idx], list[idx+1:]...)
		w.WriteHeader(http.StatusNoContent)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) runTemplate(w http.ResponseWriter, projectID, templateID int, body []byte) {
	if _, tmpl := s.find(projectID, "templates", templateID); tmpl == nil {
		writeError(w, http.StatusNotFound, "template not found")
		return
	}
	obj, ok := decodeObject(w, body)
	if !ok {
		return
	}
	environment := "{}"
	if vars, ok := obj["extra_vars"].(map[string]any); ok {
		encoded, _ := json.Marshal(vars)
		environment = string(encoded)
	}
	task := map[string]any{
		"id":          s.allocID(),
		"project_id":  projectID,
		"template_id": templateID,
		"status":      "waiting",
		"debug":       obj["debug"],
		"dry_run":     obj["dry_run"],
		"environment": environment,
		"created":     time.Now().UTC().Format(time.RFC3339),
	}
	s.records[projectID]["tasks"] = append(s.records[projectID]["tasks"], task)
	writeJSON(w, http.StatusCreated, task)
}

func (s *Server) find(projectID int, collection string, id int) (int, map[string]any) {
	for i, r := range s.records[projectID][collection] {
		if intOf(r["id"]) == id {
			return i, r
		}
	}
	return -1, nil
}

func (s *Server) allocID() int {
	id := s.nextID
	s.nextID++
	return id
}

// present hides write-only fields.
func present(collection string, r map[string]any) map[string]any {
	out := clone(r)
	switch collection {
	case "secrets":
		delete(out, "value")
	case "keys":
		delete(out, "private_key")
	}
	return out
}

func clone(r map[string]any) map[string]any {
	out := make(map[string]any, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

func intOf(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	case json.Number:
		i, _ := n.Int64()
		return int(i)
	}
	return 0
}

func decodeObject(w http.ResponseWriter, body []byte) (map[string]any, bool) {
	var obj map[string]any
	if err := json.Unmarshal(body, &obj); err != nil || obj == nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return nil, false
	}
	return obj, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
