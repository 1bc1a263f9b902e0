// Package vaulttest runs an in-process imitation of the Vault KV secrets
// engines, v1 and v2, for tests that need a real HTTP endpoint.
package vaulttest

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
)

const DefaultToken = "test-token-12345"

// RecordedRequest is one request the server received.
type RecordedRequest struct {
	Method string
	Path   string
	List   bool
}

type injectedFailure struct {
	status int
	body   string
}

// Server is a fake Vault. Mounts are declared with MountV1/MountV2 and secrets
// are kept in memory, keyed by their logical path (the "data/" segment of KV
// v2 paths is dropped).
type Server struct {
	*httptest.Server
	Token string

	mu       sync.Mutex
	mounts   map[string]int
	secrets  map[string]json.RawMessage
	failures map[string]injectedFailure
	requests []RecordedRequest
	sealed   bool
	standby  bool
}

// NewServer starts a fake Vault and closes it when the test ends.
func NewServer(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		Token:    DefaultToken,
		mounts:   make(map[string]int),
		secrets:  make(map[string]json.RawMessage),
		failures: make(map[string]injectedFailure),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/", s.handle)
	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

func (s *Server) MountV1(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mounts[path] = 1
}

func (s *Server) MountV2(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mounts[path] = 2
}

// Put stores a secret as if it had been written through the API. path is
// logical: "secret/dir/name" for both engine versions.
func (s *Server) Put(path, keyType, value string) {
	payload, _ := json.Marshal(map[string]string{"type": keyType, "value": value})
	s.mu.Lock()
	defer s.mu.Unlock()
	s.secrets[path] = payload
}

// PutRaw stores an arbitrary JSON document as a secret.
func (s *Server) PutRaw(path, document string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.secrets[path] = json.RawMessage(document)
}

// Has reports whether a secret exists at the logical path.
func (s *Server) Has(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.secrets[path]
	return ok
}

// Fail makes every request for method on the raw API path (relative to /v1/)
// answer status and body until Recover is called.
func (s *Server) Fail(method, path string, status int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[method+" "+path] = injectedFailure{status: status, body: body}
}

func (s *Server) Recover(method, path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.failures, method+" "+path)
}

// Seal makes sys/health report a sealed server.
func (s *Server) Seal(sealed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sealed = sealed
}

// Standby makes sys/health report a standby node.
func (s *Server) Standby(standby bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.standby = standby
}

// Requests returns a copy of every request received so far.
func (s *Server) Requests() []RecordedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]RecordedRequest, len(s.requests))
	copy(out, s.requests)
	return out
}

// CountRequests counts the received requests with the given method.
func (s *Server) CountRequests(method string) int {
	n := 0
	for _, r := range s.Requests() {
		if r.Method == method && !r.List {
			n++
		}
	}
	return n
}

func (s *Server) ResetRequests() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = nil
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/")
	list := r.Method == "LIST" || r.URL.Query().Get("list") == "true"

	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, RecordedRequest{Method: r.Method, Path: path, List: list})

	if f, ok := s.failures[r.Method+" "+path]; ok {
		writeRaw(w, f.status, f.body)
		return
	}
	if path == "sys/health" {
		s.health(w)
		return
	}
	if r.Header.Get("X-Vault-Token") != s.Token {
		writeErrors(w, http.StatusForbidden, "permission denied")
		return
	}

	if mountPath, ok := strings.CutSuffix(path, "/config"); ok && s.mounts[mountPath] == 2 {
		writeRaw(w, http.StatusOK, `{"request_id":"8d1c6f0a","data":{"max_versions":0,"cas_required":false,"delete_version_after":"0s"}}`)
		return
	}

	mountPath, version := s.findMount(path)
	if version == 0 {
		writeErrors(w, http.StatusNotFound, "no handler for route \""+path+"\". route entry not found.")
		return
	}

	logical := path
	if version == 2 {
		rest := strings.TrimPrefix(strings.TrimPrefix(path, mountPath), "/")
		subpath, remainder, _ := strings.Cut(rest, "/")
		switch {
		case list && subpath == "metadata":
		case !list && subpath == "data":
		default:
			writeErrors(w, http.StatusNotFound, "unsupported path")
			return
		}
		logical = joinPath(mountPath, remainder)
	}

	switch {
	case list && r.Method == http.MethodGet, r.Method == "LIST":
		s.list(w, logical)
	case r.Method == http.MethodGet:
		s.read(w, logical, version)
	case r.Method == http.MethodPost || r.Method == http.MethodPut:
		s.write(w, r, logical, version)
	case r.Method == http.MethodDelete:
		delete(s.secrets, logical)
		w.WriteHeader(http.StatusNoContent)
	default:
		writeErrors(w, http.StatusMethodNotAllowed, "unsupported operation")
	}
}

func (s *Server) findMount(path string) (string, int) {
	best, version := "", 0
	for m, v := range s.mounts {
		if (path == m || strings.HasPrefix(path, m+"/")) && len(m) > len(best) {
			best, version = m, v
		}
	}
	return best, version
}

func (s *Server) list(w http.ResponseWriter, dir string) {
	prefix := dir + "/"
	seen := make(map[string]bool)
	var keys []string
	for path := range s.secrets {
		rest, ok := strings.CutPrefix(path, prefix)
		if !ok {
			continue
		}
		if child, _, nested := strings.Cut(rest, "/"); nested {
			rest = child + "/"
		}
		if !seen[rest] {
			seen[rest] = true
			keys = append(keys, rest)
		}
	}
	if len(keys) == 0 {
		writeErrors(w, http.StatusNotFound)
		return
	}
	sort.Strings(keys)
	writeJSON(w, http.StatusOK, map[string]any{"data": map[string]any{"keys": keys}})
}

func (s *Server) read(w http.ResponseWriter, path string, version int) {
	secret, ok := s.secrets[path]
	if !ok {
		writeErrors(w, http.StatusNotFound)
		return
	}
	if version == 2 {
		writeJSON(w, http.StatusOK, map[string]any{
			"data": map[string]any{
				"data":     secret,
				"metadata": map[string]any{"version": 1, "destroyed": false},
			},
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"lease_duration": 2764800, "data": secret})
}

func (s *Server) write(w http.ResponseWriter, r *http.Request, path string, version int) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeErrors(w, http.StatusBadRequest, err.Error())
		return
	}

	var document map[string]json.RawMessage
	if err := json.Unmarshal(body, &document); err != nil {
		writeErrors(w, http.StatusBadRequest, "failed to parse JSON input: "+err.Error())
		return
	}
	if version == 2 {
		data, ok := document["data"]
		if !ok {
			writeErrors(w, http.StatusBadRequest, "no data provided")
			return
		}
		s.secrets[path] = data
		writeJSON(w, http.StatusOK, map[string]any{"data": map[string]any{"version": 1}})
		return
	}
	s.secrets[path] = body
	w.WriteHeader(http.StatusNoContent)
}

// health answers like sys/health with default query parameters.
func (s *Server) health(w http.ResponseWriter) {
	status := http.StatusOK
	switch {
	case s.sealed:
		status = http.StatusServiceUnavailable
	case s.standby:
		status = http.StatusTooManyRequests
	}
	writeJSON(w, status, map[string]any{
		"initialized":  true,
		"sealed":       s.sealed,
		"standby":      s.standby,
		"version":      "1.15.2",
		"cluster_name": "vault-cluster-test",
	})
}

func joinPath(parts ...string) string {
	var nonEmpty []string
	for _, p := range parts {
		if p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, "/")
}

func writeErrors(w http.ResponseWriter, status int, messages ...string) {
	if messages == nil {
		messages = []string{}
	}
	writeJSON(w, status, map[string]any{"errors": messages})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, _ := json.Marshal(v)
	writeRaw(w, status, string(body))
}

func writeRaw(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}
