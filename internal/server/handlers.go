package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/StricklySoft/insight-auth/pkg/auth"
	sserr "github.com/StricklySoft/insight-auth/pkg/errors"
)

// maxValueBody bounds PUT bodies.
const maxValueBody = 1 << 20

type healthResponse struct {
	Status string `json:"status"`
}

type meResponse struct {
	Subject string        `json:"subject,omitempty"`
	Claims  auth.ClaimSet `json:"claims"`
}

type databasesResponse struct {
	Databases []string `json:"databases"`
}

type pingResponse struct {
	Database  string  `json:"database"`
	LatencyMS float64 `json:"latencyMs"`
}

type keyResponse struct {
	Database   string `json:"database"`
	Key        string `json:"key"`
	Value      string `json:"value"`
	TTLSeconds *int64 `json:"ttlSeconds,omitempty"`
}

type putKeyRequest struct {
	Value      *string `json:"value"`
	TTLSeconds int64   `json:"ttlSeconds,omitempty"`
}

type deleteKeyResponse struct {
	Database string `json:"database"`
	Key      string `json:"key"`
	Deleted  int64  `json:"deleted"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		if err := s.health.Health(r.Context()); err != nil {
			auth.WriteError(w, r, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.ClaimsFromContext(r.Context())
	writeJSON(w, http.StatusOK, meResponse{Subject: claims.Subject(), Claims: claims})
}

// handleListDatabases lists only the databases the caller may open.
func (s *Server) handleListDatabases(w http.ResponseWriter, r *http.Request) {
	visible := make([]string, 0)
	for _, name := range s.databases.Names() {
		allowed, err := s.providers.Oracle.IsAccessAuthorized(r.Context(), name)
		if err != nil {
			auth.WriteError(w, r, err)
			return
		}
		if allowed {
			visible = append(visible, name)
		}
	}
	writeJSON(w, http.StatusOK, databasesResponse{Databases: visible})
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "dbInstance")
	rtt, err := s.databases.Ping(r.Context(), name)
	if err != nil {
		auth.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pingResponse{
		Database:  name,
		LatencyMS: float64(rtt.Microseconds()) / 1000,
	})
}

func (s *Server) handleGetKey(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "dbInstance")
	key := chi.URLParam(r, "key")

	client, err := s.databases.Open(r.Context(), name)
	if err != nil {
		auth.WriteError(w, r, err)
		return
	}

	value, err := client.Get(r.Context(), key)
	if err != nil {
		auth.WriteError(w, r, err)
		return
	}

	resp := keyResponse{Database: name, Key: key, Value: value}
	// Negative TTLs mean no expiry (-1) or a key that vanished (-2).
	if ttl, err := client.TTL(r.Context(), key); err == nil && ttl >= 0 {
		secs := int64(ttl.Seconds())
		resp.TTLSeconds = &secs
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePutKey(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "dbInstance")
	key := chi.URLParam(r, "key")

	var req putKeyRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxValueBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		auth.WriteError(w, r, sserr.Validationf("server: invalid request body: %v", err))
		return
	}
	if req.Value == nil {
		auth.WriteError(w, r, sserr.New(sserr.CodeValidationRequired, "server: value is required"))
		return
	}
	if req.TTLSeconds < 0 {
		auth.WriteError(w, r, sserr.Validation("server: ttlSeconds must be non-negative"))
		return
	}

	client, err := s.databases.Open(r.Context(), name)
	if err != nil {
		auth.WriteError(w, r, err)
		return
	}

	ttl := time.Duration(req.TTLSeconds) * time.Second
	if err := client.Set(r.Context(), key, *req.Value, ttl); err != nil {
		auth.WriteError(w, r, err)
		return
	}

	resp := keyResponse{Database: name, Key: key, Value: *req.Value}
	if req.TTLSeconds > 0 {
		resp.TTLSeconds = &req.TTLSeconds
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDeleteKey(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "dbInstance")
	key := chi.URLParam(r, "key")

	client, err := s.databases.Open(r.Context(), name)
	if err != nil {
		auth.WriteError(w, r, err)
		return
	}

	n, err := client.Del(r.Context(), key)
	if err != nil {
		auth.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, deleteKeyResponse{Database: name, Key: key, Deleted: n})
}

// handleKeyExists answers HEAD with 200 or 404 and no body.
func (s *Server) handleKeyExists(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "dbInstance")
	key := chi.URLParam(r, "key")

	client, err := s.databases.Open(r.Context(), name)
	if err != nil {
		w.WriteHeader(sserr.FromError(err).HTTPStatus())
		return
	}

	n, err := client.Exists(r.Context(), key)
	switch {
	case err != nil:
		w.WriteHeader(sserr.FromError(err).HTTPStatus())
	case n == 0:
		w.WriteHeader(http.StatusNotFound)
	default:
		w.WriteHeader(http.StatusOK)
	}
}
