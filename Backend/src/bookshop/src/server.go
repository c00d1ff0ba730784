package main

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Server dispatches parsed requests to the store and the query resolver and
// funnels every failure through the error classifier.
type Server struct {
	repo   *Repository
	res    *resolver
	events *Events
}

func NewServer(repo *Repository, events *Events) *Server {
	return &Server{repo: repo, res: &resolver{repo: repo}, events: events}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleRoot)
	mux.HandleFunc("/catalog", s.handleCatalog)
	mux.HandleFunc("/catalog/", s.handleCatalog)
	return withLog(mux)
}

// statusWriter remembers the status code for the request log.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func withLog(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		h.ServeHTTP(sw, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", sw.status).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeError(w, ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, rootDocument())
}

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/catalog"), "/")
	if rest == "" {
		if r.Method != http.MethodGet {
			writeError(w, errMethodNotAllowed(r.Method, "catalog"))
			return
		}
		writeJSON(w, http.StatusOK, serviceDocument())
		return
	}

	segs, err := splitPath(rest)
	if err != nil {
		writeError(w, err)
		return
	}
	meta, ok := entitySets[segs[0].name]
	if !ok {
		writeError(w, ErrNotFound)
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.handleGet(w, r, meta, segs)
	case http.MethodPost:
		s.handleCreate(w, r, meta, segs)
	case http.MethodPut:
		s.handleUpdate(w, r, meta, segs)
	case http.MethodDelete:
		s.handleDelete(w, r, meta, segs)
	default:
		writeError(w, errMethodNotAllowed(r.Method, meta.Name))
	}
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request, meta *entitySet, segs []segment) {
	opts, err := parseOptions(r.URL.Query())
	if err != nil {
		writeError(w, err)
		return
	}

	first := segs[0]
	if !first.hasKey {
		// navigation always needs a key segment
		if len(segs) > 1 {
			writeError(w, errMissingKey())
			return
		}
		payload, err := s.res.collection(r.Context(), meta.Name, opts)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)
		return
	}

	key, err := resolveKey(meta, first)
	if err != nil {
		writeError(w, err)
		return
	}
	payload, err := s.res.single(r.Context(), meta.Name, key, segs[1:], opts)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request, meta *entitySet, segs []segment) {
	if segs[0].hasKey || len(segs) > 1 {
		writeError(w, errMethodNotAllowed(r.Method, meta.Name))
		return
	}
	payload, err := decodePayload(r.Body)
	if err != nil {
		writeError(w, err)
		return
	}

	ctx := r.Context()
	var created record
	switch meta.Name {
	case "Authors":
		a, err := decodeAuthor(payload, 0, true)
		if err == nil {
			err = s.repo.CreateAuthor(ctx, a)
		}
		if err != nil {
			writeError(w, err)
			return
		}
		created = authorRecord(*a)
	case "Books":
		b, err := decodeBook(payload, 0, true)
		if err == nil {
			err = s.repo.CreateBook(ctx, b)
		}
		if err != nil {
			writeError(w, err)
			return
		}
		created = bookRecord(*b)
	case "Orders":
		o, err := decodeOrder(payload, "", true)
		if err == nil {
			err = s.repo.CreateOrder(ctx, o)
		}
		if err != nil {
			writeError(w, err)
			return
		}
		s.events.OrderCreated(o)
		created = orderRecord(*o)
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request, meta *entitySet, segs []segment) {
	if !segs[0].hasKey || len(segs) > 1 {
		writeError(w, errMethodNotAllowed(r.Method, meta.Name))
		return
	}
	key, err := resolveKey(meta, segs[0])
	if err != nil {
		writeError(w, err)
		return
	}
	payload, err := decodePayload(r.Body)
	if err != nil {
		writeError(w, err)
		return
	}

	ctx := r.Context()
	var updated record
	switch meta.Name {
	case "Authors":
		a, err := decodeAuthor(payload, key.(int64), false)
		if err == nil {
			err = s.repo.UpdateAuthor(ctx, a)
		}
		if err != nil {
			writeError(w, err)
			return
		}
		updated = authorRecord(*a)
	case "Books":
		b, err := decodeBook(payload, key.(int64), false)
		if err == nil {
			err = s.repo.UpdateBook(ctx, b)
		}
		if err != nil {
			writeError(w, err)
			return
		}
		updated = bookRecord(*b)
	case "Orders":
		o, err := decodeOrder(payload, key.(string), false)
		if err == nil {
			err = s.repo.UpdateOrder(ctx, o)
		}
		if err != nil {
			writeError(w, err)
			return
		}
		updated = orderRecord(*o)
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request, meta *entitySet, segs []segment) {
	if !segs[0].hasKey || len(segs) > 1 {
		writeError(w, errMethodNotAllowed(r.Method, meta.Name))
		return
	}
	key, err := resolveKey(meta, segs[0])
	if err != nil {
		writeError(w, err)
		return
	}

	ctx := r.Context()
	switch meta.Name {
	case "Authors":
		err = s.repo.DeleteAuthor(ctx, key.(int64))
	case "Books":
		err = s.repo.DeleteBook(ctx, key.(int64))
	case "Orders":
		err = s.repo.DeleteOrder(ctx, key.(string))
		if err == nil {
			s.events.OrderDeleted(key.(string))
		}
	}
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---- response writing ----

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("encode response")
	}
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, err error) {
	status, code, message := classify(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Msg("request failed")
	}
	writeJSON(w, status, record{"error": errorBody{Code: code, Message: message}})
}
