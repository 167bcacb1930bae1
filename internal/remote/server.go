package remote

import (
	"bufio"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/hyperengineering/canvass"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rohanthewiz/logger"
)

// maxDocumentBytes bounds a single PUT body.
const maxDocumentBytes = 1 << 20

// Server exposes a DocumentStore over HTTP:
//
//	GET    /healthz
//	GET    /metrics
//	GET    /v1/users/{uid}                         collection counts
//	DELETE /v1/users/{uid}                         delete subtree
//	GET    /v1/users/{uid}/{collection}            list
//	GET    /v1/users/{uid}/{collection}/_subscribe websocket, msgpack snapshots
//	GET    /v1/users/{uid}/{collection}/{id}
//	PUT    /v1/users/{uid}/{collection}/{id}
//	DELETE /v1/users/{uid}/{collection}/{id}
type Server struct {
	store       DocumentStore
	apiKey      string
	collections []string
	router      chi.Router

	requests    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	subscribers prometheus.Gauge
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithCollections sets the collections counted by the user summary endpoint.
func WithCollections(names ...string) ServerOption {
	return func(s *Server) { s.collections = names }
}

// NewServer builds the router. Metrics are registered on reg; pass
// prometheus.NewRegistry() in tests to avoid duplicate registration.
func NewServer(store DocumentStore, apiKey string, reg *prometheus.Registry, opts ...ServerOption) *Server {
	factory := promauto.With(reg)
	s := &Server{
		store:       store,
		apiKey:      apiKey,
		collections: []string{canvass.CollectionAppointments, canvass.CollectionLeads, canvass.CollectionCheckIns},
		requests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "canvass_remote_requests_total",
				Help: "Total number of document API requests",
			},
			[]string{"method", "route", "status"},
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "canvass_remote_request_duration_seconds",
				Help:    "Duration of document API requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		subscribers: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "canvass_remote_active_subscriptions",
				Help: "Number of open snapshot subscriptions",
			},
		),
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	}))
	r.Use(s.metrics)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	r.Route("/v1/users/{uid}", func(r chi.Router) {
		r.Use(s.requireAPIKey)
		r.Get("/", s.handleUserSummary)
		r.Delete("/", s.handleDeleteUser)
		r.Get("/{collection}", s.handleList)
		r.Get("/{collection}/_subscribe", s.handleSubscribe)
		r.Get("/{collection}/{id}", s.handleGet)
		r.Put("/{collection}/{id}", s.handleSet)
		r.Delete("/{collection}/{id}", s.handleDelete)
	})

	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// Hijack passes through so websocket upgrades work behind the metrics middleware.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	return http.NewResponseController(w.ResponseWriter).Hijack()
}

func (s *Server) metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unmatched"
		}
		s.requests.WithLabelValues(r.Method, route, strconv.Itoa(sw.status)).Inc()
		s.duration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

func (s *Server) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey != "" {
			token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if subtle.ConstantTimeCompare([]byte(token), []byte(s.apiKey)) != 1 {
				writeError(w, http.StatusUnauthorized, "invalid api key")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func docPath(r *http.Request) string {
	return DocumentPath(chi.URLParam(r, "uid"), chi.URLParam(r, "collection"), chi.URLParam(r, "id"))
}

func collPath(r *http.Request) string {
	return CollectionPath(chi.URLParam(r, "uid"), chi.URLParam(r, "collection"))
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	doc, err := s.store.Get(r.Context(), docPath(r))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleSet(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxDocumentBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body")
		return
	}
	if len(body) > maxDocumentBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "document too large")
		return
	}
	var doc Document
	if err := json.Unmarshal(body, &doc); err != nil || doc == nil {
		writeError(w, http.StatusBadRequest, "body must be a JSON object")
		return
	}
	if err := s.store.Set(r.Context(), docPath(r), doc); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Delete(r.Context(), docPath(r)); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	docs, err := s.store.List(r.Context(), collPath(r))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse{Documents: docs})
}

func (s *Server) handleUserSummary(w http.ResponseWriter, r *http.Request) {
	uid := chi.URLParam(r, "uid")
	summary := userSummary{Collections: make(map[string]int, len(s.collections))}
	for _, name := range s.collections {
		docs, err := s.store.List(r.Context(), CollectionPath(uid, name))
		if err != nil {
			writeStoreError(w, err)
			return
		}
		summary.Collections[name] = len(docs)
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteUserData(r.Context(), chi.URLParam(r, "uid")); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSubscribe streams snapshots. Only the latest pending snapshot is kept
// so a slow client never blocks the backing store.
func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	path := collPath(r)
	if _, _, err := ParseCollectionPath(path); err != nil {
		writeStoreError(w, err)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		logger.LogErr(err, "websocket upgrade failed", "collection", path)
		return
	}
	defer func() { _ = conn.CloseNow() }()

	s.subscribers.Inc()
	defer s.subscribers.Dec()

	// CloseRead handles control frames and cancels ctx when the client goes away.
	ctx := conn.CloseRead(r.Context())

	latest := make(chan Snapshot, 1)
	sub, err := s.store.Subscribe(ctx, path, func(snap Snapshot) {
		select {
		case <-latest:
		default:
		}
		select {
		case latest <- snap:
		default:
		}
	})
	if err != nil {
		_ = conn.Close(websocket.StatusInternalError, "subscribe failed")
		return
	}
	defer sub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case snap := <-latest:
			data, err := encodeSnapshot(snap)
			if err != nil {
				logger.LogErr(err, "encode snapshot failed", "collection", path)
				continue
			}
			writeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			err = conn.Write(writeCtx, websocket.MessageBinary, data)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, canvass.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	switch canvass.KindOf(err) {
	case canvass.KindValidation:
		writeError(w, http.StatusBadRequest, err.Error())
	case canvass.KindPermission:
		writeError(w, http.StatusForbidden, err.Error())
	case canvass.KindAuthentication:
		writeError(w, http.StatusUnauthorized, err.Error())
	default:
		logger.LogErr(err, "document store error")
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
	}
}
