// Package server exposes the ground relay over HTTP: the latest telemetry,
// server-sent event streams of telemetry and images, and command submission.
package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/roman-kulish/rocket-telemetry/internal/relay"
	"github.com/roman-kulish/rocket-telemetry/internal/telemetry"
)

const (
	statusMessage = "Ground station up, poll /sse or /latest for data"
	noDataMessage = "No data received"

	// maxInstruction bounds a submitted command to one radio payload
	maxInstruction = telemetry.MaxPayload

	shutdownTimeout = 5 * time.Second
)

// QueueStats describes one relay queue
type QueueStats struct {
	Len     int    `json:"len"`
	Cap     int    `json:"cap"`
	Dropped uint64 `json:"dropped"`
}

// TelemetryResponse is the body of GET /api/telemetry
type TelemetryResponse struct {
	ReceivedAt *time.Time            `json:"receivedAt,omitempty"`
	Raw        string                `json:"raw,omitempty"`
	Telemetry  *telemetry.Telemetry  `json:"telemetry,omitempty"`
	Queues     map[string]QueueStats `json:"queues"`
}

func WithLogger(logger *slog.Logger) func(*Server) {
	return func(s *Server) {
		s.logger = logger
	}
}

type Server struct {
	station *relay.Station
	mux     *http.ServeMux
	logger  *slog.Logger
}

func New(station *relay.Station, options ...func(*Server)) *Server {
	s := Server{
		station: station,
		mux:     http.NewServeMux(),
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, option := range options {
		option(&s)
	}

	s.mux.HandleFunc("GET /status", s.handleStatus)
	s.mux.HandleFunc("GET /latest", s.handleLatest)
	s.mux.HandleFunc("GET /sse", s.handleTelemetryStream)
	s.mux.HandleFunc("GET /sse2", s.handleImageStream)
	s.mux.HandleFunc("POST /instruction", s.handleInstruction)
	s.mux.HandleFunc("GET /api/telemetry", s.handleTelemetry)

	return &s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is done
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", slog.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("serving http: %w", err)

	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down http server: %w", err)
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serving http: %w", err)
		}
		return nil
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = io.WriteString(w, statusMessage)
}

func (s *Server) handleLatest(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")

	latest := s.station.Latest.Load()
	if latest == nil {
		_, _ = io.WriteString(w, noDataMessage)
		return
	}
	_, _ = w.Write(trimLine(latest.Raw))
}

func (s *Server) handleTelemetryStream(w http.ResponseWriter, r *http.Request) {
	s.stream(w, r, s.station.Telemetry, func(msg []byte) string {
		return string(trimLine(msg))
	})
}

func (s *Server) handleImageStream(w http.ResponseWriter, r *http.Request) {
	s.stream(w, r, s.station.Images, base64.StdEncoding.EncodeToString)
}

// stream writes every message dequeued from q as an event until the client
// goes away. Concurrent streams of one queue share its messages.
func (s *Server) stream(w http.ResponseWriter, r *http.Request, q *relay.Queue, encode func([]byte) string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	logger := s.logger.With(slog.String("stream", q.Name()), slog.String("remote", r.RemoteAddr))
	logger.Info("stream client connected")

	for {
		msg, err := q.Take(r.Context())
		if err != nil {
			logger.Info("stream client disconnected")
			return
		}

		if _, err = fmt.Fprintf(w, "data: %s\n\n", encode(msg)); err != nil {
			logger.Warn("writing event", slog.String("error", err.Error()))
			return
		}
		flusher.Flush()
	}
}

func (s *Server) handleInstruction(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxInstruction+1))
	if err != nil {
		http.Error(w, "reading instruction", http.StatusBadRequest)
		return
	}

	cmd := trimLine(body)
	switch {
	case len(cmd) == 0:
		http.Error(w, "empty instruction", http.StatusBadRequest)
		return
	case len(cmd) > maxInstruction:
		http.Error(w, "instruction too large", http.StatusRequestEntityTooLarge)
		return
	}

	s.logger.Info("instruction received", slog.String("instruction", string(cmd)))

	if !s.station.Submit(cmd) {
		http.Error(w, "command queue full", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusAccepted)
	_, _ = io.WriteString(w, "ACK")
}

func (s *Server) handleTelemetry(w http.ResponseWriter, _ *http.Request) {
	resp := TelemetryResponse{
		Queues: map[string]QueueStats{},
	}
	for _, q := range []*relay.Queue{s.station.Telemetry, s.station.Images, s.station.Commands} {
		resp.Queues[q.Name()] = QueueStats{Len: q.Len(), Cap: q.Cap(), Dropped: q.Dropped()}
	}

	if latest := s.station.Latest.Load(); latest != nil {
		at := latest.At
		resp.ReceivedAt = &at
		resp.Raw = string(trimLine(latest.Raw))
		resp.Telemetry = latest.Frame
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Warn("encoding telemetry response", slog.String("error", err.Error()))
	}
}

func trimLine(p []byte) []byte {
	return []byte(strings.TrimRight(string(p), "\x00\r\n "))
}
