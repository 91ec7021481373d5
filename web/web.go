// Copyright (c) 2025 Bob Vawter (bob@vawter.org)
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.
//
// SPDX-License-Identifier: MIT

// Package web exposes the service and gate records over a JSON HTTP
// API, along with health and metrics endpoints.
package web

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"vawter.tech/porter/core"
	"vawter.tech/porter/store"
)

// eventInterval is how often the gate event stream re-evaluates the
// registry.
const eventInterval = time.Second

// Server routes API requests to the porter core.
type Server struct {
	porter   *core.Porter
	upgrader websocket.Upgrader
}

// New constructs the API server around a porter core.
func New(p *core.Porter) *Server {
	return &Server{porter: p}
}

// Handler returns the routing table for the API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.health)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /api/services", s.listServices)
	mux.HandleFunc("POST /api/services", s.createService)
	mux.HandleFunc("GET /api/services/{id}", s.getService)
	mux.HandleFunc("PUT /api/services/{id}", s.updateService)
	mux.HandleFunc("DELETE /api/services/{id}", s.deleteService)

	mux.HandleFunc("GET /api/gates", s.listGates)
	mux.HandleFunc("POST /api/gates", s.createGate)
	mux.HandleFunc("GET /api/gates/{id}", s.getGate)
	mux.HandleFunc("PUT /api/gates/{id}", s.updateGate)
	mux.HandleFunc("DELETE /api/gates/{id}", s.deleteGate)
	mux.HandleFunc("GET /api/gates/events", s.gateEvents)

	return mux
}

type serviceJSON struct {
	ID        int64      `json:"id"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
	Host      string     `json:"host"`
	Port      int        `json:"port"`
}

type gateJSON struct {
	ID        int64      `json:"id"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
	ServiceID int64      `json:"service_id"`
	Host      string     `json:"host"`
	Port      int        `json:"port"`
	Ready     bool       `json:"ready"`
}

type serviceInput struct {
	Host *string `json:"host"`
	Port *int    `json:"port"`
}

type gateInput struct {
	ServiceID *int64  `json:"service_id"`
	Host      *string `json:"host"`
	Port      *int    `json:"port"`
}

func serviceView(svc *store.Service) *serviceJSON {
	return &serviceJSON{
		ID:        svc.ID,
		CreatedAt: svc.CreatedAt,
		UpdatedAt: svc.UpdatedAt,
		Host:      svc.Host,
		Port:      svc.Port,
	}
}

func gateView(g *core.GateStatus) *gateJSON {
	return &gateJSON{
		ID:        g.ID,
		CreatedAt: g.CreatedAt,
		UpdatedAt: g.UpdatedAt,
		ServiceID: g.ServiceID,
		Host:      g.Host,
		Port:      g.Port,
		Ready:     g.Ready,
	}
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if !s.porter.Ready() {
		http.Error(w, "proxy registry not ready", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listServices(w http.ResponseWriter, r *http.Request) {
	services, err := s.porter.Services(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]*serviceJSON, len(services))
	for i, svc := range services {
		out[i] = serviceView(svc)
	}
	s.write(w, r, http.StatusOK, out)
}

func (s *Server) createService(w http.ResponseWriter, r *http.Request) {
	var in serviceInput
	if !s.read(w, r, &in) {
		return
	}
	if in.Host == nil || in.Port == nil {
		http.Error(w, "host and port are required", http.StatusBadRequest)
		return
	}
	svc, err := s.porter.CreateService(r.Context(), *in.Host, *in.Port)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.write(w, r, http.StatusCreated, serviceView(svc))
}

func (s *Server) getService(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	svc, err := s.porter.Service(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.write(w, r, http.StatusOK, serviceView(svc))
}

func (s *Server) updateService(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var in serviceInput
	if !s.read(w, r, &in) {
		return
	}
	svc, err := s.porter.UpdateService(r.Context(), id, in.Host, in.Port)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.write(w, r, http.StatusOK, serviceView(svc))
}

func (s *Server) deleteService(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := s.porter.DeleteService(r.Context(), id); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listGates(w http.ResponseWriter, r *http.Request) {
	gates, err := s.porter.Gates(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]*gateJSON, len(gates))
	for i, g := range gates {
		out[i] = gateView(g)
	}
	s.write(w, r, http.StatusOK, out)
}

func (s *Server) createGate(w http.ResponseWriter, r *http.Request) {
	var in gateInput
	if !s.read(w, r, &in) {
		return
	}
	if in.ServiceID == nil || in.Host == nil || in.Port == nil {
		http.Error(w, "service_id, host and port are required", http.StatusBadRequest)
		return
	}
	g, err := s.porter.CreateGate(r.Context(), *in.ServiceID, *in.Host, *in.Port)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.write(w, r, http.StatusCreated, gateView(g))
}

func (s *Server) getGate(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	g, err := s.porter.Gate(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.write(w, r, http.StatusOK, gateView(g))
}

func (s *Server) updateGate(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var in gateInput
	if !s.read(w, r, &in) {
		return
	}
	g, err := s.porter.UpdateGate(r.Context(), id, in.ServiceID, in.Host, in.Port)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.write(w, r, http.StatusOK, gateView(g))
}

func (s *Server) deleteGate(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := s.porter.DeleteGate(r.Context(), id); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// gateEvents streams gate snapshots over a websocket. The gates are
// re-read every eventInterval, and a frame is pushed when the snapshot
// differs from the last one sent.
func (s *Server) gateEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.DebugContext(r.Context(), "websocket upgrade failed", slog.Any("error", err))
		return
	}
	defer func() { _ = conn.Close() }()

	ticker := time.NewTicker(eventInterval)
	defer ticker.Stop()

	var last []byte
	for {
		gates, err := s.porter.Gates(r.Context())
		if err != nil {
			return
		}
		out := make([]*gateJSON, len(gates))
		for i, g := range gates {
			out[i] = gateView(g)
		}
		frame, err := json.Marshal(out)
		if err != nil {
			return
		}
		if !bytes.Equal(frame, last) {
			last = frame
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		}

		select {
		case <-ticker.C:
		case <-r.Context().Done():
			return
		}
	}
}

func (s *Server) read(w http.ResponseWriter, r *http.Request, into any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(into); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func (s *Server) write(w http.ResponseWriter, r *http.Request, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.DebugContext(r.Context(), "could not write response", slog.Any("error", err))
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, store.ErrNotFound) {
		status = http.StatusNotFound
	}
	slog.DebugContext(r.Context(), "request failed",
		slog.String("path", r.URL.Path),
		slog.Any("error", err))
	http.Error(w, err.Error(), status)
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, "malformed id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}
