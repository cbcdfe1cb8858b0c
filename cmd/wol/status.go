/*
Copyright 2025.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"sigs.k8s.io/controller-runtime/pkg/metrics"
)

// statusServer serves health probes and the WOL metrics
type statusServer struct {
	server *http.Server
	log    logr.Logger
}

func newStatusServer(addr string, ready func() bool, log logr.Logger) *statusServer {
	return &statusServer{
		server: &http.Server{
			Addr:              addr,
			Handler:           newStatusMux(ready, log),
			ReadHeaderTimeout: 5 * time.Second,
		},
		log: log,
	}
}

func newStatusMux(ready func() bool, log logr.Logger) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeProbe(w, http.StatusOK, "ok", log)
	})

	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if !ready() {
			writeProbe(w, http.StatusServiceUnavailable, "UDP listener not active", log)
			return
		}
		writeProbe(w, http.StatusOK, "ready", log)
	})

	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	return mux
}

func writeProbe(w http.ResponseWriter, status int, body string, log logr.Logger) {
	w.WriteHeader(status)
	if _, err := w.Write([]byte(body)); err != nil {
		log.Error(err, "Failed to write probe response")
	}
}

// Run serves until ctx is done
func (s *statusServer) Run(ctx context.Context) {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			s.log.Error(err, "Failed to shutdown status server")
		}
	}()

	s.log.Info("Starting status server", "address", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.log.Error(err, "Status server failed")
	}
}
