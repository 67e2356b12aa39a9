// Copyright 2025 Ukweli Project
//
// HTTP Server
// Wires the query handlers and Prometheus metrics onto one mux.

package server

import (
	"net/http"

	"github.com/ukweli/ukwelidb/pkg/ledger"
	"github.com/ukweli/ukwelidb/pkg/metrics"
)

// NewMux builds the serving-mode HTTP mux. The metrics handler is optional.
func NewMux(l *ledger.Ledger, m *metrics.Metrics) *http.ServeMux {
	h := NewHandlers(l)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/records", h.HandleRecords)
	mux.HandleFunc("/api/records/", h.HandleRecords)
	mux.HandleFunc("/api/verify", h.HandleVerify)
	mux.HandleFunc("/api/proof", h.HandleProof)
	mux.HandleFunc("/api/state", h.HandleState)
	mux.HandleFunc("/api/users", h.HandleUsers)
	mux.HandleFunc("/health", h.HandleHealth)
	if m != nil {
		mux.Handle("/metrics", m.Handler())
	}
	return mux
}
