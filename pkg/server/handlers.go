// Copyright 2025 Ukweli Project
//
// Ledger Query API Handlers
// Read-only HTTP endpoints over the ledger façade for dashboards and
// tooling. Mutations stay on the CLI: the serving mode never appends.

package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/ukweli/ukwelidb/pkg/ledger"
)

// Handlers provides HTTP handlers for ledger queries.
type Handlers struct {
	ledger *ledger.Ledger
}

// NewHandlers creates new ledger query handlers.
func NewHandlers(l *ledger.Ledger) *Handlers {
	return &Handlers{ledger: l}
}

// HandleRecords handles GET /api/records and GET /api/records/{id}.
func (h *Handlers) HandleRecords(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	rest := strings.TrimPrefix(r.URL.Path, "/api/records")
	rest = strings.Trim(rest, "/")
	if rest == "" {
		writeJSON(w, h.ledger.Records())
		return
	}

	id, err := strconv.ParseUint(rest, 10, 64)
	if err != nil {
		http.Error(w, `{"error":"invalid record id"}`, http.StatusBadRequest)
		return
	}
	rec, err := h.ledger.Record(id)
	if err != nil {
		http.Error(w, fmt.Sprintf(`{"error":%q}`, err.Error()), http.StatusNotFound)
		return
	}
	writeJSON(w, rec)
}

// HandleVerify handles GET /api/verify.
func (h *Handlers) HandleVerify(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	report, err := h.ledger.Verify()
	if err != nil {
		http.Error(w, fmt.Sprintf(`{"error":%q}`, err.Error()), http.StatusInternalServerError)
		return
	}
	writeJSON(w, report)
}

// HandleState handles GET /api/state?workflow=W&entity=E.
func (h *Handlers) HandleState(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	workflowName := r.URL.Query().Get("workflow")
	entityID := r.URL.Query().Get("entity")
	if workflowName == "" || entityID == "" {
		http.Error(w, `{"error":"workflow and entity query parameters are required"}`, http.StatusBadRequest)
		return
	}

	state, err := h.ledger.CurrentState(workflowName, entityID)
	if err != nil {
		http.Error(w, fmt.Sprintf(`{"error":%q}`, err.Error()), http.StatusNotFound)
		return
	}
	writeJSON(w, map[string]string{
		"workflow": workflowName,
		"entity":   entityID,
		"state":    state,
	})
}

// HandleProof handles GET /api/proof?id=N.
func (h *Handlers) HandleProof(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	idParam := r.URL.Query().Get("id")
	id, err := strconv.ParseUint(idParam, 10, 64)
	if err != nil {
		http.Error(w, `{"error":"invalid id parameter"}`, http.StatusBadRequest)
		return
	}
	proof, err := h.ledger.InclusionProof(id)
	if err != nil {
		http.Error(w, fmt.Sprintf(`{"error":%q}`, err.Error()), http.StatusNotFound)
		return
	}
	writeJSON(w, proof)
}

// HandleUsers handles GET /api/users.
func (h *Handlers) HandleUsers(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	type userView struct {
		Name      string   `json:"name"`
		PublicKey string   `json:"public_key"`
		Roles     []string `json:"roles"`
	}
	users := h.ledger.Users()
	out := make([]userView, 0, len(users))
	for _, u := range users {
		out = append(out, userView{
			Name:      u.Name,
			PublicKey: fmt.Sprintf("%x", u.PublicKey),
			Roles:     u.RoleList(),
		})
	}
	writeJSON(w, out)
}

// HandleHealth handles GET /health.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]interface{}{
		"status":       "ok",
		"database":     h.ledger.Name(),
		"chain_height": h.ledger.Len(),
	})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error":"failed to encode response"}`, http.StatusInternalServerError)
	}
}
