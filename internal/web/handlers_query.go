package web

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/golab-ledger/internal/core"
)

// ItemResponse is an item state with its inbound history.
type ItemResponse struct {
	Item       *core.ItemState             `json:"item"`
	AssetValue string                      `json:"assetValue"`
	History    []core.InboundHistoryRecord `json:"history"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleListLayouts returns the registered sheet layouts.
func (s *Server) handleListLayouts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, core.All())
}

// handleAuditLog returns audit events, newest first.
func (s *Server) handleAuditLog(w http.ResponseWriter, r *http.Request) {
	events, err := s.service.AuditLog(r.Context(), auditFilter(r))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

// handleListItems returns every item state.
func (s *Server) handleListItems(w http.ResponseWriter, r *http.Request) {
	items, err := s.service.Items(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// handleGetItem returns one item with its history.
func (s *Server) handleGetItem(w http.ResponseWriter, r *http.Request) {
	st, hist, err := s.service.Item(r.Context(), chi.URLParam(r, "itemID"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ItemResponse{
		Item:       st,
		AssetValue: st.AssetValue().String(),
		History:    hist,
	})
}

// handleListEntries returns committed ledger entries in commit order.
func (s *Server) handleListEntries(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	entries, err := s.service.Entries(r.Context(), core.EntryFilter{
		DocType: core.DocType(q.Get("docType")),
		ItemID:  q.Get("itemId"),
		Limit:   parseIntParam(r, "limit", 0),
		Offset:  parseIntParam(r, "offset", 0),
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// auditFilter reads kind, layout, limit and offset query parameters.
func auditFilter(r *http.Request) core.AuditFilter {
	q := r.URL.Query()
	return core.AuditFilter{
		Kind:   core.Mode(q.Get("kind")),
		Layout: q.Get("layout"),
		Limit:  parseIntParam(r, "limit", core.DefaultAuditLimit),
		Offset: parseIntParam(r, "offset", 0),
	}
}

// parseIntParam parses a positive integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil || i < 1 {
		return defaultVal
	}
	return i
}
