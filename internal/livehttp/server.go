package livehttp

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/MJE43/baccarat-roads/internal/games"
	"github.com/MJE43/baccarat-roads/internal/livestore"
	"github.com/MJE43/baccarat-roads/internal/roads"
)

// Handler serves the live table API: scraper ingest plus queries.
type Handler struct {
	store   *livestore.Store
	token   string
	columns int
	logger  *log.Logger
}

// NewHandler creates a live handler. token may be empty to disable token
// checks on ingest.
func NewHandler(store *livestore.Store, token string, columns int, logger *log.Logger) *Handler {
	if columns <= 0 {
		columns = roads.DefaultColumns
	}
	return &Handler{store: store, token: token, columns: columns, logger: logger}
}

// Routes returns the router; mount it under a prefix such as /live.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Post("/ingest", h.handleIngest)

	r.Get("/tables", h.handleTables)
	r.Route("/tables/{id}", func(r chi.Router) {
		r.Get("/", h.handleTableDetail)
		r.Put("/", h.handleTableUpdate)
		r.Delete("/", h.handleTableDelete)
		r.Get("/hands", h.handleTableHands)
		r.Get("/tail", h.handleTableTail)
		r.Get("/roads", h.handleTableRoads)
		r.Get("/export.csv", h.handleTableExport)
	})
	return r
}

// ========== Handlers ==========

// POST /ingest
func (h *Handler) handleIngest(w http.ResponseWriter, r *http.Request) {
	if h.token != "" {
		if r.Header.Get("X-Ingest-Token") != h.token {
			writeJSON(w, http.StatusUnauthorized, errObj("UNAUTHORIZED", "missing or invalid X-Ingest-Token", ""))
			return
		}
	}

	var p ingestPayload
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, errObj("VALIDATION_ERROR", "invalid JSON", ""))
		return
	}
	if p.ID == "" || p.Table == "" {
		writeJSON(w, http.StatusUnprocessableEntity, errObj("VALIDATION_ERROR", "id and table are required", "id/table"))
		return
	}
	if p.Shoe < 1 {
		writeJSON(w, http.StatusUnprocessableEntity, errObj("VALIDATION_ERROR", "shoe must be >= 1", "shoe"))
		return
	}
	winner, err := games.ParseWinner(p.Winner)
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, errObj("VALIDATION_ERROR", err.Error(), "winner"))
		return
	}

	ctx := r.Context()
	tableID, err := h.store.FindOrCreateTable(ctx, p.Table, p.Decks)
	if err != nil {
		h.logger.Printf("live_table_upsert_failed table=%q err=%v", p.Table, err)
		writeJSON(w, http.StatusInternalServerError, errObj("SERVER_ERROR", "failed to upsert table", ""))
		return
	}

	res, err := h.store.IngestHand(ctx, tableID, livestore.LiveHand{
		ExternalID:  p.ID,
		Shoe:        p.Shoe,
		PlayedAt:    parseISOTimeOrNow(p.DateTime),
		Winner:      winner,
		PlayerScore: p.PlayerScore,
		BankerScore: p.BankerScore,
		PlayerPair:  p.PlayerPair,
		BankerPair:  p.BankerPair,
	})
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, livestore.ErrInvalid):
			status = http.StatusUnprocessableEntity
		case errors.Is(err, livestore.ErrNotFound):
			// table deleted between upsert and insert
			status = http.StatusNotFound
		default:
			h.logger.Printf("live_ingest_failed table_id=%s hand=%q err=%v", tableID, p.ID, err)
		}
		writeJSON(w, status, map[string]any{"tableId": tableID.String(), "accepted": false, "error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"tableId":  tableID.String(),
		"accepted": res.Accepted,
		"reason":   res.Reason,
	})
}

// GET /tables
func (h *Handler) handleTables(w http.ResponseWriter, r *http.Request) {
	limit := clampInt(qInt(r, "limit", 100), 1, 500)
	offset := clampInt(qInt(r, "offset", 0), 0, 1_000_000)

	items, err := h.store.ListTables(r.Context(), limit, offset)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errObj("SERVER_ERROR", "failed to list tables", ""))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"tables": items,
		"count":  len(items),
	})
}

// tableID parses the {id} URL parameter, writing a 400 on failure.
func tableID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errObj("VALIDATION_ERROR", "invalid table id", "id"))
		return uuid.Nil, false
	}
	return id, true
}

// GET /tables/{id}
func (h *Handler) handleTableDetail(w http.ResponseWriter, r *http.Request) {
	id, ok := tableID(w, r)
	if !ok {
		return
	}
	item, err := h.store.GetTable(r.Context(), id)
	switch {
	case errors.Is(err, livestore.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errObj("NOT_FOUND", "table not found", "id"))
		return
	case err != nil:
		writeJSON(w, http.StatusInternalServerError, errObj("SERVER_ERROR", "failed to fetch table", ""))
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// DELETE /tables/{id}
func (h *Handler) handleTableDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := tableID(w, r)
	if !ok {
		return
	}
	err := h.store.DeleteTable(r.Context(), id)
	switch {
	case errors.Is(err, livestore.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errObj("NOT_FOUND", "table not found", "id"))
		return
	case err != nil:
		writeJSON(w, http.StatusInternalServerError, errObj("SERVER_ERROR", "failed to delete table", ""))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PUT /tables/{id}
func (h *Handler) handleTableUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := tableID(w, r)
	if !ok {
		return
	}
	var body struct {
		Notes string `json:"notes"`
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, errObj("VALIDATION_ERROR", "invalid JSON", ""))
		return
	}
	err := h.store.UpdateNotes(r.Context(), id, body.Notes)
	switch {
	case errors.Is(err, livestore.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errObj("NOT_FOUND", "table not found", "id"))
		return
	case err != nil:
		writeJSON(w, http.StatusInternalServerError, errObj("SERVER_ERROR", "failed to update notes", ""))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GET /tables/{id}/hands?shoe=&limit=&offset=&order=
func (h *Handler) handleTableHands(w http.ResponseWriter, r *http.Request) {
	id, ok := tableID(w, r)
	if !ok {
		return
	}
	shoe := clampInt(qInt(r, "shoe", 0), 0, 1_000_000)
	limit := clampInt(qInt(r, "limit", 500), 1, 10000)
	offset := clampInt(qInt(r, "offset", 0), 0, 1_000_000)
	order := "asc"
	if strings.EqualFold(r.URL.Query().Get("order"), "desc") {
		order = "desc"
	}

	rows, total, err := h.store.ListHands(r.Context(), id, shoe, order, limit, offset)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errObj("SERVER_ERROR", "failed to list hands", ""))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total": total,
		"rows":  rows,
	})
}

// GET /tables/{id}/tail?since_id=&limit=
func (h *Handler) handleTableTail(w http.ResponseWriter, r *http.Request) {
	id, ok := tableID(w, r)
	if !ok {
		return
	}
	sinceID := qInt64(r, "since_id", 0)
	limit := clampInt(qInt(r, "limit", 1000), 1, 5000)

	rows, err := h.store.TailHands(r.Context(), id, sinceID, limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errObj("SERVER_ERROR", "failed to tail hands", ""))
		return
	}
	lastID := sinceID
	if len(rows) > 0 {
		lastID = rows[len(rows)-1].ID
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"rows":   rows,
		"lastID": lastID,
	})
}

// GET /tables/{id}/roads?shoe=
func (h *Handler) handleTableRoads(w http.ResponseWriter, r *http.Request) {
	id, ok := tableID(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	if _, err := h.store.GetTable(ctx, id); err != nil {
		if errors.Is(err, livestore.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errObj("NOT_FOUND", "table not found", "id"))
			return
		}
		writeJSON(w, http.StatusInternalServerError, errObj("SERVER_ERROR", "failed to fetch table", ""))
		return
	}

	shoe, history, err := h.store.ShoeHistory(ctx, id, clampInt(qInt(r, "shoe", 0), 0, 1_000_000))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errObj("SERVER_ERROR", "failed to load shoe", ""))
		return
	}

	all := roads.Build(history, roads.WithColumns(h.columns))
	streaks := all.BigRoad.Streaks()
	if streaks == nil {
		streaks = []roads.Streak{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"tableId":      id.String(),
		"shoe":         shoe,
		"hands":        len(history),
		"roads":        all,
		"streaks":      streaks,
		"dragon_tails": all.BigRoad.DragonTails(),
	})
}

// GET /tables/{id}/export.csv
func (h *Handler) handleTableExport(w http.ResponseWriter, r *http.Request) {
	id, ok := tableID(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="table_export.csv"`)

	if err := h.store.ExportCSV(r.Context(), w, id); err != nil {
		// headers are already sent
		h.logger.Printf("live_export_failed table_id=%s err=%v", id, err)
	}
}

// ========== Types & helpers ==========

type ingestPayload struct {
	ID          string `json:"id"`
	Table       string `json:"table"`
	Decks       int    `json:"decks"`
	Shoe        int    `json:"shoe"`
	DateTime    string `json:"dateTime"`
	Winner      string `json:"winner"` // P|B|T or full names
	PlayerScore int    `json:"playerScore"`
	BankerScore int    `json:"bankerScore"`
	PlayerPair  bool   `json:"playerPair"`
	BankerPair  bool   `json:"bankerPair"`
}

func parseISOTimeOrNow(s string) time.Time {
	if s == "" {
		return time.Now().UTC()
	}
	layouts := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05.000Z07:00",
	}
	for _, l := range layouts {
		if t, err := time.Parse(l, s); err == nil {
			return t.UTC()
		}
	}
	return time.Now().UTC()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func errObj(code, msg, field string) map[string]any {
	e := map[string]any{
		"code":    code,
		"message": msg,
	}
	if field != "" {
		e["field"] = field
	}
	return map[string]any{"error": e}
}

func qInt(r *http.Request, key string, def int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return i
}

func qInt64(r *http.Request, key string, def int64) int64 {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def
	}
	i, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return def
	}
	return i
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
