package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/MJE43/baccarat-roads/internal/config"
	"github.com/MJE43/baccarat-roads/internal/engine"
	"github.com/MJE43/baccarat-roads/internal/games"
	"github.com/MJE43/baccarat-roads/internal/roads"
	"github.com/MJE43/baccarat-roads/internal/scriptstore"
	"github.com/MJE43/baccarat-roads/internal/store"
)

// mockDB is a simple mock implementation of store.DB for testing
type mockDB struct {
	err  error
	runs []*store.Run
}

func (m *mockDB) Close() error { return nil }
func (m *mockDB) Migrate() error { return nil }
func (m *mockDB) SaveRun(run *store.Run) error { m.runs = append(m.runs, run); return m.err }
func (m *mockDB) SaveHits(runID string, hits []store.Hit) error { return m.err }
func (m *mockDB) GetRun(id string) (*store.Run, error) { return nil, store.ErrNotFound }
func (m *mockDB) GetHits(runID string, limit, offset int) ([]store.Hit, error) { return nil, m.err }
func (m *mockDB) ListRuns(query store.RunsQuery) (*store.RunsList, error) { return &store.RunsList{}, m.err }
func (m *mockDB) GetRunHits(runID string, page, perPage int) (*store.HitsPage, error) { return nil, m.err }

var testSeeds = engine.Seeds{Server: "test_server_seed", Client: "test_client_seed"}

func newTestServer(t *testing.T, db store.DB, mutate ...func(*config.Config)) http.Handler {
	t.Helper()
	cfg := config.Default()
	cfg.Scan.Workers = 2
	for _, m := range mutate {
		m(&cfg)
	}
	return NewServer(cfg, db, WithLogger(log.New(io.Discard, "", 0))).Routes()
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = bytes.NewBufferString(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
}

func expectError(t *testing.T, w *httptest.ResponseRecorder, status int, errType string) {
	t.Helper()
	if w.Code != status {
		t.Fatalf("Expected status %d, got %d: %s", status, w.Code, w.Body.String())
	}
	if got := w.Header().Get("X-Error-Type"); got != errType {
		t.Errorf("Expected X-Error-Type %q, got %q", errType, got)
	}
	var engineErr EngineError
	decodeBody(t, w, &engineErr)
	if engineErr.Type != errType {
		t.Errorf("Expected error type %q, got %q", errType, engineErr.Type)
	}
	if engineErr.Timestamp == "" {
		t.Error("Expected timestamp on error")
	}
}

func TestHealthEndpoint(t *testing.T) {
	w := doJSON(t, newTestServer(t, &mockDB{}), "GET", "/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var resp HealthCheckResponse
	decodeBody(t, w, &resp)
	if resp.Status != HealthStatusHealthy {
		t.Errorf("Expected healthy, got %s (%+v)", resp.Status, resp.Checks)
	}
	if len(resp.Checks) != 3 {
		t.Errorf("Expected 3 checks, got %d", len(resp.Checks))
	}

	w = doJSON(t, newTestServer(t, nil), "GET", "/health", nil)
	decodeBody(t, w, &resp)
	if w.Code != http.StatusOK || resp.Status != HealthStatusDegraded {
		t.Errorf("Expected degraded 200 without a store, got %d %s", w.Code, resp.Status)
	}

	w = doJSON(t, newTestServer(t, &mockDB{err: errors.New("disk gone")}), "GET", "/health", nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 with a failing store, got %d", w.Code)
	}
}

func TestLivenessAndVersion(t *testing.T) {
	h := newTestServer(t, nil)

	w := doJSON(t, h, "GET", "/health/live", nil)
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	w = doJSON(t, h, "GET", "/api/v1/version", nil)
	var info VersionInfo
	decodeBody(t, w, &info)
	if info.EngineVersion != EngineVersion {
		t.Errorf("Expected engine version %q, got %q", EngineVersion, info.EngineVersion)
	}
	if info.GoVersion == "" {
		t.Error("Expected go version from build info")
	}
	if w.Header().Get("X-Engine-Version") == "" {
		t.Error("Expected X-Engine-Version header")
	}
}

func TestRequestLogFingerprintsSeeds(t *testing.T) {
	var buf bytes.Buffer
	h := NewServer(config.Default(), nil, WithLogger(log.New(&buf, "", 0))).Routes()

	w := doJSON(t, h, "POST", "/api/v1/shoe", ShoeRequest{Seeds: testSeeds, Nonce: 1, Hands: 2})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	logs := buf.String()
	if strings.Contains(logs, testSeeds.Server) || strings.Contains(logs, testSeeds.Client) {
		t.Fatalf("raw seed leaked into logs:\n%s", logs)
	}
	want := "server_hash=" + engine.HashServerSeed(testSeeds.Server)[:12] +
		" client_hash=" + engine.HashServerSeed(testSeeds.Client)[:12]
	var access string
	for _, line := range strings.Split(logs, "\n") {
		if strings.HasPrefix(line, "http ") {
			access = line
		}
	}
	if !strings.Contains(access, "route=/api/v1/shoe") || !strings.Contains(access, "status=200") {
		t.Errorf("unexpected access line %q", access)
	}
	if !strings.Contains(access, want) {
		t.Errorf("access line %q missing %q", access, want)
	}

	buf.Reset()
	doJSON(t, h, "GET", "/health/live", nil)
	if strings.Contains(buf.String(), "server_hash=") {
		t.Errorf("seedless request logged fingerprints: %q", buf.String())
	}
}

func TestCORSPreflight(t *testing.T) {
	w := doJSON(t, newTestServer(t, nil), "OPTIONS", "/api/v1/scan", nil)
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("Expected CORS header")
	}
}

func TestSeedHashEndpoint(t *testing.T) {
	h := newTestServer(t, nil)

	w := doJSON(t, h, "POST", "/api/v1/seed/hash", map[string]string{"server_seed": "abc"})
	var resp struct {
		Hash string `json:"hash"`
	}
	decodeBody(t, w, &resp)
	if resp.Hash != engine.HashServerSeed("abc") {
		t.Errorf("Expected hash %s, got %s", engine.HashServerSeed("abc"), resp.Hash)
	}

	w = doJSON(t, h, "POST", "/api/v1/seed/hash", map[string]string{})
	expectError(t, w, http.StatusBadRequest, ErrTypeValidation)
}

func TestHandEndpoint(t *testing.T) {
	h := newTestServer(t, nil)

	// Deal order P1 B1 P2 B2: Player 9+K, Banker 8+A. A hand needs six
	// cards available even when only four are used.
	w := doJSON(t, h, "POST", "/api/v1/hand", HandRequest{Codes: []string{"9S", "8D", "KH", "AC", "2C", "3H"}})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp HandResponse
	decodeBody(t, w, &resp)
	if resp.Result.Winner != games.Tie || resp.CardsUsed != 4 || !resp.Natural {
		t.Errorf("Expected natural tie with 4 cards, got %+v", resp)
	}
	if resp.Result.PlayerScore != 9 || resp.Result.BankerScore != 9 {
		t.Errorf("Expected 9-9, got %d-%d", resp.Result.PlayerScore, resp.Result.BankerScore)
	}

	body := `{"cards":[{"rank":"A","suit":"S"},{"rank":"9","suit":"H"},{"rank":"2","suit":"D"},{"rank":"K","suit":"C"},{"rank":"5","suit":"S"},{"rank":"6","suit":"S"}]}`
	w = doJSON(t, h, "POST", "/api/v1/hand", body)
	decodeBody(t, w, &resp)
	if resp.Result.Winner != games.Banker || resp.CardsUsed != 4 {
		t.Errorf("Expected Banker natural with 4 cards, got %+v", resp.Result)
	}

	tests := []struct {
		name    string
		body    any
		status  int
		errType string
	}{
		{"bad code", HandRequest{Codes: []string{"9S", "ZZ", "KH", "AC", "2C", "3H"}}, http.StatusBadRequest, ErrTypeInvalidCard},
		{"bad card object", `{"cards":[{"rank":"11","suit":"S"}]}`, http.StatusBadRequest, ErrTypeInvalidCard},
		{"too few cards", HandRequest{Codes: []string{"9S", "8D", "KH", "AC", "2C"}}, http.StatusUnprocessableEntity, ErrTypeInsufficientShoe},
		{"malformed json", `{"codes":`, http.StatusBadRequest, ErrTypeValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expectError(t, doJSON(t, h, "POST", "/api/v1/hand", tt.body), tt.status, tt.errType)
		})
	}
}

func TestRoadsEndpoint(t *testing.T) {
	h := newTestServer(t, nil)

	w := doJSON(t, h, "POST", "/api/v1/roads", RoadsRequest{Winners: "PPB"})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Streaks     []roads.Streak `json:"streaks"`
		DragonTails int            `json:"dragon_tails"`
		Roads       struct {
			BigRoad struct {
				Path []roads.PathEntry `json:"path"`
			} `json:"big_road"`
			BigEyeBoy [][]*string `json:"big_eye_boy"`
		} `json:"roads"`
	}
	decodeBody(t, w, &resp)

	if len(resp.Streaks) != 2 || resp.Streaks[0].Length != 2 || resp.Streaks[1].Winner != games.Banker {
		t.Errorf("Expected streaks P2 B1, got %+v", resp.Streaks)
	}
	wantCols := []int{0, 0, 1}
	for i, e := range resp.Roads.BigRoad.Path {
		if e.LogicalCol != wantCols[i] {
			t.Errorf("path %d: expected logical col %d, got %d", i, wantCols[i], e.LogicalCol)
		}
	}
	if len(resp.Roads.BigEyeBoy) != roads.Rows {
		t.Errorf("Expected %d derived rows, got %d", roads.Rows, len(resp.Roads.BigEyeBoy))
	}

	history := []games.HandResult{{Winner: games.Tie}, {Winner: "banker"}}
	w = doJSON(t, h, "POST", "/api/v1/roads", RoadsRequest{History: history})
	decodeBody(t, w, &resp)
	if len(resp.Streaks) != 1 || resp.Streaks[0].Winner != games.Banker {
		t.Errorf("Expected one Banker streak from history, got %+v", resp.Streaks)
	}

	w = doJSON(t, h, "POST", "/api/v1/roads", RoadsRequest{})
	decodeBody(t, w, &resp)
	if resp.Streaks == nil || len(resp.Streaks) != 0 {
		t.Errorf("Expected empty streak list, got %v", resp.Streaks)
	}

	expectError(t, doJSON(t, h, "POST", "/api/v1/roads", RoadsRequest{Winners: "PXB"}), http.StatusBadRequest, ErrTypeValidation)
	expectError(t, doJSON(t, h, "POST", "/api/v1/roads", RoadsRequest{Winners: "P", Columns: -1}), http.StatusBadRequest, ErrTypeValidation)
}

func TestDerivedRoadEndpoint(t *testing.T) {
	h := newTestServer(t, nil)

	w := doJSON(t, h, "POST", "/api/v1/roads/derived", DerivedRequest{Winners: "BBPPPBB", Offset: roads.BigEyeBoy})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Offset int         `json:"offset"`
		Grid   [][]*string `json:"grid"`
	}
	decodeBody(t, w, &resp)
	want := []string{"red", "blue", "red"}
	for col, color := range want {
		if got := resp.Grid[0][col]; got == nil || *got != color {
			t.Errorf("(0,%d): expected %s, got %v", col, color, got)
		}
	}

	for _, offset := range []int{0, 4} {
		w := doJSON(t, h, "POST", "/api/v1/roads/derived", DerivedRequest{Winners: "BBP", Offset: offset})
		expectError(t, w, http.StatusBadRequest, ErrTypeInvalidOffset)
	}
}

type shoeBody struct {
	ServerSeedHash string             `json:"server_seed_hash"`
	BurnCard       games.Card         `json:"burn_card"`
	Burned         int                `json:"burned"`
	TotalCards     int                `json:"total_cards"`
	CardsUsed      int                `json:"cards_used"`
	CardsRemaining int                `json:"cards_remaining"`
	History        []games.HandResult `json:"history"`
}

func TestShoeEndpoint(t *testing.T) {
	h := newTestServer(t, nil)
	req := ShoeRequest{Seeds: testSeeds, Nonce: 7, Hands: 5}

	w := doJSON(t, h, "POST", "/api/v1/shoe", req)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	var first shoeBody
	decodeBody(t, w, &first)

	if first.ServerSeedHash != engine.HashServerSeed(testSeeds.Server) {
		t.Error("Expected server seed hash")
	}
	if len(first.History) != 5 {
		t.Fatalf("Expected 5 hands, got %d", len(first.History))
	}
	if first.TotalCards != 416 || first.CardsUsed+first.CardsRemaining != 416 {
		t.Errorf("Card accounting off: %+v", first)
	}
	used := first.Burned
	for _, hand := range first.History {
		used += len(hand.PlayerCards) + len(hand.BankerCards)
	}
	if used != first.CardsUsed {
		t.Errorf("Expected %d cards used, got %d", used, first.CardsUsed)
	}

	var second shoeBody
	decodeBody(t, doJSON(t, h, "POST", "/api/v1/shoe", req), &second)
	for i := range first.History {
		if first.History[i].Winner != second.History[i].Winner || first.History[i].PlayerScore != second.History[i].PlayerScore {
			t.Fatalf("hand %d differs between identical requests", i)
		}
	}

	var full shoeBody
	decodeBody(t, doJSON(t, h, "POST", "/api/v1/shoe", ShoeRequest{Seeds: testSeeds, Nonce: 7, Decks: 1}), &full)
	if full.CardsRemaining >= 10 {
		t.Errorf("Expected shoe dealt to the cut card, %d remain", full.CardsRemaining)
	}

	expectError(t, doJSON(t, h, "POST", "/api/v1/shoe", ShoeRequest{Seeds: engine.Seeds{Client: "c"}}), http.StatusBadRequest, ErrTypeValidation)
	expectError(t, doJSON(t, h, "POST", "/api/v1/shoe", ShoeRequest{Seeds: testSeeds, Decks: 17}), http.StatusBadRequest, ErrTypeValidation)
}

func TestSettleEndpoint(t *testing.T) {
	h := newTestServer(t, nil)

	tests := []struct {
		name     string
		body     string
		stake    string
		returned string
	}{
		{"banker wins", `{"bets":{"banker":"10","tie":5},"result":{"winner":"B"}}`, "15", "19.5"},
		{"tie pushes", `{"bets":{"player":10,"banker":10},"result":{"winner":"T"}}`, "20", "20"},
		{"pair pays 11 to 1", `{"bets":{"player_pair":1},"result":{"winner":"player","is_pair_player":true}}`, "1", "12"},
		{"no bets", `{"bets":{},"result":{"winner":"P"}}`, "0", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(t, h, "POST", "/api/v1/settle", tt.body)
			if w.Code != http.StatusOK {
				t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
			}
			var resp SettleResponse
			decodeBody(t, w, &resp)
			if !resp.Stake.Equal(decimal.RequireFromString(tt.stake)) {
				t.Errorf("stake: expected %s, got %s", tt.stake, resp.Stake)
			}
			if !resp.Returned.Equal(decimal.RequireFromString(tt.returned)) {
				t.Errorf("returned: expected %s, got %s", tt.returned, resp.Returned)
			}
			if !resp.Profit.Equal(resp.Returned.Sub(resp.Stake)) {
				t.Errorf("profit mismatch: %s", resp.Profit)
			}
		})
	}

	expectError(t, doJSON(t, h, "POST", "/api/v1/settle", `{"bets":{"dragon":1},"result":{"winner":"P"}}`), http.StatusBadRequest, ErrTypeValidation)
	expectError(t, doJSON(t, h, "POST", "/api/v1/settle", `{"bets":{"player":-1},"result":{"winner":"P"}}`), http.StatusBadRequest, ErrTypeValidation)
	expectError(t, doJSON(t, h, "POST", "/api/v1/settle", `{"bets":{"player":1},"result":{"winner":"X"}}`), http.StatusBadRequest, ErrTypeValidation)
}

func TestStrategyEndpoint(t *testing.T) {
	h := newTestServer(t, nil)

	w := doJSON(t, h, "POST", "/api/v1/strategy", StrategyRequest{
		Script:       `dobet = function() { bets.banker = 1 }`,
		Seeds:        testSeeds,
		Nonce:        3,
		StartBalance: decimal.NewFromInt(100),
		MaxHands:     10,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp StrategyResponse
	decodeBody(t, w, &resp)
	if resp.Report.Stats.Hands != 10 || len(resp.Report.Hands) != 10 {
		t.Errorf("Expected 10 hands, got %d", resp.Report.Stats.Hands)
	}
	if !resp.Report.Stats.Wagered.Equal(decimal.NewFromInt(10)) {
		t.Errorf("Expected 10 wagered, got %s", resp.Report.Stats.Wagered)
	}
	if resp.Report.StopReason != "max_hands" {
		t.Errorf("Expected max_hands stop, got %q", resp.Report.StopReason)
	}

	w = doJSON(t, h, "POST", "/api/v1/strategy", StrategyRequest{
		Script: `dobet = function() { throw new Error("boom") }`,
		Seeds:  testSeeds,
	})
	expectError(t, w, http.StatusUnprocessableEntity, ErrTypeScript)

	expectError(t, doJSON(t, h, "POST", "/api/v1/strategy", StrategyRequest{Seeds: testSeeds}), http.StatusBadRequest, ErrTypeValidation)
}

func TestScanPersistsRun(t *testing.T) {
	db, err := store.NewSQLiteDB(":memory:")
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(); err != nil {
		t.Fatalf("Failed to migrate: %v", err)
	}
	h := newTestServer(t, db)

	w := doJSON(t, h, "POST", "/api/v1/scan", ScanRequest{
		Seeds:      testSeeds,
		NonceStart: 1,
		NonceEnd:   20,
		Decks:      1,
		Metric:     "hands",
		TargetOp:   "ge",
		TargetVal:  0,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp ScanResponse
	decodeBody(t, w, &resp)
	if resp.RunID == "" {
		t.Fatal("Expected run id")
	}
	if len(resp.Hits) != 20 || resp.Summary.TotalEvaluated != 20 {
		t.Errorf("Expected 20 hits over 20 shoes, got %d / %d", len(resp.Hits), resp.Summary.TotalEvaluated)
	}
	for i, hit := range resp.Hits {
		if hit.Nonce != uint64(i+1) {
			t.Fatalf("hit %d: expected nonce %d, got %d", i, i+1, hit.Nonce)
		}
	}

	var list store.RunsList
	decodeBody(t, doJSON(t, h, "GET", "/api/v1/runs?metric=hands", nil), &list)
	if list.TotalCount != 1 || list.Runs[0].ID != resp.RunID {
		t.Fatalf("Expected the scan in run list, got %+v", list)
	}

	var run store.Run
	decodeBody(t, doJSON(t, h, "GET", "/api/v1/runs/"+resp.RunID, nil), &run)
	if run.ServerSeedHash != engine.HashServerSeed(testSeeds.Server) {
		t.Error("Expected only the server seed hash to be stored")
	}
	if run.HitCount != 20 || run.SummaryMin == nil {
		t.Errorf("Expected summary on stored run, got %+v", run)
	}

	var hits store.HitsPage
	decodeBody(t, doJSON(t, h, "GET", "/api/v1/runs/"+resp.RunID+"/hits?per_page=5&page=2", nil), &hits)
	if hits.TotalCount != 20 || hits.TotalPages != 4 || len(hits.Hits) != 5 {
		t.Errorf("Expected page 2 of 4, got %+v", hits)
	}
	if hits.Hits[0].DeltaNonce == nil || *hits.Hits[0].DeltaNonce != 1 {
		t.Errorf("Expected delta 1 across pages, got %v", hits.Hits[0].DeltaNonce)
	}

	expectError(t, doJSON(t, h, "GET", "/api/v1/runs/missing", nil), http.StatusNotFound, ErrTypeNotFound)
	expectError(t, doJSON(t, h, "GET", "/api/v1/runs/missing/hits", nil), http.StatusNotFound, ErrTypeNotFound)
}

func TestScanValidation(t *testing.T) {
	h := newTestServer(t, nil, func(c *config.Config) { c.Scan.MaxRange = 100 })
	base := ScanRequest{Seeds: testSeeds, NonceStart: 1, NonceEnd: 10, Metric: "ties", TargetOp: "ge", TargetVal: 1}

	tests := []struct {
		name    string
		mutate  func(*ScanRequest)
		errType string
	}{
		{"missing seed", func(r *ScanRequest) { r.Seeds.Server = "" }, ErrTypeValidation},
		{"reversed range", func(r *ScanRequest) { r.NonceStart = 20 }, ErrTypeValidation},
		{"range too large", func(r *ScanRequest) { r.NonceEnd = 101 }, ErrTypeValidation},
		{"unknown metric", func(r *ScanRequest) { r.Metric = "jackpots" }, ErrTypeUnknownMetric},
		{"bad op", func(r *ScanRequest) { r.TargetOp = "approx" }, ErrTypeValidation},
		{"inverted between", func(r *ScanRequest) { r.TargetOp, r.TargetVal, r.TargetVal2 = "between", 5, 2 }, ErrTypeValidation},
		{"negative tolerance", func(r *ScanRequest) { r.Tolerance = -1 }, ErrTypeValidation},
		{"timeout too long", func(r *ScanRequest) { r.TimeoutMs = maxTimeoutMs + 1 }, ErrTypeValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := base
			tt.mutate(&req)
			expectError(t, doJSON(t, h, "POST", "/api/v1/scan", req), http.StatusBadRequest, tt.errType)
		})
	}

	w := doJSON(t, h, "POST", "/api/v1/scan", base)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200 without a store, got %d: %s", w.Code, w.Body.String())
	}
	var resp ScanResponse
	decodeBody(t, w, &resp)
	if resp.RunID != "" {
		t.Errorf("Expected no run id without a store, got %q", resp.RunID)
	}
}

func TestScanStoreFailure(t *testing.T) {
	h := newTestServer(t, &mockDB{err: errors.New("disk full")})
	req := ScanRequest{Seeds: testSeeds, NonceStart: 1, NonceEnd: 2, Decks: 1, Metric: "hands", TargetOp: "ge"}
	expectError(t, doJSON(t, h, "POST", "/api/v1/scan", req), http.StatusInternalServerError, ErrTypeInternal)
}

func TestRunsWithoutStore(t *testing.T) {
	h := newTestServer(t, nil)
	for _, path := range []string{"/api/v1/runs", "/api/v1/runs/x", "/api/v1/runs/x/hits"} {
		expectError(t, doJSON(t, h, "GET", path, nil), http.StatusServiceUnavailable, ErrTypeServiceUnavailable)
	}
}

func TestRecoveryHandler(t *testing.T) {
	eh := NewErrorHandler(log.New(io.Discard, "", 0))
	h := eh.RecoveryHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("kaboom")
	}))
	expectError(t, doJSON(t, h, "GET", "/", nil), http.StatusInternalServerError, ErrTypeInternal)
}

func TestGetErrorCategory(t *testing.T) {
	tests := map[string]ErrorCategory{
		ErrTypeValidation:       CategoryValidation,
		ErrTypeInvalidOffset:    CategoryValidation,
		ErrTypeInsufficientShoe: CategoryGame,
		ErrTypeTimeout:          CategoryTimeout,
		ErrTypeNotFound:         CategorySystem,
		ErrTypeInternal:         CategorySystem,
	}
	for errType, want := range tests {
		if got := GetErrorCategory(errType); got != want {
			t.Errorf("GetErrorCategory(%q) = %s, want %s", errType, got, want)
		}
	}
}

func TestLiveMount(t *testing.T) {
	live := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		io.WriteString(w, r.URL.Path)
	})
	h := NewServer(config.Default(), nil, WithLogger(log.New(io.Discard, "", 0)), WithLive(live)).Routes()

	w := doJSON(t, h, http.MethodGet, "/api/v1/live/tables", nil)
	if w.Code != http.StatusTeapot {
		t.Fatalf("expected live handler to serve, got %d", w.Code)
	}
	if w.Body.String() != "/tables" {
		t.Errorf("expected prefix stripped, got %q", w.Body.String())
	}

	without := newTestServer(t, nil)
	if w := doJSON(t, without, http.MethodGet, "/api/v1/live/tables", nil); w.Code != http.StatusNotFound {
		t.Errorf("expected 404 without live module, got %d", w.Code)
	}
}

func TestStrategySessions(t *testing.T) {
	sessions, err := scriptstore.New(filepath.Join(t.TempDir(), "sessions.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { sessions.Close() })
	if err := sessions.Migrate(); err != nil {
		t.Fatal(err)
	}
	cfg := config.Default()
	cfg.Scan.Workers = 2
	h := NewServer(cfg, nil, WithLogger(log.New(io.Discard, "", 0)), WithSessions(sessions)).Routes()

	w := doJSON(t, h, "POST", "/api/v1/strategy", StrategyRequest{
		Script:       `dobet = function() { bets.player = 1 }`,
		Seeds:        testSeeds,
		Nonce:        5,
		StartBalance: decimal.NewFromInt(50),
		MaxHands:     8,
		Save:         true,
		Name:         "flat player",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp StrategyResponse
	decodeBody(t, w, &resp)
	if resp.SessionID == "" {
		t.Fatal("Expected a session id")
	}

	w = doJSON(t, h, "GET", "/api/v1/strategies/"+resp.SessionID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var sess scriptstore.ScriptSession
	decodeBody(t, w, &sess)
	if sess.Name != "flat player" || sess.TotalHands != 8 || sess.FinalState != "max_hands" {
		t.Errorf("Unexpected session %+v", sess)
	}
	if sess.ServerSeedHash != engine.HashServerSeed(testSeeds.Server) {
		t.Error("Session should store the server seed hash")
	}
	if !sess.FinalBalance.Equal(resp.Report.Stats.Balance) {
		t.Errorf("Expected final balance %s, got %s", resp.Report.Stats.Balance, sess.FinalBalance)
	}

	w = doJSON(t, h, "GET", "/api/v1/strategies/"+resp.SessionID+"/hands?page=2&per_page=5", nil)
	var page scriptstore.ScriptHandsPage
	decodeBody(t, w, &page)
	if page.TotalCount != 8 || len(page.Hands) != 3 || page.Hands[0].Hand != 6 {
		t.Errorf("Unexpected hands page: total %d, %d hands", page.TotalCount, len(page.Hands))
	}

	w = doJSON(t, h, "GET", "/api/v1/strategies", nil)
	var list struct {
		TotalCount int `json:"totalCount"`
	}
	decodeBody(t, w, &list)
	if list.TotalCount != 1 {
		t.Errorf("Expected 1 session, got %d", list.TotalCount)
	}

	if w := doJSON(t, h, "DELETE", "/api/v1/strategies/"+resp.SessionID, nil); w.Code != http.StatusNoContent {
		t.Errorf("Expected 204, got %d", w.Code)
	}
	expectError(t, doJSON(t, h, "GET", "/api/v1/strategies/"+resp.SessionID, nil), http.StatusNotFound, ErrTypeNotFound)
	expectError(t, doJSON(t, h, "GET", "/api/v1/strategies/missing/hands", nil), http.StatusNotFound, ErrTypeNotFound)
}

func TestStrategySaveWithoutStore(t *testing.T) {
	h := newTestServer(t, nil)
	w := doJSON(t, h, "POST", "/api/v1/strategy", StrategyRequest{
		Script: `dobet = function() {}`,
		Seeds:  testSeeds,
		Save:   true,
	})
	expectError(t, w, http.StatusServiceUnavailable, ErrTypeServiceUnavailable)

	expectError(t, doJSON(t, h, "GET", "/api/v1/strategies", nil), http.StatusServiceUnavailable, ErrTypeServiceUnavailable)
}
