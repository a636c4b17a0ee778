package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"unicode"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"

	"github.com/MJE43/baccarat-roads/internal/engine"
	"github.com/MJE43/baccarat-roads/internal/games"
	"github.com/MJE43/baccarat-roads/internal/roads"
	"github.com/MJE43/baccarat-roads/internal/scan"
	"github.com/MJE43/baccarat-roads/internal/scripting"
	"github.com/MJE43/baccarat-roads/internal/scriptstore"
	"github.com/MJE43/baccarat-roads/internal/store"
	"github.com/MJE43/baccarat-roads/internal/table"
)

// decode reads the JSON body into v. Malformed cards keep their own error
// type; everything else is a validation failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if errType, _ := classify(err); errType == ErrTypeInvalidCard {
			s.errorHandler.HandleError(w, r, err)
			return false
		}
		s.errorHandler.HandleValidationError(w, r, "body", "Invalid JSON format: "+err.Error())
		return false
	}
	return true
}

// fail writes err, routing field errors to the validation handler.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	if fe, ok := err.(fieldError); ok {
		s.errorHandler.HandleValidationError(w, r, fe.field, fe.message)
		return
	}
	s.errorHandler.HandleError(w, r, err)
}

func (s *Server) roadOptions(columns int) []roads.Option {
	if columns == 0 {
		columns = s.cfg.Roads.Columns
	}
	return []roads.Option{roads.WithColumns(columns)}
}

func (s *Server) tableConfig(decks, reshuffleAt int) table.Config {
	cfg := s.cfg.Shoe
	if cfg.Decks == 0 {
		cfg = table.DefaultConfig()
	}
	if decks != 0 {
		cfg.Decks = decks
	}
	if reshuffleAt != 0 {
		cfg.ReshuffleAt = reshuffleAt
	}
	return cfg
}

// parseWinners reads a winners string such as "PBT B,P". Whitespace and
// commas separate nothing and are skipped.
func parseWinners(s string) ([]games.Winner, error) {
	winners := make([]games.Winner, 0, len(s))
	for i, r := range s {
		if unicode.IsSpace(r) || r == ',' {
			continue
		}
		w, err := games.ParseWinner(string(r))
		if err != nil {
			return nil, invalid("winners", "invalid winner %q at position %d", r, i)
		}
		winners = append(winners, w)
	}
	return winners, nil
}

func historyFromWinners(winners []games.Winner) []games.HandResult {
	history := make([]games.HandResult, len(winners))
	for i, w := range winners {
		history[i] = games.HandResult{Winner: w}
	}
	return history
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

// handleVersion reports build information
func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, GetVersionInfo())
}

// handleListMetrics lists the scan metrics
func (s *Server) handleListMetrics(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"metrics":        scan.Metrics(),
		"engine_version": EngineVersion,
	})
}

// handleSeedHash returns the SHA256 commitment of a server seed
func (s *Server) handleSeedHash(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ServerSeed string `json:"server_seed"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	if req.ServerSeed == "" {
		s.errorHandler.HandleValidationError(w, r, "server_seed", "server_seed is required")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"hash":           engine.HashServerSeed(req.ServerSeed),
		"engine_version": EngineVersion,
	})
}

// handleHand resolves a single hand from an explicit card order
func (s *Server) handleHand(w http.ResponseWriter, r *http.Request) {
	var req HandRequest
	if !s.decode(w, r, &req) {
		return
	}

	cards := req.Cards
	if len(req.Codes) > 0 {
		cards = make([]games.Card, 0, len(req.Codes))
		for _, code := range req.Codes {
			c, err := games.ParseCard(code)
			if err != nil {
				s.errorHandler.HandleError(w, r, err)
				return
			}
			cards = append(cards, c)
		}
	}

	result, used, err := games.ResolveHand(games.Shoe(cards))
	if err != nil {
		s.errorHandler.HandleError(w, r, fmt.Errorf("%d cards given: %w", len(cards), err))
		return
	}

	s.writeJSON(w, http.StatusOK, HandResponse{
		Result:        result,
		CardsUsed:     used,
		Natural:       result.Natural(),
		EngineVersion: EngineVersion,
	})
}

// handleRoads builds every road for a shoe history
func (s *Server) handleRoads(w http.ResponseWriter, r *http.Request) {
	var req RoadsRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := validateColumns(req.Columns); err != nil {
		s.fail(w, r, err)
		return
	}

	history := req.History
	if req.Winners != "" {
		winners, err := parseWinners(req.Winners)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		history = historyFromWinners(winners)
	}
	for i := range history {
		winner, err := games.ParseWinner(string(history[i].Winner))
		if err != nil {
			s.fail(w, r, invalid(fmt.Sprintf("history[%d].winner", i), "%v", err))
			return
		}
		history[i].Winner = winner
	}

	all := roads.Build(history, s.roadOptions(req.Columns)...)
	streaks := all.BigRoad.Streaks()
	if streaks == nil {
		streaks = []roads.Streak{}
	}

	s.writeJSON(w, http.StatusOK, RoadsResponse{
		Roads:         all,
		Streaks:       streaks,
		DragonTails:   all.BigRoad.DragonTails(),
		EngineVersion: EngineVersion,
	})
}

// handleDerivedRoad builds one derived road at the requested offset
func (s *Server) handleDerivedRoad(w http.ResponseWriter, r *http.Request) {
	var req DerivedRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := validateColumns(req.Columns); err != nil {
		s.fail(w, r, err)
		return
	}
	winners, err := parseWinners(req.Winners)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	opts := s.roadOptions(req.Columns)
	big := roads.BigRoadFromWinners(winners, opts...)
	grid, err := roads.DerivedRoad(big.Matrix, big.Path, req.Offset, opts...)
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, DerivedResponse{
		Offset:        req.Offset,
		Grid:          grid,
		EngineVersion: EngineVersion,
	})
}

// handleShoe deals one provably fair shoe and returns its history and roads
func (s *Server) handleShoe(w http.ResponseWriter, r *http.Request) {
	var req ShoeRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := ValidateShoeRequest(&req); err != nil {
		s.fail(w, r, err)
		return
	}

	noteSeeds(r, req.Seeds)
	s.logger.Printf("shoe_request request_id=%s nonce=%d decks=%d hands=%d",
		middleware.GetReqID(r.Context()), req.Nonce, req.Decks, req.Hands)

	tbl, err := table.New(s.tableConfig(req.Decks, req.ReshuffleAt), engine.NewShuffleSource(req.Seeds, req.Nonce))
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	tbl = tbl.DealShoe(req.Hands)

	s.writeJSON(w, http.StatusOK, ShoeResponse{
		ServerSeedHash: engine.HashServerSeed(req.Seeds.Server),
		ClientSeed:     req.Seeds.Client,
		Nonce:          req.Nonce,
		Decks:          tbl.Config().Decks,
		BurnCard:       tbl.BurnCard(),
		Burned:         tbl.Burned(),
		TotalCards:     tbl.Total(),
		CardsUsed:      tbl.Used(),
		CardsRemaining: tbl.Remaining(),
		History:        tbl.History(),
		Roads:          tbl.Roads(s.roadOptions(0)...),
		EngineVersion:  EngineVersion,
	})
}

// handleSettle pays a bet map against a hand result
func (s *Server) handleSettle(w http.ResponseWriter, r *http.Request) {
	var req SettleRequest
	if !s.decode(w, r, &req) {
		return
	}

	winner, err := games.ParseWinner(string(req.Result.Winner))
	if err != nil {
		s.fail(w, r, invalid("result.winner", "%v", err))
		return
	}
	req.Result.Winner = winner

	bets := make(map[games.BetTarget]decimal.Decimal, len(req.Bets))
	for name, amount := range req.Bets {
		target, err := games.ParseBetTarget(name)
		if err != nil {
			s.errorHandler.HandleError(w, r, err)
			return
		}
		if amount.IsNegative() {
			s.fail(w, r, invalid("bets."+name, "stake must be >= 0"))
			return
		}
		bets[target] = bets[target].Add(amount)
	}

	stake := games.TotalStake(bets)
	returned := games.Settle(bets, req.Result)
	s.writeJSON(w, http.StatusOK, SettleResponse{
		Stake:         stake,
		Returned:      returned,
		Profit:        returned.Sub(stake),
		EngineVersion: EngineVersion,
	})
}

// handleStrategy runs a dobet() script over one shoe
func (s *Server) handleStrategy(w http.ResponseWriter, r *http.Request) {
	var req StrategyRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := ValidateStrategyRequest(&req); err != nil {
		s.fail(w, r, err)
		return
	}

	if req.Save && s.sessions == nil {
		s.errorHandler.HandleUnavailable(w, r, "session store")
		return
	}

	noteSeeds(r, req.Seeds)
	s.logger.Printf("strategy_request request_id=%s nonce=%d max_hands=%d script_bytes=%d save=%t",
		middleware.GetReqID(r.Context()), req.Nonce, req.MaxHands, len(req.Script), req.Save)

	cfg := s.tableConfig(req.Decks, 0)
	opts := scripting.Options{
		Script:       req.Script,
		Seeds:        req.Seeds,
		Nonce:        req.Nonce,
		Table:        cfg,
		StartBalance: req.StartBalance,
		MaxHands:     req.MaxHands,
	}

	var (
		sessionID string
		recorder  *scriptstore.SessionRecorder
	)
	if req.Save {
		id, err := s.sessions.CreateSession(&scriptstore.ScriptSession{
			Name:           req.Name,
			ScriptSource:   req.Script,
			ServerSeedHash: engine.HashServerSeed(req.Seeds.Server),
			ClientSeed:     req.Seeds.Client,
			Nonce:          req.Nonce,
			Decks:          cfg.Decks,
			StartBalance:   req.StartBalance,
		})
		if err != nil {
			s.errorHandler.HandleError(w, r, err)
			return
		}
		sessionID = id
		recorder = scriptstore.NewSessionRecorder(s.sessions, id, 100)
		opts.OnHand = recorder.RecordHand
	}

	report, err := scripting.Run(r.Context(), opts)
	if err != nil {
		if recorder != nil {
			_ = recorder.Flush()
			if endErr := s.sessions.EndSession(sessionID, "error", scriptstore.SessionStats{}); endErr != nil {
				s.logger.Printf("session_end_failed session_id=%s err=%v", sessionID, endErr)
			}
		}
		s.errorHandler.HandleError(w, r, err)
		return
	}

	if recorder != nil {
		if err := recorder.Flush(); err != nil {
			s.errorHandler.HandleError(w, r, err)
			return
		}
		if err := s.sessions.EndWithReport(sessionID, report); err != nil {
			s.errorHandler.HandleError(w, r, err)
			return
		}
	}

	s.logger.Printf(
		"strategy_completed hands=%d profit=%s stop_reason=%s session_id=%s",
		report.Stats.Hands, report.Stats.Profit.String(), report.StopReason, sessionID,
	)

	s.writeJSON(w, http.StatusOK, StrategyResponse{Report: report, SessionID: sessionID, EngineVersion: EngineVersion})
}

// handleScan processes scan requests with full validation and error handling
func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	var req ScanRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := ValidateScanRequest(&req, s.cfg.Scan.MaxRange); err != nil {
		s.fail(w, r, err)
		return
	}
	metric, err := scan.ParseMetric(req.Metric)
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}

	if req.Limit == 0 {
		req.Limit = s.cfg.Scan.HitLimit
	}
	if req.TimeoutMs == 0 {
		req.TimeoutMs = s.cfg.Scan.TimeoutMs
	}
	cfg := s.tableConfig(req.Decks, req.ReshuffleAt)
	req.Decks, req.ReshuffleAt = cfg.Decks, cfg.ReshuffleAt

	scanReq := convertToScanRequest(&req)
	scanReq.Metric = metric

	noteSeeds(r, req.Seeds)
	s.logger.Printf(
		"scan_request request_id=%s metric=%s nonce_range=%d-%d target_op=%s target_val=%f limit=%d timeout_ms=%d",
		middleware.GetReqID(r.Context()), metric, req.NonceStart, req.NonceEnd, req.TargetOp, req.TargetVal, req.Limit, req.TimeoutMs,
	)

	result, err := s.scanner.Scan(r.Context(), scanReq)
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}

	response := ScanResponse{
		Hits:          result.Hits,
		Summary:       result.Summary,
		EngineVersion: result.EngineVersion,
		Echo:          req,
	}
	if s.db != nil {
		runID, err := s.saveRun(scanReq, result)
		if err != nil {
			s.errorHandler.HandleError(w, r, fmt.Errorf("save run: %w", err))
			return
		}
		response.RunID = runID
	}

	s.logger.Printf(
		"scan_completed metric=%s run_id=%s hits_found=%d total_evaluated=%d timed_out=%t",
		metric, response.RunID, result.Summary.HitsFound, result.Summary.TotalEvaluated, result.Summary.TimedOut,
	)

	s.writeJSON(w, http.StatusOK, response)
}

// saveRun persists a scan and its hits. Only the server seed hash is stored.
func (s *Server) saveRun(req scan.Request, result *scan.Result) (string, error) {
	run := &store.Run{
		ServerSeedHash: engine.HashServerSeed(req.Seeds.Server),
		ClientSeed:     req.Seeds.Client,
		NonceStart:     req.NonceStart,
		NonceEnd:       req.NonceEnd,
		Decks:          req.Decks,
		Metric:         string(req.Metric),
		TargetOp:       string(req.TargetOp),
		TargetVal:      req.TargetVal,
		TargetVal2:     req.TargetVal2,
		Tolerance:      req.Tolerance,
		HitLimit:       req.Limit,
		TimedOut:       result.Summary.TimedOut,
		HitCount:       len(result.Hits),
		TotalEvaluated: result.Summary.TotalEvaluated,
		EngineVersion:  result.EngineVersion,
	}
	if len(result.Hits) > 0 {
		summary := result.Summary
		run.SummaryMin = &summary.MinMetric
		run.SummaryMax = &summary.MaxMetric
		run.SummaryMean = &summary.MeanMetric
	}
	if err := s.db.SaveRun(run); err != nil {
		return "", err
	}

	hits := make([]store.Hit, len(result.Hits))
	for i, h := range result.Hits {
		hits[i] = store.Hit{Nonce: h.Nonce, Metric: h.Metric}
	}
	if err := s.db.SaveHits(run.ID, hits); err != nil {
		return "", err
	}
	return run.ID, nil
}

// handleListRuns lists persisted scans, newest first
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		s.errorHandler.HandleUnavailable(w, r, "run store")
		return
	}

	list, err := s.db.ListRuns(store.RunsQuery{
		Metric:  strings.TrimSpace(r.URL.Query().Get("metric")),
		Page:    queryInt(r, "page", 1),
		PerPage: queryInt(r, "per_page", 50),
	})
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, list)
}

// handleGetRun returns one persisted scan
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		s.errorHandler.HandleUnavailable(w, r, "run store")
		return
	}

	run, err := s.db.GetRun(chi.URLParam(r, "id"))
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, run)
}

// handleGetRunHits pages through a run's hits with nonce deltas
func (s *Server) handleGetRunHits(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		s.errorHandler.HandleUnavailable(w, r, "run store")
		return
	}

	id := chi.URLParam(r, "id")
	if _, err := s.db.GetRun(id); err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	page, err := s.db.GetRunHits(id, queryInt(r, "page", 1), queryInt(r, "per_page", 100))
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, page)
}

// handleListSessions lists saved strategy sessions, newest first
func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	if s.sessions == nil {
		s.errorHandler.HandleUnavailable(w, r, "session store")
		return
	}

	limit := queryInt(r, "limit", 20)
	sessions, total, err := s.sessions.ListSessions(limit, queryInt(r, "offset", 0))
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"sessions":   sessions,
		"totalCount": total,
	})
}

// handleGetSession returns one saved strategy session
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	if s.sessions == nil {
		s.errorHandler.HandleUnavailable(w, r, "session store")
		return
	}

	sess, err := s.sessions.GetSession(chi.URLParam(r, "id"))
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, sess)
}

// handleDeleteSession removes a saved session and its hands
func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if s.sessions == nil {
		s.errorHandler.HandleUnavailable(w, r, "session store")
		return
	}

	if err := s.sessions.DeleteSession(chi.URLParam(r, "id")); err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleGetSessionHands pages through the hands of a saved session
func (s *Server) handleGetSessionHands(w http.ResponseWriter, r *http.Request) {
	if s.sessions == nil {
		s.errorHandler.HandleUnavailable(w, r, "session store")
		return
	}

	id := chi.URLParam(r, "id")
	if _, err := s.sessions.GetSession(id); err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	page, err := s.sessions.GetSessionHands(id, queryInt(r, "page", 1), queryInt(r, "per_page", 50))
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, page)
}
