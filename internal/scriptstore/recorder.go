package scriptstore

import (
	"sync"

	"github.com/MJE43/baccarat-roads/internal/scripting"
)

// SessionRecorder buffers settled hands and flushes them to the store in
// batches. RecordHand matches scripting.Options.OnHand.
type SessionRecorder struct {
	store     *Store
	sessionID string
	mu        sync.Mutex
	buffer    []ScriptHand
	flushSize int
	err       error
}

// NewSessionRecorder creates a recorder for the given session.
// flushSize controls how many hands are buffered before a batch insert.
func NewSessionRecorder(store *Store, sessionID string, flushSize int) *SessionRecorder {
	if flushSize <= 0 {
		flushSize = 50
	}
	return &SessionRecorder{
		store:     store,
		sessionID: sessionID,
		buffer:    make([]ScriptHand, 0, flushSize),
		flushSize: flushSize,
	}
}

// RecordHand adds a hand to the buffer and flushes if the buffer is full.
// After the first failed flush further hands are dropped; Flush reports it.
func (r *SessionRecorder) RecordHand(rec scripting.HandRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.err != nil {
		return
	}
	r.buffer = append(r.buffer, ScriptHand{
		SessionID:   r.sessionID,
		Hand:        rec.Hand,
		Winner:      rec.Result.Winner,
		PlayerScore: rec.Result.PlayerScore,
		BankerScore: rec.Result.BankerScore,
		Bets:        rec.Bets,
		Stake:       rec.Stake,
		Returned:    rec.Returned,
		Balance:     rec.Balance,
	})

	if len(r.buffer) >= r.flushSize {
		r.flushLocked()
	}
}

// Flush persists any remaining buffered hands and returns the first error
// seen by any flush.
func (r *SessionRecorder) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flushLocked()
	return r.err
}

func (r *SessionRecorder) flushLocked() {
	if len(r.buffer) == 0 || r.err != nil {
		return
	}
	r.err = r.store.InsertHandsBatch(r.sessionID, r.buffer)
	r.buffer = r.buffer[:0]
}

// EndWithReport closes the session with the totals of a finished run.
func (s *Store) EndWithReport(id string, report *scripting.Report) error {
	st := report.Stats
	return s.EndSession(id, report.StopReason, SessionStats{
		FinalBalance:  st.Balance,
		TotalHands:    st.Hands,
		TotalWins:     st.Wins,
		TotalLosses:   st.Losses,
		TotalProfit:   st.Profit,
		TotalWagered:  st.Wagered,
		HighestStreak: st.HighestStreak,
		LowestStreak:  st.LowestStreak,
	})
}
