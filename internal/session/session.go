// Package session implements the per-game state machine: the
// participant registry, the timed question/answer/reveal cycle,
// scoring, and the duplex-channel synchronization protocol. Each
// Session serializes all of its state transitions through a single
// goroutine's event loop.
package session

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/nullhaven/quizhost/internal/quiz"
)

// Conn is the minimal interface the session needs from a live
// connection: enqueue a message for delivery. The websocket transport
// in internal/gamehub implements this; tests can fake it trivially.
type Conn interface {
	Send(v any)
}

// State is one of the four session states a game passes through.
type State int

const (
	StateLobby State = iota
	StateQuestion
	StateQResult
	StateFinal
)

const (
	maxParticipants = 100
	maxNameLength   = 20
	revealDelay     = 1 * time.Second
	advanceDelay    = 5 * time.Second
)

// Participant is a joined client. Conn is nil when the participant's
// connection has closed (a tombstone); the participant stays in the
// roster so their score survives on the leaderboard.
type Participant struct {
	ID    string
	Name  string
	Score int
	Conn  Conn
}

func (p *Participant) live() bool { return p.Conn != nil }

// pendingAnswer is a participant's record for the current question.
type pendingAnswer struct {
	selection quiz.Selection
	submitted bool
	correct   bool
	points    int
}

// Session owns the state machine, participants, current question,
// pending answers, and timers for one game. All mutation happens
// inside the event-loop goroutine started by Start, reached only
// through submit, which is the session's single serialization point.
type Session struct {
	Code string

	events chan func(*sessionState)

	quiz      quiz.Quiz
	reapDelay time.Duration
	reapFunc  func()

	mu     sync.Mutex // guards closed only
	closed bool
}

// sessionState is the data the event-loop goroutine owns exclusively.
type sessionState struct {
	quiz quiz.Quiz

	host Conn

	participants []*Participant
	byID         map[string]*Participant
	byNameLower  map[string]*Participant

	currentIndex int
	state        State
	answers      map[string]*pendingAnswer

	questionStart time.Time
	epoch         int // incremented every question/q_result entry; guards stale timers

	questionTimer *time.Timer
	autoTimer     *time.Timer

	reapDelay time.Duration
	reapFunc  func()
}

// New constructs a Session in the lobby state for the given quiz.
// reapFunc is invoked once, reapDelay after the session enters final
// (the directory supplies both the delay and a closure that removes
// the session from its map).
func New(code string, q quiz.Quiz, reapDelay time.Duration, reapFunc func()) *Session {
	return &Session{
		Code:      code,
		events:    make(chan func(*sessionState), 64),
		quiz:      q,
		reapDelay: reapDelay,
		reapFunc:  reapFunc,
	}
}

// Start launches the session's serialization goroutine. Must be called
// exactly once, after New.
func (s *Session) Start() {
	st := &sessionState{
		quiz:         s.quiz,
		currentIndex: -1,
		state:        StateLobby,
		answers:      make(map[string]*pendingAnswer),
		byID:         make(map[string]*Participant),
		byNameLower:  make(map[string]*Participant),
		reapDelay:    s.reapDelay,
		reapFunc:     s.reapFunc,
	}
	go func() {
		for fn := range s.events {
			fn(st)
		}
	}()
}

// submit sends fn to the session's event loop and blocks until it has
// run, giving callers a synchronous request/response style on top of
// the single-writer serialization point. Safe to call after Stop (it
// becomes a silent no-op) so late timer firings and in-flight requests
// never panic on a closed channel.
func (s *Session) submit(fn func(*sessionState)) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	done := make(chan struct{})
	defer func() {
		// events may have been closed between the check above and the
		// send; treat that race the same as already-closed.
		if recover() != nil {
			close(done)
		}
	}()
	s.events <- func(st *sessionState) {
		fn(st)
		close(done)
	}
	<-done
}

// Stop closes the session's event loop. Called by the directory at
// reap time.
func (s *Session) Stop() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	close(s.events)
}

// --- external API ---

// ProbeResult mirrors the "ok | error: alreadyStarted" half of a
// probeSession check; notFound is answered by the directory before a
// Session is even involved.
type ProbeResult struct {
	OK           bool
	AlreadyStart bool
}

func (s *Session) Probe() ProbeResult {
	var result ProbeResult
	s.submit(func(st *sessionState) {
		result.OK = st.state == StateLobby
		result.AlreadyStart = st.state != StateLobby
	})
	return result
}

// HostJoin binds conn as the session's host and acks it. A session
// already bound to a live host rejects the attempt: the glossary
// allows at most one host per session, so a second host_join must not
// silently displace the first.
func (s *Session) HostJoin(conn Conn) bool {
	var accepted bool
	s.submit(func(st *sessionState) {
		if st.host != nil {
			conn.Send(NewError("this game already has a host"))
			return
		}
		st.host = conn
		conn.Send(HostJoinedMsg{Type: "host_joined", Pin: s.Code})
		accepted = true
	})
	return accepted
}

// PlayerJoinResult reports how a join attempt resolved.
type PlayerJoinResult struct {
	ParticipantID string
	Err           string // "" on success, else a user-facing message already sent to conn
}

// PlayerJoin registers a new participant in the lobby, or rejects the
// attempt with a user-facing reason.
func (s *Session) PlayerJoin(conn Conn, name string, newID func() string) PlayerJoinResult {
	var result PlayerJoinResult
	s.submit(func(st *sessionState) {
		if st.state != StateLobby {
			result.Err = "this game has already started"
			conn.Send(NewError("%s", result.Err))
			return
		}

		if len(st.participants) >= maxParticipants {
			result.Err = "this game is full"
			conn.Send(NewError("%s", result.Err))
			return
		}

		clean := sanitizeName(name)
		if clean == "" {
			result.Err = "please enter a name"
			conn.Send(NewError("%s", result.Err))
			return
		}

		lower := strings.ToLower(clean)
		if _, taken := st.byNameLower[lower]; taken {
			result.Err = "that name is already taken"
			conn.Send(NewError("%s", result.Err))
			return
		}

		id := newID()
		p := &Participant{ID: id, Name: clean, Conn: conn}
		st.participants = append(st.participants, p)
		st.byID[id] = p
		st.byNameLower[lower] = p

		conn.Send(JoinedMsg{Type: "joined", PlayerID: id, Name: clean})

		if st.host != nil {
			st.host.Send(PlayerJoinedMsg{Type: "player_joined", Name: clean, Count: liveCount(st.participants)})
		}

		result.ParticipantID = id
	})
	return result
}

func sanitizeName(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.ReplaceAll(s, "<", "")
	s = strings.ReplaceAll(s, ">", "")
	s = strings.TrimSpace(s)
	if len(s) > maxNameLength {
		s = s[:maxNameLength]
	}
	return s
}

// StartGame transitions lobby -> question(0), if a host issues it with
// at least one participant present.
func (s *Session) StartGame() {
	s.submit(func(st *sessionState) {
		if st.state != StateLobby {
			// start_game is idempotent: duplicates outside lobby are ignored.
			return
		}
		if len(st.participants) == 0 {
			if st.host != nil {
				st.host.Send(NewError("at least one player must join before starting"))
			}
			return
		}
		s.enterQuestion(st, 0)
	})
}

// NextQuestion short-circuits the q_result auto-advance timer. Only
// honored while in q_result.
func (s *Session) NextQuestion() {
	s.submit(func(st *sessionState) {
		if st.state != StateQResult {
			return
		}
		s.advance(st)
	})
}

// EndGame forces a transition to final from any state. No
// question_result is emitted for an in-progress question.
func (s *Session) EndGame() {
	s.submit(func(st *sessionState) {
		s.enterFinal(st)
	})
}

// AnswerResult is returned privately to the submitting participant.
type AnswerResult struct {
	Accepted bool
	Correct  bool
	Points   int
}

// Answer records or finalizes a participant's selection for the
// current question.
func (s *Session) Answer(participantID string, sel quiz.Selection, final bool) AnswerResult {
	var result AnswerResult
	s.submit(func(st *sessionState) {
		if st.state != StateQuestion {
			return
		}
		p, ok := st.byID[participantID]
		if !ok || !p.live() {
			return
		}

		q := st.quiz.Questions[st.currentIndex]

		pa, ok := st.answers[participantID]
		if !ok {
			pa = &pendingAnswer{}
			st.answers[participantID] = pa
		}

		if pa.submitted {
			// Immutable once submitted.
			return
		}

		pa.selection = sel
		if q.Kind == quiz.Multiple && !final {
			// Provisional selection: retained, not scored.
			return
		}

		pa.submitted = true
		elapsed := time.Since(st.questionStart).Seconds()
		pa.correct, pa.points = quiz.Score(q, pa.selection, elapsed)
		p.Score += pa.points

		p.Conn.Send(AnswerReceivedMsg{Type: "answer_received", Correct: pa.correct, Points: pa.points})

		submitted, live := answerCounts(st)
		if st.host != nil {
			st.host.Send(AnswerCountMsg{Type: "answer_count", Count: submitted, Total: live})
		}

		if submitted >= live && live > 0 {
			s.scheduleReveal(st)
		}

		result.Accepted = true
		result.Correct = pa.correct
		result.Points = pa.points
	})
	return result
}

// PlayerDisconnected tombstones a participant's connection.
func (s *Session) PlayerDisconnected(participantID string) {
	s.submit(func(st *sessionState) {
		p, ok := st.byID[participantID]
		if !ok || !p.live() {
			return
		}
		p.Conn = nil

		live := liveCount(st.participants)
		if st.host != nil {
			st.host.Send(PlayerLeftMsg{Type: "player_left", Count: live})
		}

		if st.state == StateQuestion {
			submitted, _ := answerCounts(st)
			if live > 0 && submitted >= live {
				s.scheduleReveal(st)
			}
		}
	})
}

// HostDisconnected notifies players the host left. The session is not
// destroyed; timers keep running.
func (s *Session) HostDisconnected() {
	s.submit(func(st *sessionState) {
		st.host = nil
		broadcastPlayers(st, HostLeftMsg{Type: "host_left"})
	})
}

// --- internal: state machine ---
//
// Every function below runs only inside the event-loop goroutine (i.e.
// only ever called from within a submit closure), so it may read and
// write sessionState freely without further locking.

func (s *Session) enterQuestion(st *sessionState, index int) {
	cancelTimers(st)
	st.currentIndex = index
	st.state = StateQuestion
	st.answers = make(map[string]*pendingAnswer)
	st.questionStart = time.Now()
	st.epoch++
	epoch := st.epoch

	q := st.quiz.Questions[index]
	total := len(st.quiz.Questions)

	sendToHost(st, QuestionMsg{
		Type: "question", Index: index, Total: total, Question: q.Prompt,
		Answers: q.Answers, Time: q.TimeLimit, QuestionType: string(q.Kind),
		Image: q.ImageURL, Correct: q.Correct,
	})
	broadcastPlayers(st, QuestionMsg{
		Type: "question", Index: index, Total: total, Question: q.Prompt,
		Answers: q.Answers, Time: q.TimeLimit, QuestionType: string(q.Kind),
		Image: q.ImageURL,
	})

	limit := time.Duration(q.TimeLimit) * time.Second
	// The timer posts a closure back onto the session's own event
	// channel so it executes inside the same serialization point as
	// every other transition.
	st.questionTimer = time.AfterFunc(limit, func() {
		s.submit(func(st *sessionState) { s.revealIfCurrent(st, epoch) })
	})
}

func (s *Session) scheduleReveal(st *sessionState) {
	if st.questionTimer != nil {
		st.questionTimer.Stop()
		st.questionTimer = nil
	}
	if st.autoTimer != nil {
		return // already scheduled
	}
	epoch := st.epoch
	st.autoTimer = time.AfterFunc(revealDelay, func() {
		s.submit(func(st *sessionState) { s.revealIfCurrent(st, epoch) })
	})
}

// revealIfCurrent performs the question -> q_result transition. It is
// idempotent: invoked with a stale epoch it does nothing (the timers
// held in st then belong to a later phase and keep running); invoked
// when state != question it does nothing but clear any stale timers.
func (s *Session) revealIfCurrent(st *sessionState, epoch int) {
	if st.epoch != epoch {
		return
	}
	if st.state != StateQuestion {
		cancelTimers(st)
		return
	}
	s.enterQResult(st)
}

func (s *Session) enterQResult(st *sessionState) {
	cancelTimers(st)
	st.state = StateQResult
	st.epoch++
	epoch := st.epoch

	q := st.quiz.Questions[st.currentIndex]
	isLast := st.currentIndex >= len(st.quiz.Questions)-1

	counts := make([]int, len(q.Answers))
	for _, pa := range st.answers {
		if !pa.submitted {
			continue
		}
		for _, idx := range selectionIndexes(pa.selection) {
			if idx >= 0 && idx < len(counts) {
				counts[idx]++
			}
		}
	}

	board := leaderboard(st.participants)

	sendToHost(st, QuestionResultMsg{
		Type: "question_result", Correct: q.Correct, Leaderboard: board,
		QuestionType: string(q.Kind), IsLast: isLast, AnswerCounts: counts,
	})
	broadcastPlayers(st, QuestionResultMsg{
		Type: "question_result", Correct: q.Correct, Leaderboard: board,
		QuestionType: string(q.Kind), IsLast: isLast,
	})

	st.autoTimer = time.AfterFunc(advanceDelay, func() {
		s.submit(func(st *sessionState) { s.advanceIfCurrent(st, epoch) })
	})
}

func (s *Session) advanceIfCurrent(st *sessionState, epoch int) {
	if st.epoch != epoch {
		return
	}
	if st.state != StateQResult {
		cancelTimers(st)
		return
	}
	s.advance(st)
}

// advance performs the shared q_result "move on" action: the next
// question, or final if that was the last one. Both the 5-second
// auto-advance timer and an explicit host next_question call this.
func (s *Session) advance(st *sessionState) {
	if st.currentIndex >= len(st.quiz.Questions)-1 {
		s.enterFinal(st)
		return
	}
	s.enterQuestion(st, st.currentIndex+1)
}

func (s *Session) enterFinal(st *sessionState) {
	if st.state == StateFinal {
		return
	}
	cancelTimers(st)
	st.state = StateFinal
	if st.currentIndex < len(st.quiz.Questions)-1 {
		// Keeps currentIndex consistent with state=final even when
		// end_game fires early; currentIndex is internal bookkeeping,
		// never sent to clients.
		st.currentIndex = len(st.quiz.Questions) - 1
	}

	board := leaderboard(st.participants)
	msg := GameOverMsg{Type: "game_over", Leaderboard: board}
	sendToHost(st, msg)
	broadcastPlayers(st, msg)

	if st.reapFunc != nil {
		reap := st.reapFunc
		time.AfterFunc(st.reapDelay, reap)
	}
}

func cancelTimers(st *sessionState) {
	if st.questionTimer != nil {
		st.questionTimer.Stop()
		st.questionTimer = nil
	}
	if st.autoTimer != nil {
		st.autoTimer.Stop()
		st.autoTimer = nil
	}
}

// --- helpers ---

func answerCounts(st *sessionState) (submitted, live int) {
	live = liveCount(st.participants)
	for _, p := range st.participants {
		if !p.live() {
			continue
		}
		if pa, ok := st.answers[p.ID]; ok && pa.submitted {
			submitted++
		}
	}
	return submitted, live
}

func selectionIndexes(sel quiz.Selection) []int {
	if len(sel.Multi) > 0 {
		return sel.Multi
	}
	return []int{sel.Single}
}

func leaderboard(participants []*Participant) []LeaderboardEntry {
	ranked := make([]*Participant, len(participants))
	copy(ranked, participants)

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})

	board := make([]LeaderboardEntry, len(ranked))
	for i, p := range ranked {
		board[i] = LeaderboardEntry{Rank: i + 1, Name: p.Name, Score: p.Score}
	}
	return board
}

