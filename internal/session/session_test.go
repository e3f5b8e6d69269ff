package session

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/nullhaven/quizhost/internal/quiz"
)

// fakeConn records every message sent to it, for assertions in tests.
type fakeConn struct {
	mu   sync.Mutex
	name string
	msgs []any
}

func newFakeConn(name string) *fakeConn {
	return &fakeConn{name: name}
}

func (c *fakeConn) Send(v any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, v)
}

func (c *fakeConn) last() any {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.msgs) == 0 {
		return nil
	}
	return c.msgs[len(c.msgs)-1]
}

func (c *fakeConn) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.msgs)
}

func (c *fakeConn) find(typ string) any {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.msgs) - 1; i >= 0; i-- {
		switch m := c.msgs[i].(type) {
		case QuestionResultMsg:
			if m.Type == typ {
				return m
			}
		case GameOverMsg:
			if m.Type == typ {
				return m
			}
		case AnswerReceivedMsg:
			if m.Type == typ {
				return m
			}
		}
	}
	return nil
}

var idCounter int
var idMu sync.Mutex

func nextID() string {
	idMu.Lock()
	defer idMu.Unlock()
	idCounter++
	return fmt.Sprintf("p%d", idCounter)
}

func singleQuestionQuiz() quiz.Quiz {
	return quiz.Quiz{Questions: []quiz.Question{
		{
			Prompt:    "2+2?",
			Answers:   []string{"3", "4", "5", "6"},
			Correct:   []int{1},
			TimeLimit: 20,
			Kind:      quiz.Single,
		},
	}}
}

func newTestSession(q quiz.Quiz) *Session {
	s := New("123456", q, 10*time.Minute, nil)
	s.Start()
	return s
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

func TestHappyPathSingleChoice(t *testing.T) {
	s := newTestSession(singleQuestionQuiz())
	defer s.Stop()

	host := newFakeConn("host")
	s.HostJoin(host)

	alice := newFakeConn("alice")
	join := s.PlayerJoin(alice, "Alice", nextID)
	if join.Err != "" {
		t.Fatalf("unexpected join error: %s", join.Err)
	}

	s.StartGame()

	result := s.Answer(join.ParticipantID, quiz.Selection{Single: 1}, true)
	if !result.Accepted || !result.Correct || result.Points != 1000 {
		t.Fatalf("unexpected answer result: %+v", result)
	}

	waitFor(t, 2*time.Second, func() bool {
		return alice.find("question_result") != nil
	})

	qr := alice.find("question_result").(QuestionResultMsg)
	if !qr.IsLast {
		t.Fatalf("expected isLast=true for a one-question quiz")
	}
	if len(qr.Leaderboard) != 1 || qr.Leaderboard[0].Score != 1000 || qr.Leaderboard[0].Name != "Alice" {
		t.Fatalf("unexpected leaderboard: %+v", qr.Leaderboard)
	}

	waitFor(t, 7*time.Second, func() bool {
		return alice.find("game_over") != nil
	})

	over := alice.find("game_over").(GameOverMsg)
	if over.Leaderboard[0].Score != 1000 {
		t.Fatalf("unexpected final leaderboard: %+v", over.Leaderboard)
	}
}

func TestDuplicateNameRejected(t *testing.T) {
	s := newTestSession(singleQuestionQuiz())
	defer s.Stop()

	a1 := newFakeConn("a1")
	if r := s.PlayerJoin(a1, "Alice", nextID); r.Err != "" {
		t.Fatalf("first join should succeed, got %s", r.Err)
	}

	a2 := newFakeConn("a2")
	r := s.PlayerJoin(a2, "alice", nextID)
	if r.Err == "" {
		t.Fatalf("expected duplicate-name rejection (case-insensitive)")
	}
}

func TestSecondHostJoinRejected(t *testing.T) {
	s := newTestSession(singleQuestionQuiz())
	defer s.Stop()

	h1 := newFakeConn("h1")
	if !s.HostJoin(h1) {
		t.Fatalf("first host_join should be accepted")
	}

	h2 := newFakeConn("h2")
	if s.HostJoin(h2) {
		t.Fatalf("second host_join should be rejected while a host is live")
	}
	if h2.last() == nil {
		t.Fatalf("expected the displaced host_join attempt to get an error reply")
	}

	s.HostDisconnected()

	h3 := newFakeConn("h3")
	if !s.HostJoin(h3) {
		t.Fatalf("host_join should succeed again once the prior host disconnects")
	}
}

func TestStartGameRequiresPlayers(t *testing.T) {
	s := newTestSession(singleQuestionQuiz())
	defer s.Stop()

	host := newFakeConn("host")
	s.HostJoin(host)

	s.StartGame()

	if _, isErr := host.last().(ErrorMsg); !isErr || host.count() != 2 {
		t.Fatalf("expected the host_joined ack followed by an error, got %d messages", host.count())
	}
}

func TestEarlyFinishFastPath(t *testing.T) {
	q := quiz.Quiz{Questions: []quiz.Question{
		{Prompt: "p", Answers: []string{"a", "b"}, Correct: []int{0}, TimeLimit: 20, Kind: quiz.Single},
	}}
	s := newTestSession(q)
	defer s.Stop()

	p1 := newFakeConn("p1")
	j1 := s.PlayerJoin(p1, "One", nextID)
	p2 := newFakeConn("p2")
	j2 := s.PlayerJoin(p2, "Two", nextID)

	s.StartGame()

	s.Answer(j1.ParticipantID, quiz.Selection{Single: 0}, true)
	s.Answer(j2.ParticipantID, quiz.Selection{Single: 0}, true)

	waitFor(t, 2*time.Second, func() bool {
		return p1.find("question_result") != nil
	})
}

func TestHostShortCircuitsAutoAdvance(t *testing.T) {
	q := quiz.Quiz{Questions: []quiz.Question{
		{Prompt: "p1", Answers: []string{"a", "b"}, Correct: []int{0}, TimeLimit: 20, Kind: quiz.Single},
		{Prompt: "p2", Answers: []string{"a", "b"}, Correct: []int{0}, TimeLimit: 20, Kind: quiz.Single},
	}}
	s := newTestSession(q)
	defer s.Stop()

	p1 := newFakeConn("p1")
	j1 := s.PlayerJoin(p1, "One", nextID)

	s.StartGame()
	s.Answer(j1.ParticipantID, quiz.Selection{Single: 0}, true)

	waitFor(t, 2*time.Second, func() bool {
		return p1.find("question_result") != nil
	})

	s.NextQuestion()

	waitFor(t, time.Second, func() bool {
		if m, ok := p1.last().(QuestionMsg); ok {
			return m.Index == 1
		}
		return false
	})
}

func TestDisconnectCompletesRound(t *testing.T) {
	q := quiz.Quiz{Questions: []quiz.Question{
		{Prompt: "p", Answers: []string{"a", "b"}, Correct: []int{0}, TimeLimit: 20, Kind: quiz.Single},
	}}
	s := newTestSession(q)
	defer s.Stop()

	p1 := newFakeConn("p1")
	j1 := s.PlayerJoin(p1, "One", nextID)
	p2 := newFakeConn("p2")
	j2 := s.PlayerJoin(p2, "Two", nextID)
	p3 := newFakeConn("p3")
	j3 := s.PlayerJoin(p3, "Three", nextID)

	s.StartGame()

	s.Answer(j1.ParticipantID, quiz.Selection{Single: 0}, true)
	s.Answer(j2.ParticipantID, quiz.Selection{Single: 0}, true)
	s.PlayerDisconnected(j3.ParticipantID)

	waitFor(t, 2*time.Second, func() bool {
		return p1.find("question_result") != nil
	})
}

func TestMultiChoicePartialCredit(t *testing.T) {
	q := quiz.Quiz{Questions: []quiz.Question{
		{Prompt: "pick all", Answers: []string{"2", "3", "4", "9"}, Correct: []int{0, 1, 2}, TimeLimit: 20, Kind: quiz.Multiple},
	}}
	s := newTestSession(q)
	defer s.Stop()

	bob := newFakeConn("bob")
	jb := s.PlayerJoin(bob, "Bob", nextID)

	s.StartGame()

	result := s.Answer(jb.ParticipantID, quiz.Selection{Multi: []int{0, 1}}, true)
	if result.Correct {
		t.Fatalf("partial credit must not be reported as fully correct")
	}
	if result.Points != 200 {
		t.Fatalf("got %d points, want 200", result.Points)
	}
}

func TestProvisionalMultiSelectionIgnoredUntilFinal(t *testing.T) {
	q := quiz.Quiz{Questions: []quiz.Question{
		{Prompt: "pick", Answers: []string{"a", "b", "c"}, Correct: []int{0, 1}, TimeLimit: 20, Kind: quiz.Multiple},
	}}
	s := newTestSession(q)
	defer s.Stop()

	bob := newFakeConn("bob")
	jb := s.PlayerJoin(bob, "Bob", nextID)
	s.StartGame()

	provisional := s.Answer(jb.ParticipantID, quiz.Selection{Multi: []int{0}}, false)
	if provisional.Accepted {
		t.Fatalf("provisional (non-final) selection must not be accepted as a submission")
	}

	final := s.Answer(jb.ParticipantID, quiz.Selection{Multi: []int{0, 1}}, true)
	if !final.Accepted || !final.Correct {
		t.Fatalf("final submission should be accepted and correct: %+v", final)
	}
}

func TestSubmittedAnswerIsImmutable(t *testing.T) {
	s := newTestSession(singleQuestionQuiz())
	defer s.Stop()

	alice := newFakeConn("alice")
	ja := s.PlayerJoin(alice, "Alice", nextID)
	s.StartGame()

	first := s.Answer(ja.ParticipantID, quiz.Selection{Single: 1}, true)
	second := s.Answer(ja.ParticipantID, quiz.Selection{Single: 0}, true)

	if !first.Accepted {
		t.Fatalf("first answer should be accepted")
	}
	if second.Accepted {
		t.Fatalf("second answer after submission must be ignored")
	}
}
