package session

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/nullhaven/quizhost/internal/quiz"
)

// defaultReapDelay is used when a Directory is constructed via
// NewDirectory without an explicit --session-timeout override.
const defaultReapDelay = 10 * time.Minute

// Directory maps 6-digit game codes to sessions. It is the sole owner
// of Session objects: creation happens here, and
// every mutation of a Session's internal state happens inside that
// session's own serialized handler, never through the directory.
type Directory struct {
	mu        sync.Mutex
	sessions  map[string]*Session
	reapDelay time.Duration
}

// NewDirectory returns an empty session directory that reaps sessions
// reapDelay after they enter final (ten minutes by default; operator
// tunable via --session-timeout).
func NewDirectory(reapDelay time.Duration) *Directory {
	if reapDelay <= 0 {
		reapDelay = defaultReapDelay
	}
	return &Directory{sessions: make(map[string]*Session), reapDelay: reapDelay}
}

// Create allocates a fresh Session for quiz, registers it under a newly
// generated 6-digit code, and starts its event loop.
func (d *Directory) Create(q quiz.Quiz) (*Session, string) {
	d.mu.Lock()
	code := d.newCodeLocked()
	s := New(code, q, d.reapDelay, func() { d.Reap(code) })
	d.sessions[code] = s
	d.mu.Unlock()

	s.Start()
	return s, code
}

// Lookup returns the session registered under code, if any.
func (d *Directory) Lookup(code string) (*Session, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.sessions[code]
	return s, ok
}

// Reap unconditionally removes code from the directory and stops its
// session's event loop. Safe to call more than once for the same code.
func (d *Directory) Reap(code string) {
	d.mu.Lock()
	s, ok := d.sessions[code]
	if ok {
		delete(d.sessions, code)
	}
	d.mu.Unlock()

	if ok {
		s.Stop()
	}
}

// newCodeLocked generates a fresh 6-digit code, retrying on collision.
// Caller must hold d.mu.
func (d *Directory) newCodeLocked() string {
	for {
		code := randomSixDigits()
		if _, exists := d.sessions[code]; !exists {
			return code
		}
	}
}

func randomSixDigits() string {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		panic("crypto/rand failure: " + err.Error())
	}
	return fmt.Sprintf("%06d", n.Int64())
}

// ProbeSession reports whether code is joinable: ok if the game is in
// lobby, alreadyStarted if it exists but has moved on, notFound if the
// code is unknown.
type ProbeOutcome int

const (
	ProbeOK ProbeOutcome = iota
	ProbeAlreadyStarted
	ProbeNotFound
)

func (d *Directory) ProbeSession(code string) ProbeOutcome {
	s, ok := d.Lookup(code)
	if !ok {
		return ProbeNotFound
	}
	result := s.Probe()
	if result.OK {
		return ProbeOK
	}
	return ProbeAlreadyStarted
}
