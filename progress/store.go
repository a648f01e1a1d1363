package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/onboard"
	"github.com/xraph/onboard/id"
)

// KV is the minimal durable key-value contract a backend must provide.
// Get returns (nil, nil) when the key is absent.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store's structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// Store persists {state, answers} for one session under two logical
// keys. A failing backend degrades the store to in-memory operation:
// Save and Clear still succeed (with a logged warning), and Load falls
// back to the last in-process snapshot.
type Store struct {
	kv      KV
	session id.SessionID
	logger  *slog.Logger

	mu         sync.Mutex
	degraded   bool
	memState   *State
	memAnswers onboard.Answers
}

// New creates a progress store for the given session.
func New(kv KV, session id.SessionID, opts ...Option) *Store {
	s := &Store{
		kv:      kv,
		session: session,
		logger:  slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Session returns the session this store is scoped to.
func (s *Store) Session() id.SessionID { return s.session }

func (s *Store) positionKey() string {
	return "onboard:" + s.session.String() + ":position"
}

func (s *Store) answersKey() string {
	return "onboard:" + s.session.String() + ":answers"
}

// Save persists the state and answers snapshot. Backend failures are
// absorbed: the snapshot is retained in memory and Save returns nil.
func (s *Store) Save(ctx context.Context, state State, answers onboard.Answers) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state.SavedAt = time.Now().UTC()

	// The in-memory mirror is the fallback for same-process loads.
	st := state.Clone()
	s.memState = &st
	s.memAnswers = answers.Clone()

	posData, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("progress: marshal position: %w", err)
	}
	ansData, err := json.Marshal(answers)
	if err != nil {
		return fmt.Errorf("progress: marshal answers: %w", err)
	}

	if err := s.kv.Set(ctx, s.positionKey(), posData); err != nil {
		s.degrade("save position", err)
		return nil
	}
	if err := s.kv.Set(ctx, s.answersKey(), ansData); err != nil {
		s.degrade("save answers", err)
		return nil
	}
	s.degraded = false
	return nil
}

// Load restores the session's state and answers. ok is false when no
// progress exists. Backend failures fall back to the in-process
// snapshot, or report no progress when there is none.
func (s *Store) Load(ctx context.Context) (State, onboard.Answers, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	posData, err := s.kv.Get(ctx, s.positionKey())
	if err != nil {
		s.degrade("load position", err)
		return s.loadFromMemory()
	}
	if posData == nil {
		return State{}, nil, false, nil
	}

	var state State
	if err := json.Unmarshal(posData, &state); err != nil {
		return State{}, nil, false, fmt.Errorf("progress: decode position: %w", err)
	}
	if state.Completed == nil {
		state.Completed = make(map[int]bool)
	}

	answers := make(onboard.Answers)
	ansData, err := s.kv.Get(ctx, s.answersKey())
	if err != nil {
		s.degrade("load answers", err)
	} else if ansData != nil {
		if err := json.Unmarshal(ansData, &answers); err != nil {
			return State{}, nil, false, fmt.Errorf("progress: decode answers: %w", err)
		}
	}
	return state, answers, true, nil
}

// Clear removes both logical keys. Called only after the identity
// backend has durably accepted the final profile. Backend failures are
// absorbed; the in-memory mirror is always dropped.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.memState = nil
	s.memAnswers = nil

	if err := s.kv.Delete(ctx, s.positionKey()); err != nil {
		s.degrade("clear position", err)
		return nil
	}
	if err := s.kv.Delete(ctx, s.answersKey()); err != nil {
		s.degrade("clear answers", err)
		return nil
	}
	return nil
}

// Degraded reports whether the last backend operation failed.
func (s *Store) Degraded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.degraded
}

// loadFromMemory serves Load from the in-process mirror. Caller holds mu.
func (s *Store) loadFromMemory() (State, onboard.Answers, bool, error) {
	if s.memState == nil {
		return State{}, nil, false, nil
	}
	return s.memState.Clone(), s.memAnswers.Clone(), true, nil
}

// degrade logs the transition into in-memory-only operation. Caller
// holds mu. Repeated failures log at debug to avoid flooding.
func (s *Store) degrade(op string, err error) {
	perr := &onboard.PersistenceError{Op: op, Err: err}
	if s.degraded {
		s.logger.Debug("progress store still degraded", slog.Any("error", perr))
		return
	}
	s.degraded = true
	s.logger.Warn("progress store degraded to memory-only",
		slog.String("session", s.session.String()),
		slog.Any("error", perr),
	)
}
