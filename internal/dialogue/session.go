// Package dialogue owns the per-visitor conversation state: the
// transcript, the busy guard that keeps submissions sequential, and the
// terminal handoff to the ending flow.
package dialogue

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"dcode-agent/internal/domain"
	"dcode-agent/internal/scenario"
	"dcode-agent/internal/usecase"
)

// Resolver produces the next bot turn for a user submission.
type Resolver interface {
	Resolve(ctx context.Context, destination string, input domain.UserInput, transcript []domain.Turn) (domain.BotTurnDraft, error)
}

// HandoffPayload is handed to the ending collaborator when the visitor
// selects the terminal option. UserID is the session owner's account
// key; the trip record must be stored under it so the ending screen
// can read it back.
type HandoffPayload struct {
	UserID        string
	ScanArtifact  string
	VisitedPlaces []string
	Nickname      string
}

// Handoff receives control when the scripted scenario ends.
type Handoff interface {
	Complete(ctx context.Context, payload HandoffPayload) error
}

// HandoffFunc adapts a function to the Handoff interface.
type HandoffFunc func(ctx context.Context, payload HandoffPayload) error

func (f HandoffFunc) Complete(ctx context.Context, payload HandoffPayload) error {
	return f(ctx, payload)
}

// SubmitResult carries the turns appended by one submission.
type SubmitResult struct {
	Turns []domain.Turn
	Ended bool
}

// Session is the state machine for one chat session. The transcript is
// owned exclusively by the session and grows append-only; turn IDs are
// monotonic. At most one submission may be in flight at a time: a
// second Submit while the first awaits its bot turn is rejected rather
// than interleaved.
type Session struct {
	id          string
	destination string
	nickname    string
	userID      string
	resolver    Resolver
	handoff     Handoff

	mu           sync.Mutex
	transcript   []domain.Turn
	started      bool
	busy         bool
	closed       bool
	ended        bool
	scanArtifact string
	lastActive   time.Time
}

func newSession(id, destination, nickname, userID string, r Resolver, h Handoff) (*Session, error) {
	if r == nil {
		return nil, errors.New("dialogue: resolver must not be nil")
	}
	if h == nil {
		return nil, errors.New("dialogue: handoff must not be nil")
	}
	if strings.TrimSpace(destination) == "" {
		return nil, errors.New("dialogue: destination must not be empty")
	}
	return &Session{
		id:          id,
		destination: destination,
		nickname:    nickname,
		userID:      userID,
		resolver:    r,
		handoff:     h,
		lastActive:  time.Now(),
	}, nil
}

// Start seeds the transcript with the greeting turn. It must be called
// exactly once before any Submit.
func (s *Session) Start() (domain.Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return domain.Turn{}, usecase.NewError(usecase.ErrorInternal, "session_already_started", nil)
	}
	s.started = true
	greeting := s.appendLocked(scenario.Greeting(s.nickname), domain.SpeakerBot, scenario.GreetingOptions())
	return greeting, nil
}

// Submit appends the user turn and, unless the terminal option was
// chosen, the resolved bot turn. The terminal option appends no bot
// turn; it fires the handoff exactly once and ends the session.
func (s *Session) Submit(ctx context.Context, input domain.UserInput) (SubmitResult, error) {
	value := strings.TrimSpace(input.Value)
	if value == "" {
		return SubmitResult{}, usecase.NewError(usecase.ErrorInvalidInput, "empty_input", nil)
	}

	s.mu.Lock()
	if err := s.acceptingLocked(); err != nil {
		s.mu.Unlock()
		return SubmitResult{}, err
	}

	// The same trimmed comparison the resolver uses, so a padded
	// terminal value cannot slip past the intercept and reach Resolve.
	if input.Kind == domain.InputOption && value == scenario.TerminalOption {
		userTurn := s.appendLocked(scenario.TerminalOption, domain.SpeakerUser, nil)
		s.ended = true
		payload := HandoffPayload{
			UserID:        s.userID,
			ScanArtifact:  s.scanArtifact,
			VisitedPlaces: []string{s.destination},
			Nickname:      s.nickname,
		}
		s.mu.Unlock()

		if err := s.handoff.Complete(ctx, payload); err != nil {
			return SubmitResult{}, usecase.NewError(usecase.ErrorInternal, "handoff_failed", err)
		}
		return SubmitResult{Turns: []domain.Turn{userTurn}, Ended: true}, nil
	}

	userTurn := s.appendLocked(input.Value, domain.SpeakerUser, nil)
	s.busy = true
	snapshot := append([]domain.Turn(nil), s.transcript...)
	destination := s.destination
	s.mu.Unlock()

	draft, err := s.resolver.Resolve(ctx, destination, input, snapshot)

	s.mu.Lock()
	s.busy = false
	if err != nil {
		s.mu.Unlock()
		return SubmitResult{}, err
	}
	if s.closed {
		// The screen was torn down mid-call; drop the late result.
		s.mu.Unlock()
		return SubmitResult{}, usecase.NewError(usecase.ErrorNotFound, "session_closed", nil)
	}
	botTurn := s.appendLocked(draft.Text, domain.SpeakerBot, draft.Options)
	s.mu.Unlock()

	return SubmitResult{Turns: []domain.Turn{userTurn, botTurn}}, nil
}

// CompleteScan records the opaque scan artifact from the camera
// collaborator and appends the fixed scan-complete exchange, whose
// reply offers only the terminal option.
func (s *Session) CompleteScan(artifact string) (SubmitResult, error) {
	if strings.TrimSpace(artifact) == "" {
		return SubmitResult{}, usecase.NewError(usecase.ErrorInvalidInput, "empty_scan_artifact", nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.acceptingLocked(); err != nil {
		return SubmitResult{}, err
	}

	s.scanArtifact = artifact
	userText, reply := scenario.ScanExchange()
	userTurn := s.appendLocked(userText, domain.SpeakerUser, nil)
	botTurn := s.appendLocked(reply.Response, domain.SpeakerBot, reply.FollowUpOptions)
	return SubmitResult{Turns: []domain.Turn{userTurn, botTurn}}, nil
}

// CurrentOptions returns the selectable options of the most recent
// turn when it is a bot turn, else nothing.
func (s *Session) CurrentOptions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.transcript) == 0 {
		return nil
	}
	last := s.transcript[len(s.transcript)-1]
	if last.Speaker != domain.SpeakerBot {
		return nil
	}
	return append([]string(nil), last.Options...)
}

// Transcript returns a copy of the session transcript.
func (s *Session) Transcript() []domain.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Turn(nil), s.transcript...)
}

// Close tears the session down. A submission still in flight has its
// result discarded rather than appended.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

func (s *Session) ID() string          { return s.id }
func (s *Session) Destination() string { return s.destination }
func (s *Session) Nickname() string    { return s.nickname }
func (s *Session) UserID() string      { return s.userID }

// Ended reports whether the terminal handoff has fired.
func (s *Session) Ended() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ended
}

func (s *Session) idle(now time.Time, maxAge time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.lastActive) > maxAge
}

// acceptingLocked checks whether the session can take a new submission.
func (s *Session) acceptingLocked() error {
	switch {
	case !s.started:
		return usecase.NewError(usecase.ErrorInternal, "submit_before_start", nil)
	case s.closed:
		return usecase.NewError(usecase.ErrorNotFound, "session_closed", nil)
	case s.ended:
		return usecase.NewError(usecase.ErrorInvalidInput, "session_ended", nil)
	case s.busy:
		return usecase.NewError(usecase.ErrorBusy, "submission_in_flight", nil)
	}
	return nil
}

// appendLocked appends a turn with the next monotonic ID. Caller holds s.mu.
func (s *Session) appendLocked(text string, speaker domain.Speaker, options []string) domain.Turn {
	turn := domain.Turn{
		ID:      len(s.transcript) + 1,
		Text:    text,
		Speaker: speaker,
		Options: append([]string(nil), options...),
	}
	s.transcript = append(s.transcript, turn)
	s.lastActive = time.Now()
	return turn
}
