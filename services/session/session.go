package session

import (
	"errors"
	"strings"
	"sync"

	"carematch/pkg/errutil"
	"carematch/pkg/observable"

	"go.uber.org/zap"
)

type Phase int

const (
	PhaseSignedOut Phase = iota
	PhaseLoading
	PhaseSignedIn
)

func (p Phase) String() string {
	switch p {
	case PhaseLoading:
		return "loading"
	case PhaseSignedIn:
		return "signed_in"
	default:
		return "signed_out"
	}
}

type Role int

const (
	RoleNone Role = iota
	RolePatient
	RoleDoctor
)

func (r Role) String() string {
	switch r {
	case RolePatient:
		return "patient"
	case RoleDoctor:
		return "doctor"
	default:
		return "none"
	}
}

func ParseRole(s string) (Role, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return RoleNone, true
	case "patient":
		return RolePatient, true
	case "doctor":
		return RoleDoctor, true
	default:
		return RoleNone, false
	}
}

// State is the authentication state of the active session.
type State struct {
	Phase  Phase
	UserID string
	Role   Role
}

func (s State) SignedIn() bool {
	return s.Phase == PhaseSignedIn
}

var ErrNotSignedIn = errors.New("session: not signed in")

// Store holds the single active session and streams its changes.
type Store struct {
	mu      sync.Mutex
	state   State
	changes *observable.Subject[State]
}

func NewStore() *Store {
	s := &Store{changes: observable.NewSubject[State]()}
	s.changes.Publish(s.state)
	return s
}

func (s *Store) Current() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Subscribe replays the current state, then every change.
func (s *Store) Subscribe() *observable.Subscription[State] {
	return s.changes.Subscribe()
}

func (s *Store) set(next State) State {
	s.state = next
	s.changes.Publish(next)
	zap.L().Debug("session changed",
		zap.String("phase", next.Phase.String()),
		zap.String("user_id", next.UserID),
		zap.String("role", next.Role.String()),
	)
	return next
}

// BeginSignIn marks authentication as in flight.
func (s *Store) BeginSignIn() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.set(State{Phase: PhaseLoading})
}

// SignIn completes authentication. role may be RoleNone when the user has
// not picked one yet.
func (s *Store) SignIn(userID string, role Role) (State, error) {
	if strings.TrimSpace(userID) == "" {
		return State{}, errutil.BadRequest("user id is required", nil, errutil.WithField("user_id", "must not be blank"))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.set(State{Phase: PhaseSignedIn, UserID: userID, Role: role}), nil
}

func (s *Store) ChooseRole(role Role) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.state.SignedIn() {
		return s.state, errutil.UnprocessableEntity("sign in before choosing a role", ErrNotSignedIn)
	}
	next := s.state
	next.Role = role
	return s.set(next), nil
}

func (s *Store) SignOut() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.set(State{Phase: PhaseSignedOut})
}

// Clear closes every subscription and signs out. Tests only.
func (s *Store) Clear() {
	s.changes.Close()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = State{}
	s.changes.Publish(s.state)
}
