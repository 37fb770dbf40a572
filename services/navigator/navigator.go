package navigator

import (
	"context"
	"strings"
	"sync"

	"carematch/pkg/errutil"
	"carematch/pkg/observable"
	"carematch/services/onboarding"
	"carematch/services/session"

	"go.uber.org/zap"
)

// Destination is a top-level flow. It is also the category of every screen
// pushed on top of it.
type Destination int

const (
	Welcome Destination = iota
	RoleSelection
	PatientSetup
	PatientMain
	DoctorSetup
	DoctorMain
)

func (d Destination) String() string {
	switch d {
	case RoleSelection:
		return "role_selection"
	case PatientSetup:
		return "patient_setup"
	case PatientMain:
		return "patient_main"
	case DoctorSetup:
		return "doctor_setup"
	case DoctorMain:
		return "doctor_main"
	default:
		return "welcome"
	}
}

// Resolve picks the destination for an auth state and the completeness of
// the signed-in user's profile.
func Resolve(st session.State, onboardingComplete bool) Destination {
	if !st.SignedIn() {
		return Welcome
	}
	switch st.Role {
	case session.RolePatient:
		if onboardingComplete {
			return PatientMain
		}
		return PatientSetup
	case session.RoleDoctor:
		if onboardingComplete {
			return DoctorMain
		}
		return DoctorSetup
	default:
		return RoleSelection
	}
}

// Navigator keeps the back stack of the current category. The root of the
// stack is always the resolved destination.
type Navigator struct {
	session  *session.Store
	patients *onboarding.PatientStore
	doctors  *onboarding.DoctorStore

	mu      sync.Mutex
	stack   []string
	current Destination
	userID  string
	changes *observable.Subject[Destination]
}

func New(sessions *session.Store, patients *onboarding.PatientStore, doctors *onboarding.DoctorStore) *Navigator {
	n := &Navigator{
		session:  sessions,
		patients: patients,
		doctors:  doctors,
		changes:  observable.NewSubject[Destination](),
	}
	n.Sync()
	return n
}

func (n *Navigator) complete(st session.State) bool {
	switch st.Role {
	case session.RolePatient:
		return n.patients.IsComplete(st.UserID)
	case session.RoleDoctor:
		return n.doctors.IsComplete(st.UserID)
	default:
		return false
	}
}

// Sync recomputes the destination. When it differs from the root of the
// displayed stack, or another user is signed in, the stack is replaced
// wholesale.
func (n *Navigator) Sync() Destination {
	n.mu.Lock()
	defer n.mu.Unlock()

	st := n.session.Current()
	dest := Resolve(st, n.complete(st))

	if len(n.stack) > 0 && dest == n.current && st.UserID == n.userID {
		return dest
	}

	from := n.current
	n.current = dest
	n.userID = st.UserID
	n.stack = []string{dest.String()}
	n.changes.Publish(dest)

	zap.L().Info("navigation root replaced",
		zap.String("from", from.String()),
		zap.String("to", dest.String()),
		zap.String("user_id", st.UserID),
	)
	return dest
}

func (n *Navigator) Current() Destination {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.current
}

// Push opens route inside the current category.
func (n *Navigator) Push(route string) error {
	route = strings.TrimSpace(route)
	if route == "" {
		return errutil.BadRequest("route is required", nil, errutil.WithField("route", "must not be blank"))
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.stack = append(n.stack, route)
	return nil
}

// Back pops the top route. It never pops the root and reports whether
// anything was popped.
func (n *Navigator) Back() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.stack) <= 1 {
		return false
	}
	n.stack = n.stack[:len(n.stack)-1]
	return true
}

func (n *Navigator) Stack() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.stack...)
}

// Subscribe replays the current destination, then every change.
func (n *Navigator) Subscribe() *observable.Subscription[Destination] {
	return n.changes.Subscribe()
}

// Run syncs on every session change and every profile change until ctx ends.
func (n *Navigator) Run(ctx context.Context) error {
	sessions := n.session.Subscribe()
	defer sessions.Close()
	patients := n.patients.Changes()
	defer patients.Close()
	doctors := n.doctors.Changes()
	defer doctors.Close()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-sessions.C:
			if !ok {
				return nil
			}
		case change, ok := <-patients.C:
			if !ok {
				return nil
			}
			if change.UserID != n.session.Current().UserID {
				continue
			}
		case change, ok := <-doctors.C:
			if !ok {
				return nil
			}
			if change.UserID != n.session.Current().UserID {
				continue
			}
		}
		n.Sync()
	}
}
