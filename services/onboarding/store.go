package onboarding

import (
	"sync"
	"time"

	"carematch/pkg/observable"

	"go.uber.org/zap"
)

// Change is published after every profile mutation.
type Change struct {
	UserID   string
	Complete bool
}

// Store keeps one profile snapshot per user. Completeness is derived on
// demand and never stored.
type Store[P any] struct {
	name     string
	mu       sync.Mutex
	profiles map[string]*P
	clone    func(*P) *P
	complete func(*P) bool
	changes  *observable.Subject[Change]
}

func NewStore[P any](name string, clone func(*P) *P, complete func(*P) bool) *Store[P] {
	return &Store[P]{
		name:     name,
		profiles: make(map[string]*P),
		clone:    clone,
		complete: complete,
		changes:  observable.NewSubject[Change](),
	}
}

// Get returns a copy of the profile, nil when the user has none yet.
func (s *Store[P]) Get(userID string) *P {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clone(s.profiles[userID])
}

func (s *Store[P]) IsComplete(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.complete(s.profiles[userID])
}

// Mutate applies fn to a working copy of the profile, stores it and publishes
// the resulting Change. fn never sees a nil profile.
func (s *Store[P]) Mutate(userID string, fn func(p *P)) Change {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.clone(s.profiles[userID])
	if p == nil {
		p = new(P)
	}
	fn(p)
	s.profiles[userID] = p

	change := Change{UserID: userID, Complete: s.complete(p)}
	s.changes.Publish(change)

	zap.L().Debug("profile updated",
		zap.String("profile", s.name),
		zap.String("user_id", userID),
		zap.Bool("complete", change.Complete),
	)
	return change
}

// Replace overwrites the whole profile.
func (s *Store[P]) Replace(userID string, profile *P) Change {
	return s.Mutate(userID, func(p *P) {
		if profile != nil {
			*p = *s.clone(profile)
		}
	})
}

// Changes streams profile changes of every user, starting with the latest.
func (s *Store[P]) Changes() *observable.Subscription[Change] {
	return s.changes.Subscribe()
}

// Clear drops every profile and closes every subscription. Tests only.
func (s *Store[P]) Clear() {
	s.mu.Lock()
	s.profiles = make(map[string]*P)
	s.mu.Unlock()
	s.changes.Close()
}

type PatientStore struct {
	*Store[PatientProfile]
}

func NewPatientStore() *PatientStore {
	return &PatientStore{NewStore("patient", (*PatientProfile).Clone, IsPatientComplete)}
}

func (s *PatientStore) SetPersonalDetails(userID, fullName string, dob time.Time) Change {
	return s.Mutate(userID, func(p *PatientProfile) {
		p.FullName = fullName
		p.DateOfBirth = dob
	})
}

func (s *PatientStore) AcceptTerms(userID string) Change {
	return s.Mutate(userID, func(p *PatientProfile) { p.AcceptedTerms = true })
}

func (s *PatientStore) SetAddress(userID string, a Address) Change {
	return s.Mutate(userID, func(p *PatientProfile) { p.Address = &a })
}

func (s *PatientStore) SetMedicalInfo(userID string, m MedicalInfo) Change {
	m.Allergies = append([]string(nil), m.Allergies...)
	m.Conditions = append([]string(nil), m.Conditions...)
	return s.Mutate(userID, func(p *PatientProfile) { p.MedicalInfo = &m })
}

func (s *PatientStore) SetInsurance(userID string, i Insurance) Change {
	return s.Mutate(userID, func(p *PatientProfile) { p.Insurance = &i })
}

func (s *PatientStore) SetEmergencyContact(userID string, e EmergencyContact) Change {
	return s.Mutate(userID, func(p *PatientProfile) { p.EmergencyContact = &e })
}

// UpdateEmergencyContact edits the contact in place, creating it if needed.
func (s *PatientStore) UpdateEmergencyContact(userID string, fn func(e *EmergencyContact)) Change {
	return s.Mutate(userID, func(p *PatientProfile) {
		if p.EmergencyContact == nil {
			p.EmergencyContact = &EmergencyContact{}
		}
		fn(p.EmergencyContact)
	})
}

type DoctorStore struct {
	*Store[DoctorProfile]
}

func NewDoctorStore() *DoctorStore {
	return &DoctorStore{NewStore("doctor", (*DoctorProfile).Clone, IsDoctorComplete)}
}

func (s *DoctorStore) SetFullName(userID, fullName string) Change {
	return s.Mutate(userID, func(p *DoctorProfile) { p.FullName = fullName })
}

func (s *DoctorStore) AcceptTerms(userID string) Change {
	return s.Mutate(userID, func(p *DoctorProfile) { p.AcceptedTerms = true })
}

func (s *DoctorStore) SetLicense(userID string, l License) Change {
	return s.Mutate(userID, func(p *DoctorProfile) { p.License = &l })
}

func (s *DoctorStore) SetBio(userID, bio string) Change {
	return s.Mutate(userID, func(p *DoctorProfile) { p.Bio = bio })
}

func (s *DoctorStore) AddEducation(userID string, e Education) Change {
	return s.Mutate(userID, func(p *DoctorProfile) { p.Education = append(p.Education, e) })
}

func (s *DoctorStore) SetPractice(userID string, pr Practice) Change {
	pr.Specialties = append([]string(nil), pr.Specialties...)
	return s.Mutate(userID, func(p *DoctorProfile) { p.Practice = &pr })
}
