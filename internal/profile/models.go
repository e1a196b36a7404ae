// Package profile holds the user profile aggregate: identity fields plus the
// current state of every trackable consent. History never lives here; the
// aggregate only knows the present.
package profile

import (
	"time"

	"othertales/pkg/domain"
)

// Plan is the subscription tier carried on the profile. It is opaque to the
// consent flow and mutated by a separate profile-edit path.
type Plan string

const (
	PlanFree Plan = "FREE"
	PlanPro  Plan = "PRO"
)

// ConsentState is the current value of one consent type.
// Invariant: GrantedAt is non-nil if and only if Granted is true.
type ConsentState struct {
	Granted   bool
	GrantedAt *time.Time
}

// Profile is the aggregate root for a user's identity and consent state.
// Consent fields are mutated only through UpdateConsent; Version is the
// optimistic concurrency token compared at write time.
type Profile struct {
	ID          domain.UserID
	Email       string
	DisplayName string
	AvatarURL   string
	Plan        Plan
	Consents    map[domain.ConsentType]ConsentState
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Version     int64
}

// New creates a profile for first authenticated access: every consent type
// starts ungranted and the version token starts at zero.
func New(id domain.UserID, email, displayName string, now time.Time) *Profile {
	consents := make(map[domain.ConsentType]ConsentState, len(domain.AllConsentTypes()))
	for _, t := range domain.AllConsentTypes() {
		consents[t] = ConsentState{}
	}
	return &Profile{
		ID:          id,
		Email:       email,
		DisplayName: displayName,
		Plan:        PlanFree,
		Consents:    consents,
		CreatedAt:   now,
		UpdatedAt:   now,
		Version:     0,
	}
}

// ConsentValue returns the current granted flag for a consent type.
// Never-set types report false.
func (p *Profile) ConsentValue(t domain.ConsentType) bool {
	return p.Consents[t].Granted
}

// ConsentChangedAt returns when the consent was last granted, or nil when it
// is not currently granted.
func (p *Profile) ConsentChangedAt(t domain.ConsentType) *time.Time {
	return p.Consents[t].GrantedAt
}

// UpdateConsent sets the granted flag for a consent type. Granting stamps
// GrantedAt with now; revoking clears it (history lives in the consent log,
// not here). The mutation is in-memory only; persistence is the caller's job.
func (p *Profile) UpdateConsent(t domain.ConsentType, granted bool, now time.Time) {
	state := ConsentState{Granted: granted}
	if granted {
		ts := now
		state.GrantedAt = &ts
	}
	if p.Consents == nil {
		p.Consents = make(map[domain.ConsentType]ConsentState)
	}
	p.Consents[t] = state
	p.UpdatedAt = now
}

// ConsentSnapshot is one entry of the read-path response.
type ConsentSnapshot struct {
	ConsentType domain.ConsentType
	Granted     bool
	ChangedAt   *time.Time
}

// Snapshot reports the current state of every consent type in the closed
// enumeration, in stable order. Types never written report granted=false.
func (p *Profile) Snapshot() []ConsentSnapshot {
	out := make([]ConsentSnapshot, 0, len(domain.AllConsentTypes()))
	for _, t := range domain.AllConsentTypes() {
		state := p.Consents[t]
		out = append(out, ConsentSnapshot{
			ConsentType: t,
			Granted:     state.Granted,
			ChangedAt:   state.GrantedAt,
		})
	}
	return out
}

// Clone returns a deep copy so stores can hand out aggregates without
// aliasing their internal state.
func (p *Profile) Clone() *Profile {
	cp := *p
	cp.Consents = make(map[domain.ConsentType]ConsentState, len(p.Consents))
	for t, state := range p.Consents {
		if state.GrantedAt != nil {
			ts := *state.GrantedAt
			state.GrantedAt = &ts
		}
		cp.Consents[t] = state
	}
	return &cp
}
