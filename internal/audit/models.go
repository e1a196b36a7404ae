// Package audit is the generic, append-only audit trail. Any module may
// record entries; consent is one producer among many. Entries are immutable
// once written.
package audit

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"othertales/pkg/domain"
)

// Action names follow the ENTITY.ACTION convention.
const (
	ActionConsentUpdated = "CONSENT.UPDATED"
	ActionProfileCreated = "PROFILE.CREATED"
)

// Record is one audit trail entry. ActorUserID is nil for system-initiated
// events. Detail is opaque to the store and must round-trip losslessly.
type Record struct {
	ID              uuid.UUID
	ActorUserID     *domain.UserID
	ActionType      string
	SubjectEntityID string
	Detail          Detail
	IPAddress       string
	UserAgent       string
	RecordedAt      time.Time
}

// Detail carries event-specific attributes as a closed set of scalar
// variants rather than an open dynamic type, so serialization stays
// lossless without reflection.
type Detail map[string]Value

// valueKind discriminates the scalar variants a Value can hold.
type valueKind int

const (
	kindString valueKind = iota
	kindBool
	kindNumber
)

// Value is one detail entry: a string, bool, or number.
type Value struct {
	kind valueKind
	str  string
	b    bool
	num  float64
}

// String creates a string detail value.
func String(s string) Value { return Value{kind: kindString, str: s} }

// Bool creates a boolean detail value.
func Bool(b bool) Value { return Value{kind: kindBool, b: b} }

// Number creates a numeric detail value.
func Number(n float64) Value { return Value{kind: kindNumber, num: n} }

// AsString returns the string variant, reporting whether the value holds one.
func (v Value) AsString() (string, bool) { return v.str, v.kind == kindString }

// AsBool returns the bool variant, reporting whether the value holds one.
func (v Value) AsBool() (bool, bool) { return v.b, v.kind == kindBool }

// AsNumber returns the numeric variant, reporting whether the value holds one.
func (v Value) AsNumber() (float64, bool) { return v.num, v.kind == kindNumber }

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case kindBool:
		return json.Marshal(v.b)
	case kindNumber:
		return json.Marshal(v.num)
	default:
		return json.Marshal(v.str)
	}
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch val := raw.(type) {
	case string:
		*v = String(val)
	case bool:
		*v = Bool(val)
	case float64:
		*v = Number(val)
	default:
		return fmt.Errorf("audit detail value must be string, bool, or number, got %T", raw)
	}
	return nil
}
