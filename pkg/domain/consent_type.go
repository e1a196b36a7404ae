package domain

import dErrors "othertales/pkg/domain-errors"

// ConsentType is a domain value identifying a trackable user permission.
// Invariant: the value must be one of the supported consent types.
//
// Usage: construct via ParseConsentType at trust boundaries to enforce the
// allowlist; direct casting bypasses validation.
type ConsentType string

// Supported consent types. The set is closed: adding a member means adding
// profile columns and a migration, so unknown values are rejected outright.
const (
	ConsentTermsOfService ConsentType = "TERMS_OF_SERVICE"
	ConsentPrivacyPolicy  ConsentType = "PRIVACY_POLICY"
	ConsentMarketing      ConsentType = "MARKETING_COMMUNICATIONS"
)

// consentTypes is the single source of truth for valid consent types,
// in reporting order.
var consentTypes = []ConsentType{
	ConsentTermsOfService,
	ConsentPrivacyPolicy,
	ConsentMarketing,
}

// AllConsentTypes returns every supported consent type in a stable order.
func AllConsentTypes() []ConsentType {
	out := make([]ConsentType, len(consentTypes))
	copy(out, consentTypes)
	return out
}

// ParseConsentType constructs a ConsentType from external input.
//
// Errors: returns CodeValidation when the value is empty or unsupported; no
// other errors are expected.
func ParseConsentType(s string) (ConsentType, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeValidation, "consent type cannot be empty")
	}
	t := ConsentType(s)
	if !t.IsValid() {
		return "", dErrors.New(dErrors.CodeValidation, "unknown consent type: "+s)
	}
	return t, nil
}

// IsValid checks if the consent type is one of the supported enum values.
func (t ConsentType) IsValid() bool {
	for _, known := range consentTypes {
		if t == known {
			return true
		}
	}
	return false
}

// String returns the string representation of the consent type.
func (t ConsentType) String() string {
	return string(t)
}
