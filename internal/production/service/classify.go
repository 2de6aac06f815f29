package service

// Verification error taxonomy. Every blocking condition maps to exactly
// one of these tags; AUCUNE marks a clean scan.
const (
	ErrorNone               = "AUCUNE"
	ErrorReferenceUnknown   = "REFERENCE_INCONNUE"
	ErrorReferenceMismatch  = "REFERENCE_MISMATCH"
	ErrorIndiceIncorrect    = "INDICE_INCORRECT"
	ErrorUnitNotFound       = "HU_NON_TROUVE"
	ErrorUnitInOtherOrder   = "HU_DANS_AUTRE_OF"
	ErrorUnitAlreadyScanned = "HU_DEJA_SCANNE"
	ErrorQuantityIncorrect  = "QUANTITE_INCORRECTE"
	ErrorQualityNonConforme = "QUALITE_NON_CONFORME"
	ErrorOrderNotFound      = "OF_NON_TROUVE"
	ErrorOrderNotActive     = "OF_NON_ACTIF"
)

// Forced validation overrides policy violations only. Non-existence
// (unknown reference, missing unit, unit under another order, invalid
// order) can never be forced through.
var overridableErrors = map[string]bool{
	ErrorUnitAlreadyScanned: true,
	ErrorQuantityIncorrect:  true,
	ErrorReferenceMismatch:  true,
	ErrorIndiceIncorrect:    true,
	ErrorQualityNonConforme: true,
}

// IsOverridable reports whether a forced validation may bypass the error
func IsOverridable(code string) bool {
	return overridableErrors[code]
}

// ErrorAccumulator collects verification failures across the commit
// steps. The first error sets the primary tag; later ones keep
// appending messages without overwriting it.
type ErrorAccumulator struct {
	primary  string
	codes    []string
	messages []string
}

// Add records a failure. The primary tag is set once and kept.
func (a *ErrorAccumulator) Add(code, message string) {
	if a.primary == "" {
		a.primary = code
	}
	a.codes = append(a.codes, code)
	a.messages = append(a.messages, message)
}

// HasErrors reports whether any failure was recorded
func (a *ErrorAccumulator) HasErrors() bool {
	return len(a.codes) > 0
}

// Primary returns the first recorded error tag, or AUCUNE
func (a *ErrorAccumulator) Primary() string {
	if a.primary == "" {
		return ErrorNone
	}
	return a.primary
}

// Messages returns every recorded failure message in order
func (a *ErrorAccumulator) Messages() []string {
	return a.messages
}

// Overridable reports whether every recorded failure may be bypassed by
// a forced validation. A single non-overridable failure blocks the lot.
func (a *ErrorAccumulator) Overridable() bool {
	if len(a.codes) == 0 {
		return true
	}
	for _, code := range a.codes {
		if !IsOverridable(code) {
			return false
		}
	}
	return true
}
