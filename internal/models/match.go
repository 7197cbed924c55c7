package models

// MatchCandidate is a remote patron returned by a directory search.
type MatchCandidate struct {
	Key    string            `json:"key"`
	Fields map[string]string `json:"fields,omitempty"`
}

type OutcomeKind int

const (
	OutcomeCreate OutcomeKind = iota
	OutcomeUpdate
	OutcomeAmbiguous
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeCreate:
		return "Create"
	case OutcomeUpdate:
		return "Update"
	case OutcomeAmbiguous:
		return "Ambiguous"
	}
	return "Unknown"
}

type MatchReason string

const (
	ReasonAltID     MatchReason = "Alt ID"
	ReasonEmail     MatchReason = "Email"
	ReasonID        MatchReason = "ID"
	ReasonDOBStreet MatchReason = "DOB and Street"
)

// MatchOutcome is the result of resolving one record. Update outcomes carry
// the matched candidate as their only candidate. SearchErrors holds the
// strategies that failed on the way to the outcome.
type MatchOutcome struct {
	Kind         OutcomeKind
	Key          string
	Reason       MatchReason
	Candidates   []MatchCandidate
	SearchErrors []error
}

// Existing returns the remote field values of the matched patron.
func (o MatchOutcome) Existing() map[string]string {
	if o.Kind != OutcomeUpdate || len(o.Candidates) == 0 {
		return nil
	}
	return o.Candidates[0].Fields
}
