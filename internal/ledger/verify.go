package ledger

import "fmt"

// IntegrityError describes the first entry that failed verification.
// It is only ever carried inside a Report.
type IntegrityError struct {
	Seq    int64
	Reason string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("audit trail tampered at entry %d: %s", e.Seq, e.Reason)
}

// Report is the outcome of a full-chain verification.
type Report struct {
	Valid        bool            `json:"valid"`
	Message      string          `json:"message"`
	TotalEntries int             `json:"total_entries"`
	BrokenSeq    int64           `json:"broken_seq,omitempty"`
	Failure      *IntegrityError `json:"-"`
}

// Verifier checks a chain one entry at a time, so stores can stream rows
// instead of loading the whole chain.
type Verifier struct {
	prev    string
	n       int
	failure *IntegrityError
}

// NewVerifier returns a Verifier positioned before the first entry.
func NewVerifier() *Verifier {
	return &Verifier{prev: GenesisHash}
}

// Check verifies the next entry in seq order. It returns false once the
// chain is known to be broken. Later entries are still counted but no longer
// checked, so the report names the first failure.
func (v *Verifier) Check(e *Entry) bool {
	v.n++
	if v.failure != nil {
		return false
	}
	want := int64(v.n)

	switch {
	case e.Seq != want:
		v.failure = &IntegrityError{Seq: want, Reason: fmt.Sprintf("expected seq %d, found %d", want, e.Seq)}
	case e.PreviousHash != v.prev:
		v.failure = &IntegrityError{Seq: e.Seq, Reason: "previous_hash does not match the prior entry"}
	case Hash(e) != e.CurrentHash:
		v.failure = &IntegrityError{Seq: e.Seq, Reason: "current_hash does not match entry contents"}
	}
	if v.failure != nil {
		return false
	}
	v.prev = e.CurrentHash
	return true
}

// Report summarises everything checked so far.
func (v *Verifier) Report() *Report {
	switch {
	case v.failure != nil:
		return &Report{
			Valid:        false,
			Message:      v.failure.Error(),
			TotalEntries: v.n,
			BrokenSeq:    v.failure.Seq,
			Failure:      v.failure,
		}
	case v.n == 0:
		return &Report{Valid: true, Message: "Audit log is empty"}
	default:
		return &Report{Valid: true, Message: "Audit trail integrity verified", TotalEntries: v.n}
	}
}

// VerifyEntries verifies a fully loaded chain.
func VerifyEntries(entries []*Entry) *Report {
	v := NewVerifier()
	for _, e := range entries {
		v.Check(e)
	}
	return v.Report()
}
