package model

// Outcome is the per-row result of applying one element of a sync batch.
type Outcome string

const (
	// OutcomeApplied means the row was inserted or its allow-listed fields updated.
	OutcomeApplied Outcome = "applied"
	// OutcomeDuplicate means the row already existed and the policy ignored it.
	OutcomeDuplicate Outcome = "duplicate"
	// OutcomeConflict means the identifier belongs to another owner.
	OutcomeConflict Outcome = "conflict"
	// OutcomeInvalid means the row was malformed and never reached the store.
	OutcomeInvalid Outcome = "invalid"
	// OutcomeFailed means the store rejected the statement.
	OutcomeFailed Outcome = "failed"
)

// OK reports whether the row is safely stored (retrying it is unnecessary).
func (o Outcome) OK() bool { return o == OutcomeApplied || o == OutcomeDuplicate }

// RowResult reports what happened to one element of a batch.
type RowResult struct {
	Index   int     `json:"index"`
	ID      string  `json:"id"`
	Outcome Outcome `json:"outcome"`
	Error   string  `json:"error,omitempty"`
}

// BatchResult collects per-row outcomes in input order.
type BatchResult struct {
	Results []RowResult
}

// Add appends one row outcome.
func (b *BatchResult) Add(r RowResult) { b.Results = append(b.Results, r) }

// Counts returns the number of stored rows and rows the caller should retry.
func (b BatchResult) Counts() (ok, failed int) {
	for _, r := range b.Results {
		if r.Outcome.OK() {
			ok++
		} else {
			failed++
		}
	}
	return ok, failed
}

// Status is "success" when every row is stored, otherwise "partial".
func (b BatchResult) Status() string {
	if _, failed := b.Counts(); failed > 0 {
		return "partial"
	}
	return "success"
}
