package model

// Confidence is the coarse reliability label attached to every result.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// Status tells callers whether a result carries a populated payload.
type Status string

const (
	StatusOK                  Status = "ok"
	StatusDataUnavailable     Status = "data_unavailable"
	StatusInsufficientHistory Status = "insufficient_history"
)

// Assessment is embedded in every engine result so that no number is ever
// returned without a status, a confidence label and a plain explanation.
type Assessment struct {
	Status      Status     `json:"status"`
	Confidence  Confidence `json:"confidence"`
	Explanation string     `json:"explanation"`
}

// Summary returns the assessment itself; it lets results satisfy a common
// interface through embedding.
func (a Assessment) Summary() Assessment { return a }

// Unavailable builds the assessment for a result without usable data.
func Unavailable(explanation string) Assessment {
	return Assessment{Status: StatusDataUnavailable, Confidence: ConfidenceLow, Explanation: explanation}
}
