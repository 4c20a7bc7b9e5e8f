package model

// Outcome is the result of a mark attendance request.
type Outcome string

const (
	OutcomeFail       Outcome = "fail"
	OutcomeReverified Outcome = "reverified"
	OutcomeSuccess    Outcome = "success"
)

// Messages for fail outcomes.
const (
	MsgNoFace        = "No face detected"
	MsgUnknownPerson = "Unknown person"
	MsgStoreFailure  = "Could not record attendance"
)

// MarkResult is what a mark request returns to the caller.
type MarkResult struct {
	Outcome Outcome
	Name    string
	Time    string
	Msg     string
}

// Fail builds a fail result with msg.
func Fail(msg string) MarkResult {
	return MarkResult{Outcome: OutcomeFail, Msg: msg}
}
