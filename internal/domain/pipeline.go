package domain

// State is a step of the ingestion-to-answer state machine.
type State string

const (
	StateReceived   State = "received"
	StateExtracting State = "extracting"
	StateIndexing   State = "indexing"
	StateRetrieving State = "retrieving"
	StateComposing  State = "composing"
	StateGenerating State = "generating"
	StateDone       State = "done"
	StateFailed     State = "failed"
)

// Terminal reports whether no further transition can follow s.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// PipelineResult is the successful outcome of one run.
type PipelineResult struct {
	DocumentID string
	Role       Role
	Answer     string
	State      State
	Retrieved  int
	Indexed    int
}
