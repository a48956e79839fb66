package harness

import "github.com/thenativeweb/wolkenkit-flows/internal/ir"

// EventResult records how one scenario event was settled.
type EventResult struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Outcome string `json:"outcome"`
}

// SagaResult is the persisted state of one saga after the run.
type SagaResult struct {
	Flow     string      `json:"flow"`
	Key      string      `json:"key"`
	SagaID   string      `json:"saga_id"`
	Revision int64       `json:"revision"`
	State    ir.IRObject `json:"state"`
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every assertion held.
	Pass bool `json:"pass"`

	// Events lists the scenario events in publish order.
	Events []EventResult `json:"events"`

	// Commands are the commands sent, in send order.
	Commands []ir.Command `json:"commands"`

	// Sagas are the persisted sagas, ordered by flow and key.
	Sagas []SagaResult `json:"sagas"`

	// Errors contains assertion failures. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:     true,
		Events:   []EventResult{},
		Commands: []ir.Command{},
		Sagas:    []SagaResult{},
		Errors:   []string{},
	}
}

// AddError adds an assertion failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Saga returns the saga of flow for key.
func (r *Result) Saga(flow, key string) (SagaResult, bool) {
	for _, s := range r.Sagas {
		if s.Flow == flow && s.Key == key {
			return s, true
		}
	}
	return SagaResult{}, false
}

// Outcome returns how the event with id was settled, or "" if it was not.
func (r *Result) Outcome(id string) string {
	for _, e := range r.Events {
		if e.ID == id {
			return e.Outcome
		}
	}
	return ""
}
