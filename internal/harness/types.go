package harness

// TraceEvent records the outcome of one step.
type TraceEvent struct {
	Step       int    `json:"step"`
	Action     string `json:"action"`
	Path       string `json:"path,omitempty"`
	Code       int    `json:"code,omitempty"`
	SessionID  *int   `json:"session_id,omitempty"`
	NewSession string `json:"new_session,omitempty"`
	NewDir     string `json:"new_dir,omitempty"`
	StartFrom  string `json:"start_from,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall test success.
	Pass bool `json:"pass"`

	// Trace contains one event per step, in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains assertion failures and unexpected step errors.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends a step event.
func (r *Result) AddTrace(ev TraceEvent) {
	r.Trace = append(r.Trace, ev)
}

// lastError returns the error of the last failing step.
func (r *Result) lastError() string {
	for i := len(r.Trace) - 1; i >= 0; i-- {
		if r.Trace[i].Error != "" {
			return r.Trace[i].Error
		}
	}
	return ""
}
