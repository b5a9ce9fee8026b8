package engine

import (
	"errors"
	"fmt"
	"time"
)

// Action is what happened to one resource.
type Action string

const (
	ActionCreated     Action = "created"
	ActionReused      Action = "reused"
	ActionUpdated     Action = "updated"
	ActionFailed      Action = "failed"
	ActionWouldCreate Action = "would-create"
	ActionWouldUpdate Action = "would-update"
	ActionDeleted     Action = "deleted"
	ActionAbsent      Action = "absent"
	ActionWouldDelete Action = "would-delete"
)

// IsWrite reports whether the action changed the server.
func (a Action) IsWrite() bool {
	return a == ActionCreated || a == ActionUpdated || a == ActionDeleted
}

// Outcome is the result for one declared resource.
type Outcome struct {
	Kind    string   `json:"kind"`
	Name    string   `json:"name"`
	ID      int      `json:"id,omitempty"`
	Action  Action   `json:"action"`
	Changes []string `json:"changes,omitempty"`
	Err     error    `json:"-"`

	// Error is Err's text, for JSON output.
	Error string `json:"error,omitempty"`
}

// Summary counts outcomes by action.
type Summary struct {
	Created     int `json:"created"`
	Reused      int `json:"reused"`
	Updated     int `json:"updated"`
	Failed      int `json:"failed"`
	WouldCreate int `json:"would_create,omitempty"`
	WouldUpdate int `json:"would_update,omitempty"`
	Deleted     int `json:"deleted,omitempty"`
	Absent      int `json:"absent,omitempty"`
	WouldDelete int `json:"would_delete,omitempty"`
}

func (s *Summary) add(a Action) {
	switch a {
	case ActionCreated:
		s.Created++
	case ActionReused:
		s.Reused++
	case ActionUpdated:
		s.Updated++
	case ActionFailed:
		s.Failed++
	case ActionWouldCreate:
		s.WouldCreate++
	case ActionWouldUpdate:
		s.WouldUpdate++
	case ActionDeleted:
		s.Deleted++
	case ActionAbsent:
		s.Absent++
	case ActionWouldDelete:
		s.WouldDelete++
	}
}

// Counts returns the non-zero counters keyed by action.
func (s Summary) Counts() map[string]int {
	all := map[string]int{
		string(ActionCreated):     s.Created,
		string(ActionReused):      s.Reused,
		string(ActionUpdated):     s.Updated,
		string(ActionFailed):      s.Failed,
		string(ActionWouldCreate): s.WouldCreate,
		string(ActionWouldUpdate): s.WouldUpdate,
		string(ActionDeleted):     s.Deleted,
		string(ActionAbsent):      s.Absent,
		string(ActionWouldDelete): s.WouldDelete,
	}
	out := make(map[string]int)
	for k, v := range all {
		if v > 0 {
			out[k] = v
		}
	}
	return out
}

// RunStatus is the overall result of a run.
type RunStatus string

const (
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusPartial   RunStatus = "partial"
	RunStatusFailed    RunStatus = "failed"
)

// Report is the result of a reconcile or destroy run.
type Report struct {
	RunID     string        `json:"run_id"`
	ProjectID int           `json:"project_id"`
	Plan      bool          `json:"plan,omitempty"`
	Outcomes  []Outcome     `json:"outcomes"`
	Summary   Summary       `json:"summary"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

func (r *Report) record(o Outcome) {
	if o.Err != nil {
		o.Error = o.Err.Error()
	}
	r.Outcomes = append(r.Outcomes, o)
	r.Summary.add(o.Action)
}

// Err joins the errors of every failed outcome, nil when none failed.
func (r *Report) Err() error {
	var errs []error
	for _, o := range r.Outcomes {
		if o.Err != nil {
			errs = append(errs, o.Err)
		}
	}
	return errors.Join(errs...)
}

// Status summarizes the run.
func (r *Report) Status() RunStatus {
	switch {
	case r.Summary.Failed == 0:
		return RunStatusSucceeded
	case r.Summary.Failed == len(r.Outcomes):
		return RunStatusFailed
	default:
		return RunStatusPartial
	}
}

// Outcome returns the outcome for kind and name.
func (r *Report) Outcome(kind, name string) (Outcome, bool) {
	for _, o := range r.Outcomes {
		if o.Kind == kind && o.Name == name {
			return o, true
		}
	}
	return Outcome{}, false
}

// Writes returns the number of outcomes that changed the server.
func (r *Report) Writes() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Action.IsWrite() {
			n++
		}
	}
	return n
}

func (r *Report) String() string {
	s := r.Summary
	return fmt.Sprintf("run %s: %d created, %d updated, %d reused, %d failed",
		r.RunID, s.Created, s.Updated, s.Reused, s.Failed)
}

// Severity of a verification finding.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Finding is one problem reported by Verify.
type Finding struct {
	Severity Severity `json:"severity"`
	Kind     string   `json:"kind"`
	Name     string   `json:"name"`
	Message  string   `json:"message"`
}
