package core

import "time"

// OperationKind names one of the chunked operations a source supports.
type OperationKind string

const (
	OpImport OperationKind = "import"
	OpClear  OperationKind = "clear"
	OpExpire OperationKind = "expire"
)

// Phase indicates where a source operation stands. Operations move
// idle -> running -> complete, and back to idle once the completion has
// been reported.
type Phase string

const (
	PhaseIdle     Phase = "idle"
	PhaseRunning  Phase = "running"
	PhaseComplete Phase = "complete"
)

// Status is what one invocation reports back to its scheduler: either the
// operation needs more invocations or it has finished.
type Status string

const (
	StatusRunning  Status = "running"
	StatusComplete Status = "complete"
)

// maxDiagnostics bounds how many per-record failure messages an operation
// retains. Failures beyond the bound are counted, not stored.
const maxDiagnostics = 25

// ProgressState is the persisted checkpoint of one source operation. It
// survives process restarts: the next invocation resumes from Processed.
type ProgressState struct {
	Phase     Phase     `json:"phase"`
	RunID     string    `json:"runId"`
	Total     int       `json:"total"` // -1 while unknown
	Processed int       `json:"processed"`
	Created   int       `json:"created"`
	Updated   int       `json:"updated"`
	Skipped   int       `json:"skipped"`
	Failed    int       `json:"failed"`
	Deleted   int       `json:"deleted"`
	SpoolPath string    `json:"spoolPath,omitempty"` // import: payload spooled at run start
	FailedIDs []string  `json:"failedIds,omitempty"` // clear/expire: entities whose delete failed
	StartedAt time.Time `json:"startedAt"`
	Messages  []string  `json:"messages,omitempty"`
	Dropped   int       `json:"dropped,omitempty"` // diagnostics beyond maxDiagnostics
}

// Percent returns the progress as a percentage (0-100), or 0 while the
// total is unknown.
func (p *ProgressState) Percent() int {
	if p.Total > 0 {
		return (p.Processed * 100) / p.Total
	}
	if p.Phase == PhaseComplete {
		return 100
	}
	return 0
}

// AddMessage records a diagnostic, dropping it once the bound is reached.
func (p *ProgressState) AddMessage(msg string) {
	if len(p.Messages) >= maxDiagnostics {
		p.Dropped++
		return
	}
	p.Messages = append(p.Messages, msg)
}

// Summary returns the operation totals accumulated so far.
func (p *ProgressState) Summary() Summary {
	return Summary{
		Created:  p.Created,
		Updated:  p.Updated,
		Skipped:  p.Skipped,
		Failed:   p.Failed,
		Deleted:  p.Deleted,
		Messages: p.Messages,
		Dropped:  p.Dropped,
	}
}

// Summary is the outcome of one logical operation across all of its
// chunks. Every operation produces one, success or not.
type Summary struct {
	Created  int      `json:"created"`
	Updated  int      `json:"updated"`
	Skipped  int      `json:"skipped"`
	Failed   int      `json:"failed"`
	Deleted  int      `json:"deleted"`
	Messages []string `json:"messages,omitempty"`
	Dropped  int      `json:"dropped,omitempty"`
}

// OperationResult is what one invocation returns: whether the operation
// needs further invocations, and the totals so far. Summary totals are
// final only once Status is StatusComplete.
type OperationResult struct {
	Status  Status  `json:"status"`
	Summary Summary `json:"summary"`
}

// RunRecord is the persisted history row of one logical operation.
type RunRecord struct {
	RunID      string        `json:"runId"`
	Source     string        `json:"source"`
	Op         OperationKind `json:"op"`
	StartedAt  time.Time     `json:"startedAt"`
	FinishedAt time.Time     `json:"finishedAt"`
	Status     string        `json:"status"` // "complete" or "failed"
	Created    int           `json:"created"`
	Updated    int           `json:"updated"`
	Skipped    int           `json:"skipped"`
	Failed     int           `json:"failed"`
	Deleted    int           `json:"deleted"`
	Error      string        `json:"error,omitempty"`
}
