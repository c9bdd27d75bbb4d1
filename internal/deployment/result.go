package deployment

import (
	"fmt"
	"time"
)

// Outcome is the terminal state of one archive's upload.
type Outcome int

const (
	Succeeded Outcome = iota
	Rejected
	ExhaustedRetries
	LocalError
	Interrupted
	// Unexpected is any failure that is neither a rejection, a transport
	// error nor a local read error; it is not retried
	Unexpected
)

func (o Outcome) String() string {
	switch o {
	case Succeeded:
		return "success"
	case Rejected:
		return "rejected"
	case ExhaustedRetries:
		return "exhausted_retries"
	case LocalError:
		return "local_error"
	case Interrupted:
		return "interrupted"
	case Unexpected:
		return "unexpected_error"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Result is the terminal record of one archive's upload sequence.
type Result struct {
	Path       string
	Project    string
	Outcome    Outcome
	Attempts   int
	DeployPath string
	Detail     string
	Duration   time.Duration
}

// OK reports whether the archive was deployed
func (r Result) OK() bool {
	return r.Outcome == Succeeded
}

// Status describes how a run ended.
type Status int

const (
	// StatusCompleted means every discovered archive was attempted
	StatusCompleted Status = iota
	// StatusEmpty means the scan found nothing to upload
	StatusEmpty
	// StatusAborted means the server was unhealthy and nothing was scanned
	StatusAborted
	// StatusInterrupted means the run was cancelled before all archives were attempted
	StatusInterrupted
)

func (s Status) String() string {
	switch s {
	case StatusCompleted:
		return "completed"
	case StatusEmpty:
		return "empty"
	case StatusAborted:
		return "aborted"
	case StatusInterrupted:
		return "interrupted"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Summary aggregates the results of a run.
// Total is the number of archives discovered; Succeeded+Failed may be lower
// when the run was interrupted.
type Summary struct {
	Total     int
	Succeeded int
	Failed    int
	Status    Status
	Results   []Result
}

// Add records a terminal result
func (s *Summary) Add(r Result) {
	if r.OK() {
		s.Succeeded++
	} else {
		s.Failed++
	}
	s.Results = append(s.Results, r)
}

// Attempted returns the number of archives that reached a terminal result
func (s Summary) Attempted() int {
	return s.Succeeded + s.Failed
}

// OK reports whether the run should exit with status 0
func (s Summary) OK() bool {
	return (s.Status == StatusCompleted || s.Status == StatusEmpty) && s.Failed == 0
}

// ExitCode maps the summary to a process exit code
func (s Summary) ExitCode() int {
	if s.OK() {
		return 0
	}
	return 1
}
