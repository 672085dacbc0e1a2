package jobmanager

type JobState int

const (
	// JobStateUnknown is the zero value for functions that return a
	// (possibly absent) JobState.
	JobStateUnknown JobState = iota

	// JobStateCreated indicates the job has been configured but its process
	// hasn't been started.
	JobStateCreated

	// JobStateRunning indicates the driver process has started. The job can
	// be stopped.
	JobStateRunning

	// JobStateStopped indicates the job was stopped by the user or its
	// process exited. It's terminal.
	JobStateStopped

	// JobStateFailed indicates the driver process could not be started.
	JobStateFailed
)

// NOTE: Keep in sync with the JobState values.
var jobStates = []string{
	"Unknown",
	"Created",
	"Running",
	"Stopped",
	"Failed",
}

// String implements the Stringer interface for JobState.
func (s JobState) String() string {
	if int(s) < 0 || int(s) >= len(jobStates) {
		return jobStates[0]
	}

	return jobStates[s]
}

// Labels for a stopped Job, see Status.Display.
const (
	DisplayStopped  = "Stopped"
	DisplayFailed   = "Failed"
	DisplayFinished = "Finished"
)

// Status represents the status of a Job. StoppedByUser and ExitCode are
// only meaningful once State is JobStateStopped.
type Status struct {
	State         JobState
	StoppedByUser bool
	ExitCode      int
}

// Display returns the label shown for the status: DisplayStopped when the
// user stopped the job, DisplayFailed for a non-zero exit, DisplayFinished
// otherwise. It's empty unless the job is stopped.
func (s Status) Display() string {
	if s.State != JobStateStopped {
		return ""
	}

	switch {
	case s.StoppedByUser:
		return DisplayStopped
	case s.ExitCode != 0:
		return DisplayFailed
	default:
		return DisplayFinished
	}
}
