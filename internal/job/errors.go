package job

import "fmt"

// TaskFailedError is a task execution failure: a command exiting non-zero,
// an interrupted command or an explicit fail task. Job is kept so the
// caller can open a debug shell on the failed container.
type TaskFailedError struct {
	Msg      string
	ExitCode int
	Job      *Job
}

// ExitInterrupted is the exit code reported for commands stopped by an
// interrupt.
const ExitInterrupted = -1

func (e *TaskFailedError) Error() string {
	switch {
	case e.Msg != "" && e.ExitCode != 0:
		return fmt.Sprintf("%s (exit code %d)", e.Msg, e.ExitCode)
	case e.Msg != "":
		return e.Msg
	default:
		return fmt.Sprintf("task failed with exit code %d", e.ExitCode)
	}
}
