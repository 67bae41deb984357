package sdkperf

import (
	"fmt"
)

// RemoteSubmissionError is a single submission rejected by, or lost on the
// way to, the test service.
type RemoteSubmissionError struct {
	ID  SubmissionID
	Err error
}

func (e *RemoteSubmissionError) Error() string {
	return fmt.Sprintf("test for %s on %s with %s failed: %v", e.ID.URL, e.ID.DeviceID, e.ID.Connectivity, e.Err)
}

func (e *RemoteSubmissionError) Unwrap() error {
	return e.Err
}

// PerRunParseError marks one run of an otherwise usable result as unreadable.
type PerRunParseError struct {
	RunID string
	Err   error
}

func (e *PerRunParseError) Error() string {
	return fmt.Sprintf("run %s: %v", e.RunID, e.Err)
}

func (e *PerRunParseError) Unwrap() error {
	return e.Err
}

type FileAccessError struct {
	Path string
	Err  error
}

func (e *FileAccessError) Error() string {
	return fmt.Sprintf("could not access %s: %v", e.Path, e.Err)
}

func (e *FileAccessError) Unwrap() error {
	return e.Err
}
