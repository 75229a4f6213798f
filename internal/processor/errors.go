package processor

import (
	"fmt"
	"strings"
)

// ExtractionError is returned for every failed OCR engine run: non-zero exit,
// failure to start the process, or I/O errors while collecting its output.
type ExtractionError struct {
	Command  Command
	ExitCode int // -1 when the process did not run to completion
	Stderr   string
	Err      error
}

func (e *ExtractionError) Error() string {
	msg := fmt.Sprintf("%s: %v", e.Command, e.Err)
	if stderr := strings.TrimSpace(e.Stderr); stderr != "" {
		msg += ": " + stderr
	}
	return msg
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}
