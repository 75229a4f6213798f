package targets

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/jdwit/ocr-trigger/internal/types"
)

// StdoutTarget writes one line per extraction result.
type StdoutTarget struct {
	out io.Writer
}

func (c *StdoutTarget) SendLogs(entryChan <-chan types.LogEntry) {
	for entry := range entryChan {
		jsonData, err := json.Marshal(entry.Data)
		if err != nil {
			fmt.Fprintf(c.out, "error marshaling extraction result to JSON: %v\n", err)
			continue
		}
		fmt.Fprintf(c.out, "[%s] OCR result: %s\n", entry.Timestamp.Format(time.RFC3339), jsonData)
	}
}

func NewStdoutTarget() *StdoutTarget {
	return &StdoutTarget{out: os.Stdout}
}
