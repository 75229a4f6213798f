package targets

import (
	"fmt"
	"log"
	"strings"

	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/jdwit/ocr-trigger/internal/types"
)

const (
	TargetCloudWatch = "cloudwatch"
	TargetStdout     = "stdout"
)

// Target receives the outcome of every OCR extraction. SendLogs returns once
// the channel is closed and all entries have been delivered.
type Target interface {
	SendLogs(entryChan <-chan types.LogEntry)
}

func GetTargets(targetsConfig string, sess *session.Session) ([]Target, error) {
	var targets []Target

	for _, t := range strings.Split(targetsConfig, ",") {
		t = strings.TrimSpace(t)

		var target Target
		var err error

		switch t {
		case TargetCloudWatch:
			target, err = NewCloudWatchTarget(sess)
		case TargetStdout:
			target = NewStdoutTarget()
		default:
			log.Printf("warning: unsupported target type: %q", t)
			continue
		}

		// A target that cannot be initialized must not block extraction
		if err != nil {
			log.Printf("warning: could not initialize target %s: %v", t, err)
			continue
		}

		targets = append(targets, target)
	}

	if len(targets) == 0 {
		return nil, fmt.Errorf("no valid targets initialized from %q", targetsConfig)
	}

	return targets, nil
}
