package processor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/jdwit/ocr-trigger/internal/config"
	"github.com/jdwit/ocr-trigger/internal/targets"
	"github.com/jdwit/ocr-trigger/internal/types"
)

type S3Api interface {
	ListObjectsV2WithContext(ctx aws.Context, input *s3.ListObjectsV2Input, opts ...request.Option) (*s3.ListObjectsV2Output, error)
}

type Processor struct {
	s3Client S3Api
	runner   Runner
	config   Config
}

type Config struct {
	Targets []targets.Target
	App     config.Config
}

const (
	statusCompleted = "completed"
	statusFailed    = "failed"

	// entryBuffer is the per target buffer of pending result entries
	entryBuffer = 100
)

func NewProcessor(sess *session.Session, appConfig config.Config) (*Processor, error) {
	t, err := targets.GetTargets(appConfig.Targets, sess)
	if err != nil {
		return nil, err
	}

	return &Processor{
		s3Client: s3.New(sess),
		runner:   ExecRunner{},
		config: Config{
			Targets: t,
			App:     appConfig,
		},
	}, nil
}

// Extract runs the OCR engine against a single object and returns its
// standard output. Every failure, including a panicking runner, is reported
// as an *ExtractionError.
func (p *Processor) Extract(ctx context.Context, obj types.StorageObject) (output string, err error) {
	cmd := BuildCommand(p.config.App, obj.Bucket, obj.Name)

	defer func() {
		if r := recover(); r != nil {
			output = ""
			err = &ExtractionError{Command: cmd, ExitCode: -1, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	out, err := p.runner.Run(ctx, cmd)
	if err != nil {
		var extractionErr *ExtractionError
		if !errors.As(err, &extractionErr) {
			err = &ExtractionError{Command: cmd, ExitCode: -1, Err: err}
		}
		return "", err
	}

	return string(out), nil
}

// dispatch starts all targets and returns the channel result entries are
// written to. Every entry is delivered to every target. The returned function
// closes the channel and waits until all targets are done.
func (p *Processor) dispatch() (chan<- types.LogEntry, func()) {
	entryChan := make(chan types.LogEntry, entryBuffer)
	targetChans := make([]chan types.LogEntry, len(p.config.Targets))

	var wg sync.WaitGroup
	for i, target := range p.config.Targets {
		targetChans[i] = make(chan types.LogEntry, entryBuffer)
		wg.Add(1)
		go func(t targets.Target, entries <-chan types.LogEntry) {
			defer wg.Done()
			t.SendLogs(entries)
		}(target, targetChans[i])
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for entry := range entryChan {
			for _, c := range targetChans {
				c <- entry
			}
		}
		for _, c := range targetChans {
			close(c)
		}
	}()

	return entryChan, func() {
		close(entryChan)
		<-done
		wg.Wait()
	}
}

func newLogEntry(obj types.StorageObject, output string, err error) types.LogEntry {
	data := map[string]string{
		"bucket": obj.Bucket,
		"name":   obj.Name,
		"uri":    StorageURI(obj.Bucket, obj.Name),
	}
	if err != nil {
		data["status"] = statusFailed
		data["error"] = err.Error()
	} else {
		data["status"] = statusCompleted
		data["output"] = output
	}

	return types.LogEntry{
		Data:      data,
		Timestamp: time.Now(),
	}
}

func logOutcome(output string, err error) {
	if err != nil {
		log.Printf("OCR extraction failed: %v", err)
		return
	}
	log.Printf("OCR extraction completed: %s", output)
}
