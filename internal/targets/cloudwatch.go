package targets

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/cloudwatchlogs"
	"github.com/jdwit/ocr-trigger/internal/types"
)

const (
	// maxBatchSize The maximum batch size of a PutLogEvents request to CloudWatch is 1MB (1_048_576 bytes)
	maxBatchSize = 1_048_576
	// maxBatchCount The maximum number of events in a PutLogEvents request to CloudWatch is 10_000
	maxBatchCount = 10_000
	// eventOverhead is added to every message when CloudWatch computes the request size
	// https://docs.aws.amazon.com/AmazonCloudWatch/latest/logs/cloudwatch_limits_cwl.html
	eventOverhead = 26
	// maxEventSize The maximum size of a single log event, including the overhead, is 256KB
	maxEventSize = 262_144

	flushInterval = 5 * time.Second

	// requestTimeout bounds every CloudWatch call so a hanging request cannot
	// hold an invocation until its deadline
	requestTimeout = 10 * time.Second
	maxRetries     = 2

	truncatedMarker = "...[truncated]"
)

// truncatableFields are shortened, in order, when an entry exceeds maxEventSize
var truncatableFields = []string{"output", "error"}

type CloudWatchLogsAPI interface {
	PutLogEvents(*cloudwatchlogs.PutLogEventsInput) (*cloudwatchlogs.PutLogEventsOutput, error)
	CreateLogGroup(*cloudwatchlogs.CreateLogGroupInput) (*cloudwatchlogs.CreateLogGroupOutput, error)
	CreateLogStream(*cloudwatchlogs.CreateLogStreamInput) (*cloudwatchlogs.CreateLogStreamOutput, error)
	DescribeLogGroups(*cloudwatchlogs.DescribeLogGroupsInput) (*cloudwatchlogs.DescribeLogGroupsOutput, error)
	DescribeLogStreams(*cloudwatchlogs.DescribeLogStreamsInput) (*cloudwatchlogs.DescribeLogStreamsOutput, error)
}

type LogConfig struct {
	LogGroupName  string
	LogStreamName string
}

// CloudWatchTarget ships extraction results to a CloudWatch Logs stream.
type CloudWatchTarget struct {
	cwClient  CloudWatchLogsAPI
	logConfig LogConfig
}

// batch accumulates events for a single PutLogEvents request.
type batch struct {
	events []*cloudwatchlogs.InputLogEvent
	size   int
}

func (b *batch) fits(eventSize int) bool {
	return len(b.events) == 0 || (b.size+eventSize <= maxBatchSize && len(b.events) < maxBatchCount)
}

func (b *batch) add(event *cloudwatchlogs.InputLogEvent, eventSize int) {
	b.events = append(b.events, event)
	b.size += eventSize
}

func (b *batch) reset() {
	b.events = nil
	b.size = 0
}

func (c *CloudWatchTarget) SendLogs(entryChan <-chan types.LogEntry) {
	var b batch

	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	for {
		select {
		case entry, ok := <-entryChan:
			if !ok {
				c.flush(&b)
				return
			}

			jsonData, err := encodeEntry(entry.Data)
			if err != nil {
				log.Printf("skipping extraction result: %v", err)
				continue
			}
			eventSize := len(jsonData) + eventOverhead
			if !b.fits(eventSize) {
				c.flush(&b)
			}
			b.add(&cloudwatchlogs.InputLogEvent{
				Message:   aws.String(string(jsonData)),
				Timestamp: aws.Int64(entry.Timestamp.UnixMilli()),
			}, eventSize)

		case <-ticker.C:
			c.flush(&b)
		}
	}
}

// encodeEntry marshals entry data and shortens the output or error field when
// the event would exceed the CloudWatch size limit.
func encodeEntry(data map[string]string) ([]byte, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("error marshaling extraction result to JSON: %w", err)
	}
	if len(jsonData)+eventOverhead <= maxEventSize {
		return jsonData, nil
	}

	trimmed := make(map[string]string, len(data))
	for k, v := range data {
		trimmed[k] = v
	}
	for _, field := range truncatableFields {
		for len(jsonData)+eventOverhead > maxEventSize && len(trimmed[field]) > 0 {
			excess := len(jsonData) + eventOverhead - maxEventSize + len(truncatedMarker)
			value := trimmed[field]
			if excess >= len(value) {
				trimmed[field] = truncatedMarker
			} else {
				trimmed[field] = value[:len(value)-excess] + truncatedMarker
			}
			if jsonData, err = json.Marshal(trimmed); err != nil {
				return nil, fmt.Errorf("error marshaling extraction result to JSON: %w", err)
			}
			if trimmed[field] == truncatedMarker {
				break
			}
		}
	}
	if len(jsonData)+eventOverhead > maxEventSize {
		return nil, fmt.Errorf("event of %d bytes exceeds the CloudWatch limit", len(jsonData)+eventOverhead)
	}
	log.Printf("extraction result for %s truncated to fit a CloudWatch event", data["uri"])
	return jsonData, nil
}

func (c *CloudWatchTarget) flush(b *batch) {
	if len(b.events) == 0 {
		return
	}
	if err := c.sendBatch(b.events); err != nil {
		log.Printf("error sending %d events to CloudWatch: %v", len(b.events), err)
	}
	b.reset()
}

func NewCloudWatchTarget(sess *session.Session) (Target, error) {
	logGroupName := os.Getenv("CLOUDWATCH_LOG_GROUP")
	if logGroupName == "" {
		return nil, fmt.Errorf("environment variable CLOUDWATCH_LOG_GROUP is required")
	}

	logStreamName := os.Getenv("CLOUDWATCH_LOG_STREAM")
	if logStreamName == "" {
		return nil, fmt.Errorf("environment variable CLOUDWATCH_LOG_STREAM is required")
	}

	target, err := newCloudWatchTarget(cloudwatchlogs.New(sess, clientConfig()), LogConfig{
		LogGroupName:  logGroupName,
		LogStreamName: logStreamName,
	})
	if err != nil {
		return nil, err
	}
	return target, nil
}

func clientConfig() *aws.Config {
	return aws.NewConfig().
		WithHTTPClient(&http.Client{Timeout: requestTimeout}).
		WithMaxRetries(maxRetries)
}

func newCloudWatchTarget(client CloudWatchLogsAPI, logConfig LogConfig) (*CloudWatchTarget, error) {
	if err := ensureLogGroupExists(client, logConfig.LogGroupName); err != nil {
		return nil, fmt.Errorf("error creating log group: %w", err)
	}
	if err := ensureLogStreamExists(client, logConfig.LogGroupName, logConfig.LogStreamName); err != nil {
		return nil, fmt.Errorf("error creating log stream: %w", err)
	}
	return &CloudWatchTarget{cwClient: client, logConfig: logConfig}, nil
}

func ensureLogGroupExists(client CloudWatchLogsAPI, name string) error {
	resp, err := client.DescribeLogGroups(&cloudwatchlogs.DescribeLogGroupsInput{
		LogGroupNamePrefix: aws.String(name),
	})
	if err != nil {
		return err
	}
	for _, logGroup := range resp.LogGroups {
		if aws.StringValue(logGroup.LogGroupName) == name {
			return nil
		}
	}
	log.Printf("creating log group %s", name)
	_, err = client.CreateLogGroup(&cloudwatchlogs.CreateLogGroupInput{
		LogGroupName: aws.String(name),
	})

	return err
}

func ensureLogStreamExists(client CloudWatchLogsAPI, logGroupName, logStreamName string) error {
	resp, err := client.DescribeLogStreams(&cloudwatchlogs.DescribeLogStreamsInput{
		LogGroupName:        aws.String(logGroupName),
		LogStreamNamePrefix: aws.String(logStreamName),
	})
	if err != nil {
		return err
	}
	for _, logStream := range resp.LogStreams {
		if aws.StringValue(logStream.LogStreamName) == logStreamName {
			return nil
		}
	}
	log.Printf("creating log stream %s in log group %s", logStreamName, logGroupName)
	_, err = client.CreateLogStream(&cloudwatchlogs.CreateLogStreamInput{
		LogGroupName:  aws.String(logGroupName),
		LogStreamName: aws.String(logStreamName),
	})

	return err
}

func (c *CloudWatchTarget) sendBatch(events []*cloudwatchlogs.InputLogEvent) error {
	// Log events in a single PutLogEvents request must be in chronological order
	sort.SliceStable(events, func(i, j int) bool {
		return aws.Int64Value(events[i].Timestamp) < aws.Int64Value(events[j].Timestamp)
	})
	_, err := c.cwClient.PutLogEvents(&cloudwatchlogs.PutLogEventsInput{
		LogEvents:     events,
		LogGroupName:  aws.String(c.logConfig.LogGroupName),
		LogStreamName: aws.String(c.logConfig.LogStreamName),
	})

	return err
}
