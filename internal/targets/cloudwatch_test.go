package targets

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/cloudwatchlogs"
	"github.com/jdwit/ocr-trigger/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockCloudWatchLogs struct {
	mock.Mock
	batches [][]*cloudwatchlogs.InputLogEvent
}

func (m *mockCloudWatchLogs) PutLogEvents(in *cloudwatchlogs.PutLogEventsInput) (*cloudwatchlogs.PutLogEventsOutput, error) {
	m.batches = append(m.batches, in.LogEvents)
	args := m.Called(aws.StringValue(in.LogGroupName), aws.StringValue(in.LogStreamName))
	return &cloudwatchlogs.PutLogEventsOutput{}, args.Error(0)
}

func (m *mockCloudWatchLogs) CreateLogGroup(in *cloudwatchlogs.CreateLogGroupInput) (*cloudwatchlogs.CreateLogGroupOutput, error) {
	args := m.Called(aws.StringValue(in.LogGroupName))
	return &cloudwatchlogs.CreateLogGroupOutput{}, args.Error(0)
}

func (m *mockCloudWatchLogs) CreateLogStream(in *cloudwatchlogs.CreateLogStreamInput) (*cloudwatchlogs.CreateLogStreamOutput, error) {
	args := m.Called(aws.StringValue(in.LogGroupName), aws.StringValue(in.LogStreamName))
	return &cloudwatchlogs.CreateLogStreamOutput{}, args.Error(0)
}

func (m *mockCloudWatchLogs) DescribeLogGroups(in *cloudwatchlogs.DescribeLogGroupsInput) (*cloudwatchlogs.DescribeLogGroupsOutput, error) {
	args := m.Called(aws.StringValue(in.LogGroupNamePrefix))
	return args.Get(0).(*cloudwatchlogs.DescribeLogGroupsOutput), args.Error(1)
}

func (m *mockCloudWatchLogs) DescribeLogStreams(in *cloudwatchlogs.DescribeLogStreamsInput) (*cloudwatchlogs.DescribeLogStreamsOutput, error) {
	args := m.Called(aws.StringValue(in.LogGroupName), aws.StringValue(in.LogStreamNamePrefix))
	return args.Get(0).(*cloudwatchlogs.DescribeLogStreamsOutput), args.Error(1)
}

var testLogConfig = LogConfig{LogGroupName: "ocr", LogStreamName: "results"}

func TestNewCloudWatchTarget(t *testing.T) {
	t.Run("Creates missing group and stream", func(t *testing.T) {
		client := &mockCloudWatchLogs{}
		client.On("DescribeLogGroups", "ocr").Return(&cloudwatchlogs.DescribeLogGroupsOutput{}, nil)
		client.On("CreateLogGroup", "ocr").Return(nil)
		client.On("DescribeLogStreams", "ocr", "results").Return(&cloudwatchlogs.DescribeLogStreamsOutput{}, nil)
		client.On("CreateLogStream", "ocr", "results").Return(nil)

		target, err := newCloudWatchTarget(client, testLogConfig)
		require.NoError(t, err)
		assert.Equal(t, testLogConfig, target.logConfig)
		client.AssertExpectations(t)
	})

	t.Run("Existing group and stream are reused", func(t *testing.T) {
		client := &mockCloudWatchLogs{}
		client.On("DescribeLogGroups", "ocr").Return(&cloudwatchlogs.DescribeLogGroupsOutput{
			LogGroups: []*cloudwatchlogs.LogGroup{{LogGroupName: aws.String("ocr")}},
		}, nil)
		client.On("DescribeLogStreams", "ocr", "results").Return(&cloudwatchlogs.DescribeLogStreamsOutput{
			LogStreams: []*cloudwatchlogs.LogStream{{LogStreamName: aws.String("results")}},
		}, nil)

		_, err := newCloudWatchTarget(client, testLogConfig)
		require.NoError(t, err)
		client.AssertNotCalled(t, "CreateLogGroup", mock.Anything)
		client.AssertNotCalled(t, "CreateLogStream", mock.Anything, mock.Anything)
	})

	t.Run("Describe failure", func(t *testing.T) {
		client := &mockCloudWatchLogs{}
		client.On("DescribeLogGroups", "ocr").Return((*cloudwatchlogs.DescribeLogGroupsOutput)(nil), errors.New("access denied"))

		_, err := newCloudWatchTarget(client, testLogConfig)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "access denied")
	})
}

func TestCloudWatchTarget_SendLogs(t *testing.T) {
	t.Run("Remaining events are sent in chronological order on close", func(t *testing.T) {
		client := &mockCloudWatchLogs{}
		client.On("PutLogEvents", "ocr", "results").Return(nil)
		target := &CloudWatchTarget{cwClient: client, logConfig: testLogConfig}

		base := time.Date(2024, time.November, 17, 12, 0, 0, 0, time.UTC)
		entryChan := make(chan types.LogEntry, 3)
		entryChan <- types.LogEntry{Timestamp: base.Add(2 * time.Second), Data: map[string]string{"n": "2"}}
		entryChan <- types.LogEntry{Timestamp: base, Data: map[string]string{"n": "0"}}
		entryChan <- types.LogEntry{Timestamp: base.Add(time.Second), Data: map[string]string{"n": "1"}}
		close(entryChan)

		target.SendLogs(entryChan)

		require.Len(t, client.batches, 1)
		batch := client.batches[0]
		require.Len(t, batch, 3)
		for i, event := range batch {
			assert.Equal(t, fmt.Sprintf(`{"n":"%d"}`, i), aws.StringValue(event.Message))
		}
	})

	t.Run("Batches are split at the size limit", func(t *testing.T) {
		client := &mockCloudWatchLogs{}
		client.On("PutLogEvents", "ocr", "results").Return(nil)
		target := &CloudWatchTarget{cwClient: client, logConfig: testLogConfig}

		// six entries of ~200KB, only five fit in one request
		large := strings.Repeat("x", 200_000)
		entryChan := make(chan types.LogEntry, 6)
		for i := 0; i < 6; i++ {
			entryChan <- types.LogEntry{Timestamp: time.Now(), Data: map[string]string{"output": large}}
		}
		close(entryChan)

		target.SendLogs(entryChan)

		require.Len(t, client.batches, 2)
		assert.Len(t, client.batches[0], 5)
		assert.Len(t, client.batches[1], 1)
	})

	t.Run("Oversized output is truncated without dropping the batch", func(t *testing.T) {
		client := &mockCloudWatchLogs{}
		client.On("PutLogEvents", "ocr", "results").Return(nil)
		target := &CloudWatchTarget{cwClient: client, logConfig: testLogConfig}

		base := time.Date(2024, time.November, 17, 12, 0, 0, 0, time.UTC)
		entryChan := make(chan types.LogEntry, 2)
		entryChan <- types.LogEntry{Timestamp: base, Data: map[string]string{"status": "completed", "output": strings.Repeat("x", 300_000)}}
		entryChan <- types.LogEntry{Timestamp: base.Add(time.Second), Data: map[string]string{"status": "completed", "output": "Hello World"}}
		close(entryChan)

		target.SendLogs(entryChan)

		require.Len(t, client.batches, 1)
		batch := client.batches[0]
		require.Len(t, batch, 2)
		first := aws.StringValue(batch[0].Message)
		assert.LessOrEqual(t, len(first)+eventOverhead, maxEventSize)
		assert.Contains(t, first, truncatedMarker)
		assert.Contains(t, first, `"status":"completed"`)
		assert.Equal(t, `{"output":"Hello World","status":"completed"}`, aws.StringValue(batch[1].Message))
	})

	t.Run("Send failures do not stop delivery", func(t *testing.T) {
		client := &mockCloudWatchLogs{}
		client.On("PutLogEvents", "ocr", "results").Return(errors.New("throttled"))
		target := &CloudWatchTarget{cwClient: client, logConfig: testLogConfig}

		entryChan := make(chan types.LogEntry, 1)
		entryChan <- types.LogEntry{Timestamp: time.Now(), Data: map[string]string{"status": "failed"}}
		close(entryChan)

		target.SendLogs(entryChan)
		client.AssertNumberOfCalls(t, "PutLogEvents", 1)
	})
}

func TestEncodeEntry(t *testing.T) {
	t.Run("Small entries are unchanged", func(t *testing.T) {
		data, err := encodeEntry(map[string]string{"error": "exit status 1"})
		require.NoError(t, err)
		assert.Equal(t, `{"error":"exit status 1"}`, string(data))
	})

	t.Run("Escaped characters count towards the limit", func(t *testing.T) {
		entry := map[string]string{"output": strings.Repeat("\"\n", 150_000)}
		data, err := encodeEntry(entry)
		require.NoError(t, err)
		assert.LessOrEqual(t, len(data)+eventOverhead, maxEventSize)
		assert.Len(t, entry["output"], 300_000, "input is not modified")
	})

	t.Run("Oversized non-truncatable fields are rejected", func(t *testing.T) {
		_, err := encodeEntry(map[string]string{"name": strings.Repeat("x", maxEventSize)})
		require.Error(t, err)
	})
}

func TestClientConfig(t *testing.T) {
	cfg := clientConfig()
	require.NotNil(t, cfg.HTTPClient)
	assert.Equal(t, requestTimeout, cfg.HTTPClient.Timeout)
	assert.Equal(t, maxRetries, aws.IntValue(cfg.MaxRetries))
}

func TestBatch_Fits(t *testing.T) {
	var b batch
	assert.True(t, b.fits(maxBatchSize+1), "an empty batch accepts any event")

	b.add(&cloudwatchlogs.InputLogEvent{}, maxBatchSize-10)
	assert.True(t, b.fits(10))
	assert.False(t, b.fits(11))

	b.reset()
	for i := 0; i < maxBatchCount; i++ {
		b.add(&cloudwatchlogs.InputLogEvent{}, 1)
	}
	assert.False(t, b.fits(1))
}
