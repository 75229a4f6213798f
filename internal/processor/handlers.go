package processor

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/jdwit/ocr-trigger/internal/types"
)

// concurrency is the max number of concurrent OCR engine processes in CLI mode
const concurrency = 10

// handle runs one extraction and maps its outcome to a response. It never
// returns an error; failures are logged and become the failure response.
func (p *Processor) handle(ctx context.Context, obj types.StorageObject, entries chan<- types.LogEntry) types.Response {
	output, err := p.Extract(ctx, obj)
	logOutcome(output, err)
	entries <- newLogEntry(obj, output, err)

	if err != nil {
		return types.FailureResponse()
	}
	return types.SuccessResponse()
}

// HandleEvent processes a single storage event and returns exactly one
// response. When the event carries several records they are processed in
// order and the failure response is returned if any of them failed.
func (p *Processor) HandleEvent(ctx context.Context, event types.Event) types.Response {
	entries, wait := p.dispatch()
	defer wait()

	resp := types.SuccessResponse()
	for _, obj := range event.Objects() {
		if r := p.handle(ctx, obj, entries); r.StatusCode != http.StatusOK {
			resp = r
		}
	}
	return resp
}

// HandleLambdaEvent is the Lambda entry point. Failures are encoded in the
// response, the returned error is always nil.
func (p *Processor) HandleLambdaEvent(ctx context.Context, event types.Event) (types.Response, error) {
	return p.HandleEvent(ctx, event), nil
}

func (p *Processor) processStorageObjects(ctx context.Context, objs []types.StorageObject) error {
	entries, wait := p.dispatch()
	defer wait()

	errs := make(chan error, len(objs)) // buffered channel for errors
	var wg sync.WaitGroup
	concurrent := make(chan int, concurrency) // buffered channel for concurrency

	for _, obj := range objs {
		wg.Add(1)
		concurrent <- 1
		go func(obj types.StorageObject) {
			defer func() {
				wg.Done()
				<-concurrent
			}()
			resp := p.handle(ctx, obj, entries)
			if resp.StatusCode != http.StatusOK {
				errs <- fmt.Errorf("%s: %s", StorageURI(obj.Bucket, obj.Name), resp.Body)
			}
		}(obj)
	}

	go func() {
		wg.Wait()
		close(errs)
	}()

	var errorList []error
	for err := range errs {
		errorList = append(errorList, err)
	}

	if len(errorList) > 0 {
		return fmt.Errorf("encountered errors: %v", errorList)
	}

	return nil
}

// HandleStorageURL runs the OCR engine for every object below a
// gs://bucket/prefix URL.
func (p *Processor) HandleStorageURL(ctx context.Context, url string) error {
	bucket, prefix, err := parseStorageURL(url)
	if err != nil {
		return fmt.Errorf("failed to parse storage URL: %v", err)
	}

	var objs []types.StorageObject
	var continuationToken *string
	for {
		resp, err := p.s3Client.ListObjectsV2WithContext(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(bucket),
			Prefix:            aws.String(prefix),
			ContinuationToken: continuationToken,
		})
		if err != nil {
			return fmt.Errorf("failed to list objects: %v", err)
		}

		for _, item := range resp.Contents {
			key := aws.StringValue(item.Key)
			// folder placeholders
			if strings.HasSuffix(key, "/") {
				continue
			}
			objs = append(objs, types.StorageObject{
				Bucket: bucket,
				Name:   key,
			})
		}

		if !aws.BoolValue(resp.IsTruncated) {
			break
		}
		continuationToken = resp.NextContinuationToken
	}

	if len(objs) == 0 {
		log.Printf("no objects found under %s", url)
		return nil
	}
	log.Printf("found %d objects under %s", len(objs), url)

	return p.processStorageObjects(ctx, objs)
}

func parseStorageURL(url string) (bucket string, prefix string, err error) {
	if !strings.HasPrefix(url, "gs://") {
		return "", "", fmt.Errorf("invalid storage URL, missing 'gs://' prefix")
	}
	trimmedURL := strings.TrimPrefix(url, "gs://")
	splitPos := strings.Index(trimmedURL, "/")
	if splitPos == -1 {
		return "", "", fmt.Errorf("invalid storage URL, no '/' found after bucket name")
	}
	bucket = trimmedURL[:splitPos]
	prefix = trimmedURL[splitPos+1:]
	return bucket, prefix, nil
}
