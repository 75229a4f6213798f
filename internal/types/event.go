package types

import "github.com/aws/aws-lambda-go/events"

// Event is the storage trigger payload. Bucket and Name follow the GCS
// object notification shape; Records is set when the function is fed an
// S3 notification envelope instead.
type Event struct {
	Bucket  string                 `json:"bucket"`
	Name    string                 `json:"name"`
	Records []events.S3EventRecord `json:"Records,omitempty"`
}

// StorageObject identifies the single object an extraction runs against.
type StorageObject struct {
	Bucket string
	Name   string
}

// Objects returns the storage objects referenced by the event.
func (e Event) Objects() []StorageObject {
	if len(e.Records) == 0 {
		return []StorageObject{{Bucket: e.Bucket, Name: e.Name}}
	}
	objs := make([]StorageObject, 0, len(e.Records))
	for _, record := range e.Records {
		// S3 notifications carry URL-encoded keys
		key := record.S3.Object.URLDecodedKey
		if key == "" {
			key = record.S3.Object.Key
		}
		objs = append(objs, StorageObject{
			Bucket: record.S3.Bucket.Name,
			Name:   key,
		})
	}
	return objs
}
