package models

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ObjectReference points at a document held in object storage. VersionHint is the version the
// event was raised for and may already be stale when the event is handled.
type ObjectReference struct {
	Container   string
	Key         string
	VersionHint string
}

// s3EventNotification is the envelope object storage publishes on every object change
type s3EventNotification struct {
	Records []struct {
		S3 struct {
			Bucket struct {
				Name string `json:"name"`
			} `json:"bucket"`
			Object struct {
				Key       string `json:"key"`
				VersionID string `json:"versionId"`
			} `json:"object"`
		} `json:"s3"`
	} `json:"Records"`
}

var (
	ErrNoRecords       = errors.New("object event carries no records")
	ErrMultipleRecords = errors.New("multi-record object events are not supported")
)

// ParseObjectEvent unpacks the single record of an object change notification
func ParseObjectEvent(body []byte) (ObjectReference, error) {
	var event s3EventNotification
	if err := json.Unmarshal(body, &event); err != nil {
		return ObjectReference{}, fmt.Errorf("failed to parse object event: %w", err)
	}

	switch len(event.Records) {
	case 0:
		return ObjectReference{}, ErrNoRecords
	case 1:
	default:
		return ObjectReference{}, ErrMultipleRecords
	}

	s3 := event.Records[0].S3
	if s3.Bucket.Name == "" || s3.Object.Key == "" {
		return ObjectReference{}, errors.New("object event is missing bucket or key")
	}

	return ObjectReference{
		Container:   s3.Bucket.Name,
		Key:         s3.Object.Key,
		VersionHint: s3.Object.VersionID,
	}, nil
}
