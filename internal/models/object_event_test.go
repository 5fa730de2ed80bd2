package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseObjectEvent(t *testing.T) {
	body := []byte(`{"Records":[{"eventName":"ObjectCreated:Put","s3":{
		"bucket":{"name":"trainee-forms"},
		"object":{"key":"47165/forms/formr-a/123.json","versionId":"v2","size":42}}}]}`)

	ref, err := ParseObjectEvent(body)

	require.NoError(t, err)
	assert.Equal(t, ObjectReference{
		Container:   "trainee-forms",
		Key:         "47165/forms/formr-a/123.json",
		VersionHint: "v2",
	}, ref)
}

func TestParseObjectEvent_Errors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		target error
	}{
		{"no records", `{"Records":[]}`, ErrNoRecords},
		{"test event", `{"Service":"Amazon S3","Event":"s3:TestEvent"}`, ErrNoRecords},
		{"multiple records", `{"Records":[{"s3":{}},{"s3":{}}]}`, ErrMultipleRecords},
		{"missing key", `{"Records":[{"s3":{"bucket":{"name":"b"},"object":{}}}]}`, nil},
		{"not json", `not json`, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseObjectEvent([]byte(tt.body))
			require.Error(t, err)
			if tt.target != nil {
				assert.ErrorIs(t, err, tt.target)
			}
		})
	}
}
