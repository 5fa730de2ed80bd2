package processor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLTFT_ArchivesUnderIDName(t *testing.T) {
	f := newFixture()
	p := NewLTFTProcessor(f.pipeline, discard)

	outcome, err := p.Process(context.Background(), Message{
		Body: []byte(`{"id":"123","traineeTisId":"47165","field1":"value1"}`),
	})

	require.NoError(t, err)
	assert.Equal(t, StateArchived, outcome.State)
	require.NotNil(t, outcome.Entry)
	assert.Equal(t, "root/ltft/"+partition+"/123.json", outcome.Entry.Path)
	assert.Equal(t, `{"id":"123","traineeTisId":"47165","field1":"value1"}`, f.read(t, outcome.Entry.Path))
}

func TestLTFT_BlankIDIsHardFailure(t *testing.T) {
	tests := map[string]string{
		"missing": `{"field1":"value1"}`,
		"blank":   `{"id":"   ","field1":"value1"}`,
		"null":    `{"id":null}`,
		"number":  `{"id":123}`,
	}

	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			f := newFixture()
			p := NewLTFTProcessor(f.pipeline, discard)

			_, err := p.Process(context.Background(), Message{Body: []byte(body)})

			assert.ErrorIs(t, err, ErrInvalidRecord)
			assert.Empty(t, f.files(t))
		})
	}
}

func TestLTFT_MalformedBodyIsHardFailure(t *testing.T) {
	f := newFixture()
	p := NewLTFTProcessor(f.pipeline, discard)

	_, err := p.Process(context.Background(), Message{Body: []byte(`{"id":`)})

	assert.ErrorIs(t, err, ErrInvalidRecord)
}

func formRMessage(body, formType string) Message {
	attrs := map[string]string{}
	if formType != "" {
		attrs[AttrFormType] = formType
	}
	return Message{Body: []byte(body), Attributes: attrs}
}

func TestFormR_ArchivesAndBroadcasts(t *testing.T) {
	f := newFixture()
	b := &fakeBroadcaster{}
	p := NewFormRProcessor(f.pipeline, b, discard)

	outcome, err := p.Process(context.Background(), formRMessage(
		`{"id":"abc","traineeTisId":"47165","lifecycleState":"SUBMITTED","surname":"Smith  "}`, "formr-b"))

	require.NoError(t, err)
	assert.Equal(t, StateBroadcastSent, outcome.State)
	require.NotNil(t, outcome.Entry)
	assert.Equal(t, "root/part-b/"+partition+"/abc.json", outcome.Entry.Path)
	assert.Equal(t, `{"id":"abc","traineeTisId":"47165","lifecycleState":"SUBMITTED","surname":"Smith"}`,
		f.read(t, outcome.Entry.Path))

	require.Len(t, b.calls, 1)
	assert.Equal(t, notifyCall{
		formName:       "abc.json",
		formType:       "formr-b",
		traineeID:      "47165",
		lifecycleState: "SUBMITTED",
		payload:        b.calls[0].payload,
	}, b.calls[0])
}

func TestFormR_MissingFormTypeIsHardFailure(t *testing.T) {
	f := newFixture()
	b := &fakeBroadcaster{}
	p := NewFormRProcessor(f.pipeline, b, discard)

	_, err := p.Process(context.Background(), formRMessage(`{"id":"abc"}`, ""))

	assert.ErrorIs(t, err, ErrInvalidRecord)
	assert.Empty(t, f.files(t))
	assert.Empty(t, b.calls)
}

func TestFormR_NoOwnerMetadataSkipsBroadcast(t *testing.T) {
	f := newFixture()
	b := &fakeBroadcaster{}
	p := NewFormRProcessor(f.pipeline, b, discard)

	outcome, err := p.Process(context.Background(), formRMessage(`{"id":"abc","field1":"value1"}`, "formr-a"))

	require.NoError(t, err)
	assert.Equal(t, StateBroadcastSkipped, outcome.State)
	assert.NotNil(t, outcome.Entry, "the form is still archived")
	assert.Empty(t, b.calls)
}

func TestFormR_IncompleteOwnerMetadataIsHardFailure(t *testing.T) {
	tests := map[string]string{
		"trainee only":   `{"id":"abc","traineeTisId":"47165"}`,
		"lifecycle only": `{"id":"abc","lifecycleState":"DRAFT"}`,
	}

	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			f := newFixture()
			b := &fakeBroadcaster{}
			p := NewFormRProcessor(f.pipeline, b, discard)

			_, err := p.Process(context.Background(), formRMessage(body, "formr-a"))

			assert.ErrorIs(t, err, ErrInvalidRecord)
			assert.Empty(t, f.files(t))
			assert.Empty(t, b.calls)
		})
	}
}

func TestFormR_UnknownTypeSkipped(t *testing.T) {
	f := newFixture()
	b := &fakeBroadcaster{}
	p := NewFormRProcessor(f.pipeline, b, discard)

	outcome, err := p.Process(context.Background(), formRMessage(
		`{"id":"abc","traineeTisId":"47165","lifecycleState":"SUBMITTED"}`, "formr-c"))

	require.NoError(t, err)
	assert.Equal(t, StateSkippedUnknownType, outcome.State)
	assert.Empty(t, f.files(t))
	assert.Empty(t, b.calls)
}

func TestLTFT_TraversingIDIsHardFailure(t *testing.T) {
	f := newFixture()
	p := NewLTFTProcessor(f.pipeline, discard)

	_, err := p.Process(context.Background(), Message{
		Body: []byte(`{"id":"../../../../../part-a/year=2024/month=202403/day=20240307/999"}`),
	})

	assert.ErrorIs(t, err, ErrInvalidRecord)
	assert.Empty(t, f.files(t))
	f.assertAbsent(t, "part-a/year=2024/month=202403/day=20240307/999.json")
}

func TestFormR_TraversingIDIsHardFailure(t *testing.T) {
	f := newFixture()
	b := &fakeBroadcaster{}
	p := NewFormRProcessor(f.pipeline, b, discard)

	_, err := p.Process(context.Background(), formRMessage(
		`{"id":"..\\..\\x","traineeTisId":"47165","lifecycleState":"SUBMITTED"}`, "formr-a"))

	assert.ErrorIs(t, err, ErrInvalidRecord)
	assert.Empty(t, f.files(t))
	assert.Empty(t, b.calls)
}
