package ai

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGenerator struct {
	text  string
	err   error
	block bool
	hint  string
}

func (f *fakeGenerator) Name() string { return "fake" }

func (f *fakeGenerator) GenerateSuggestions(ctx context.Context, prompt, schemaHint string) (string, error) {
	f.hint = schemaHint
	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return f.text, f.err
}

func modelErrorKind(t *testing.T, err error) ModelErrorKind {
	t.Helper()
	var me *ModelError
	require.True(t, errors.As(err, &me), "want ModelError, got %v", err)
	return me.Kind
}

func TestGenerate_Success(t *testing.T) {
	g := &fakeGenerator{text: `[{"projectId":"p1"}]`}
	text, err := Generate(context.Background(), g, "prompt", time.Second)
	require.NoError(t, err)
	assert.Equal(t, `[{"projectId":"p1"}]`, text)
	assert.Equal(t, SchemaHint(), g.hint)
}

func TestGenerate_Timeout(t *testing.T) {
	_, err := Generate(context.Background(), &fakeGenerator{block: true}, "prompt", 10*time.Millisecond)
	require.Error(t, err)
	assert.Equal(t, ModelTimeout, modelErrorKind(t, err))
}

func TestGenerate_Empty(t *testing.T) {
	_, err := Generate(context.Background(), &fakeGenerator{text: "  \n"}, "prompt", time.Second)
	assert.Equal(t, ModelEmpty, modelErrorKind(t, err))
}

func TestGenerate_Transport(t *testing.T) {
	cause := errors.New("connection refused")
	_, err := Generate(context.Background(), &fakeGenerator{err: cause}, "prompt", time.Second)
	assert.Equal(t, ModelTransport, modelErrorKind(t, err))
	assert.ErrorIs(t, err, cause)
}

func TestGenerate_KeepsProviderKind(t *testing.T) {
	blocked := &ModelError{Provider: "fake", Kind: ModelBlocked, Err: errors.New("SAFETY")}
	_, err := Generate(context.Background(), &fakeGenerator{err: blocked}, "prompt", time.Second)
	assert.Equal(t, ModelBlocked, modelErrorKind(t, err))
	assert.Contains(t, err.Error(), "SAFETY")
}

func TestUnwrapEnvelope(t *testing.T) {
	assert.Equal(t, `[{"a":1}]`, unwrapEnvelope([]byte(`{"type":"result","result":"[{\"a\":1}]"}`)))
	assert.Equal(t, `[{"a":1}]`, unwrapEnvelope([]byte(`{"type":"result","structured_output":[{"a":1}]}`)))
	assert.Equal(t, `[1,2]`, unwrapEnvelope([]byte(`{"type":"result","result":[1,2]}`)))
	assert.Equal(t, "not json", unwrapEnvelope([]byte("not json")))
}

func TestRoundToHalf(t *testing.T) {
	cases := map[float64]float64{
		0:     0.5,
		-2:    0.5,
		0.2:   0.5,
		0.74:  0.5,
		0.75:  1,
		1.24:  1,
		1.25:  1.5,
		7.5:   7.5,
		10.26: 10.5,
	}
	for in, want := range cases {
		assert.Equal(t, want, RoundToHalf(in), "RoundToHalf(%v)", in)
	}
}

func TestNewResponse(t *testing.T) {
	resp := NewResponse([]Suggestion{{Hours: 3}, {Hours: 2.5}}, 7.5)
	assert.Equal(t, 5.5, resp.TotalHours)
	assert.Equal(t, 120, resp.UnaccountedMinutes)

	over := NewResponse([]Suggestion{{Hours: 9}}, 7.5)
	assert.Equal(t, 0, over.UnaccountedMinutes)
}
