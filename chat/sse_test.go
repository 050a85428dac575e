package chat

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flushRecorder struct {
	bytes.Buffer
	flushes int
}

func (f *flushRecorder) Flush() { f.flushes++ }

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("broken pipe") }

func feed(evs []Event, streamErr error) (<-chan Event, <-chan error) {
	events := make(chan Event, len(evs))
	errc := make(chan error, 1)
	for _, ev := range evs {
		events <- ev
	}
	close(events)
	if streamErr != nil {
		errc <- streamErr
	}
	close(errc)
	return events, errc
}

func TestFormatEvent(t *testing.T) {
	tests := []struct {
		ev   Event
		want string
	}{
		{conversationEvent("c1"), "event: conversation\ndata: c1\n\n"},
		{tokenEvent(" world"), "event: token\ndata:  world\n\n"},
		{doneEvent(), "event: done\ndata: [DONE]\n\n"},
	}
	for _, tt := range tests {
		t.Run(string(tt.ev.Type), func(t *testing.T) {
			assert.Equal(t, tt.want, FormatEvent(tt.ev))
		})
	}
}

func TestWriteSSE(t *testing.T) {
	var out flushRecorder
	events, errc := feed([]Event{
		conversationEvent("c1"),
		tokenEvent("Hello"),
		tokenEvent(" world"),
		doneEvent(),
	}, nil)

	require.NoError(t, WriteSSE(&out, events, errc))
	assert.Equal(t,
		"event: conversation\ndata: c1\n\n"+
			"event: token\ndata: Hello\n\n"+
			"event: token\ndata:  world\n\n"+
			"event: done\ndata: [DONE]\n\n",
		out.String())
	assert.Equal(t, 4, out.flushes)
}

func TestWriteSSE_StreamError(t *testing.T) {
	var out bytes.Buffer
	streamErr := &Error{ConversationId: "c1", Err: errors.New("boom")}
	events, errc := feed([]Event{conversationEvent("c1"), tokenEvent("Hel")}, streamErr)

	err := WriteSSE(&out, events, errc)
	assert.ErrorIs(t, err, ErrStreamFailed)
	assert.NotContains(t, out.String(), "event: done")
}

func TestWriteSSE_WriteErrorDrainsEvents(t *testing.T) {
	events, errc := feed([]Event{conversationEvent("c1"), doneEvent()}, nil)

	err := WriteSSE(failingWriter{}, events, errc)
	assert.ErrorContains(t, err, "broken pipe")
	_, open := <-events
	assert.False(t, open)
}

func TestWriteSSE_NilErrorChannel(t *testing.T) {
	var out bytes.Buffer
	events, _ := feed([]Event{doneEvent()}, nil)
	assert.NoError(t, WriteSSE(&out, events, nil))
}
