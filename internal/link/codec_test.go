package link

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reflow_oven/internal/events"
)

func TestCodec_RoundTrip(t *testing.T) {
	ts := time.Date(2025, 8, 1, 10, 30, 0, 123456789, time.UTC)
	msgs := []Message{
		{Kind: KindCommand, Command: &Command{Seq: 1, Name: CmdSetTarget, Arg: events.Float(182.5)}},
		{Kind: KindCommand, Command: &Command{Seq: 2, Name: CmdStartReflow, Arg: events.String("SAC305")}},
		{Kind: KindCommand, Command: &Command{Seq: 3, Name: CmdStopCalibration, Arg: events.None()}},
		{Kind: KindCommand, Command: &Command{Seq: 4, Name: CmdSetDoorPosition, Arg: events.Int(40)}},
		{Kind: KindEvent, Event: &events.Event{Topic: events.TopicDoor, Name: "DOOR_OPENED", Payload: events.Bool(true), Timestamp: ts}},
		{Kind: KindEvent, Event: &events.Event{Topic: events.TopicSystem, Name: "BOOT", Timestamp: ts}},
		{Kind: KindReply, Reply: &Reply{Seq: 9, OK: false, Error: "calibration busy"}},
	}

	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	for _, m := range msgs {
		require.NoError(t, enc.Encode(m))
	}

	dec := NewDecoder(&buf)
	for i, want := range msgs {
		got, err := dec.Decode()
		require.NoError(t, err, "frame %d", i)
		assert.Equal(t, want.Kind, got.Kind)
		switch want.Kind {
		case KindCommand:
			assert.Equal(t, *want.Command, *got.Command)
		case KindEvent:
			assert.Equal(t, want.Event.Topic, got.Event.Topic)
			assert.Equal(t, want.Event.Name, got.Event.Name)
			assert.Equal(t, want.Event.Payload, got.Event.Payload)
			assert.True(t, want.Event.Timestamp.Equal(got.Event.Timestamp))
		case KindReply:
			assert.Equal(t, *want.Reply, *got.Reply)
		}
	}
	_, err := dec.Decode()
	assert.ErrorIs(t, err, io.EOF)
}

func TestCodec_OneLinePerFrame(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	require.NoError(t, enc.Encode(Message{Kind: KindCommand, Command: &Command{Name: CmdPing, Arg: events.String("a\nb")}}))

	assert.Equal(t, 1, strings.Count(buf.String(), "\n"))
}

func TestCodec_RejectsMalformed(t *testing.T) {
	enc := NewEncoder(io.Discard)
	assert.ErrorIs(t, enc.Encode(Message{Kind: KindCommand}), ErrMalformed)
	assert.ErrorIs(t, enc.Encode(Message{Kind: "zzz"}), ErrMalformed)

	dec := NewDecoder(strings.NewReader("not json\n\n{\"k\":\"evt\"}\n{\"k\":\"cmd\",\"cmd\":{\"seq\":1,\"name\":\"PING\",\"arg\":{\"kind\":\"none\",\"value\":null}}}\n"))
	_, err := dec.Decode()
	assert.True(t, errors.Is(err, ErrMalformed))
	_, err = dec.Decode()
	assert.ErrorIs(t, err, ErrMalformed, "event frame without body")
	m, err := dec.Decode()
	require.NoError(t, err)
	assert.Equal(t, CmdPing, m.Command.Name)
}
