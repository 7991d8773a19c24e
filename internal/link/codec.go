// Package link exchanges commands and events with the secondary controller
// as newline-delimited JSON over a serial line.
package link

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"reflow_oven/internal/events"
)

// MaxLineBytes bounds a single frame.
const MaxLineBytes = 64 * 1024

var ErrMalformed = errors.New("link: malformed frame")

// Kind tags a frame.
type Kind string

const (
	KindCommand Kind = "cmd"
	KindEvent   Kind = "evt"
	KindReply   Kind = "ack"
)

// Command names accepted from the secondary controller.
const (
	CmdSetTarget       = "SET_TARGET"
	CmdStartSensorCal  = "START_SENSOR_CALIBRATION"
	CmdStartThermalCal = "START_THERMAL_CALIBRATION"
	CmdStartDoorCal    = "START_DOOR_CALIBRATION"
	CmdStopCalibration = "STOP_CALIBRATION"
	CmdSetDoorOpen     = "SET_DOOR_OPEN_POSITION"
	CmdSetDoorClosed   = "SET_DOOR_CLOSED_POSITION"
	CmdSetDoorPosition = "SET_DOOR_POSITION"
	CmdStartReflow     = "START_REFLOW"
	CmdCancelReflow    = "CANCEL_REFLOW"
	CmdPing            = "PING"
)

// Command is a request with a caller-chosen sequence number echoed in the reply.
type Command struct {
	Seq  uint32         `json:"seq"`
	Name string         `json:"name"`
	Arg  events.Payload `json:"arg"`
}

type Reply struct {
	Seq   uint32 `json:"seq"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// Message is one frame on the wire. Exactly one of the pointers is set, matching Kind.
type Message struct {
	Kind    Kind          `json:"k"`
	Command *Command      `json:"cmd,omitempty"`
	Event   *events.Event `json:"evt,omitempty"`
	Reply   *Reply        `json:"ack,omitempty"`
}

func (m Message) validate() error {
	switch m.Kind {
	case KindCommand:
		if m.Command == nil || m.Command.Name == "" {
			return fmt.Errorf("%w: command without name", ErrMalformed)
		}
	case KindEvent:
		if m.Event == nil {
			return fmt.Errorf("%w: empty event", ErrMalformed)
		}
	case KindReply:
		if m.Reply == nil {
			return fmt.Errorf("%w: empty reply", ErrMalformed)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrMalformed, m.Kind)
	}
	return nil
}

// Encoder writes frames; safe for concurrent use.
type Encoder struct {
	mu sync.Mutex
	w  *bufio.Writer
}

func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: bufio.NewWriter(w)}
}

func (e *Encoder) Encode(m Message) error {
	if err := m.validate(); err != nil {
		return err
	}
	b, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal %s frame: %w", m.Kind, err)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, err := e.w.Write(append(b, '\n')); err != nil {
		return err
	}
	return e.w.Flush()
}

// Decoder reads frames one line at a time.
type Decoder struct {
	s *bufio.Scanner
}

func NewDecoder(r io.Reader) *Decoder {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 4096), MaxLineBytes)
	return &Decoder{s: s}
}

// Decode returns the next frame. Blank lines are skipped; io.EOF marks a clean end.
func (d *Decoder) Decode() (Message, error) {
	for d.s.Scan() {
		line := d.s.Bytes()
		if len(line) == 0 {
			continue
		}
		var m Message
		if err := json.Unmarshal(line, &m); err != nil {
			return Message{}, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		if err := m.validate(); err != nil {
			return Message{}, err
		}
		return m, nil
	}
	if err := d.s.Err(); err != nil {
		return Message{}, err
	}
	return Message{}, io.EOF
}
