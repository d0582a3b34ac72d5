package discord

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// ///////////////////////////////////////////////
// Constants
// ///////////////////////////////////////////////

// Opcode identifies the kind of an IPC frame.
type Opcode uint32

const (
	OpHandshake Opcode = 0
	OpFrame     Opcode = 1
	OpClose     Opcode = 2
	OpPing      Opcode = 3
	OpPong      Opcode = 4

	// frameHeaderSize is the 4-byte little-endian opcode followed by the
	// 4-byte little-endian payload length.
	frameHeaderSize = 8

	// MaxPayloadSize is the largest payload accepted in either direction (1 MiB).
	MaxPayloadSize = 1 << 20

	// maxIPCSlots is the number of numbered endpoints Discord may listen on (0-9).
	maxIPCSlots = 10
)

func (o Opcode) String() string {
	switch o {
	case OpHandshake:
		return "HANDSHAKE"
	case OpFrame:
		return "FRAME"
	case OpClose:
		return "CLOSE"
	case OpPing:
		return "PING"
	case OpPong:
		return "PONG"
	default:
		return fmt.Sprintf("OPCODE(%d)", uint32(o))
	}
}

// ErrPayloadTooLarge is returned when a payload exceeds MaxPayloadSize.
var ErrPayloadTooLarge = errors.New("payload too large")

// ///////////////////////////////////////////////
// Codec
// ///////////////////////////////////////////////

// EncodeFrame builds a frame: [4-byte LE opcode][4-byte LE length][payload].
func EncodeFrame(opcode Opcode, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayloadSize {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrPayloadTooLarge, len(payload), MaxPayloadSize)
	}
	frame := make([]byte, frameHeaderSize+len(payload))
	binary.LittleEndian.PutUint32(frame[0:4], uint32(opcode))
	binary.LittleEndian.PutUint32(frame[4:8], uint32(len(payload)))
	copy(frame[frameHeaderSize:], payload)
	return frame, nil
}

// DecodeFrame reads exactly one frame from r, tolerating short reads.
func DecodeFrame(r io.Reader) (Opcode, []byte, error) {
	var header [frameHeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return 0, nil, fmt.Errorf("reading frame header: %w", err)
	}

	opcode := Opcode(binary.LittleEndian.Uint32(header[0:4]))
	length := binary.LittleEndian.Uint32(header[4:8])
	if length > MaxPayloadSize {
		return 0, nil, fmt.Errorf("%w: %d bytes (max %d)", ErrPayloadTooLarge, length, MaxPayloadSize)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return 0, nil, fmt.Errorf("reading %s payload: %w", opcode, err)
	}
	return opcode, payload, nil
}

// writeJSON marshals v and writes it to w as a single frame.
func writeJSON(w io.Writer, opcode Opcode, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling %s payload: %w", opcode, err)
	}
	frame, err := EncodeFrame(opcode, payload)
	if err != nil {
		return err
	}
	if _, err := w.Write(frame); err != nil {
		return fmt.Errorf("writing %s frame: %w", opcode, err)
	}
	return nil
}
