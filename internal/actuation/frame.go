// Package actuation carries issued commands to a drive-by-wire unit over
// CAN.
//
// The command frame is 8 bytes, little-endian:
//
//	bits  0-15  steer,    signed, 1e-4 per bit
//	bits 16-31  throttle, signed, 1e-4 per bit
//	bits 32-39  alive counter
package actuation

import (
	"errors"
	"fmt"
	"math"

	"go.einride.tech/can"

	"github.com/san-kum/mpcsim/internal/dynamo"
)

const (
	// CommandFrameID is the standard 11-bit identifier of the command frame.
	CommandFrameID uint32 = 0x200

	commandLength = 8
	scale         = 1e-4
)

var (
	ErrInvalidCommand = errors.New("actuation: command is not finite")
	ErrUnexpectedID   = errors.New("actuation: unexpected frame id")
	ErrShortFrame     = errors.New("actuation: frame too short")
)

// Encode packs cmd into a command frame. Values are clipped to [-1, 1].
func Encode(cmd dynamo.Command, counter uint8) (can.Frame, error) {
	if math.IsNaN(cmd.Steer) || math.IsNaN(cmd.Throttle) {
		return can.Frame{}, ErrInvalidCommand
	}
	f := can.Frame{ID: CommandFrameID, Length: commandLength}
	f.Data.SetSignedBitsLittleEndian(0, 16, toRaw(cmd.Steer))
	f.Data.SetSignedBitsLittleEndian(16, 16, toRaw(cmd.Throttle))
	f.Data.SetUnsignedBitsLittleEndian(32, 8, uint64(counter))
	return f, nil
}

// Decode unpacks a command frame and its alive counter.
func Decode(f can.Frame) (dynamo.Command, uint8, error) {
	if f.ID != CommandFrameID {
		return dynamo.Command{}, 0, fmt.Errorf("%w: 0x%X", ErrUnexpectedID, f.ID)
	}
	if f.Length < commandLength {
		return dynamo.Command{}, 0, fmt.Errorf("%w: %d bytes", ErrShortFrame, f.Length)
	}
	cmd := dynamo.Command{
		Steer:    float64(f.Data.SignedBitsLittleEndian(0, 16)) * scale,
		Throttle: float64(f.Data.SignedBitsLittleEndian(16, 16)) * scale,
	}
	counter := uint8(f.Data.UnsignedBitsLittleEndian(32, 8))
	return cmd, counter, nil
}

func toRaw(v float64) int64 {
	v = math.Max(-1, math.Min(1, v))
	return int64(math.Round(v / scale))
}
