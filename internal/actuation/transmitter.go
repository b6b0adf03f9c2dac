package actuation

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"go.einride.tech/can"
	"go.einride.tech/can/pkg/socketcan"
	"go.uber.org/zap"

	"github.com/san-kum/mpcsim/internal/dynamo"
)

type Writer interface {
	WriteFrame(ctx context.Context, frame can.Frame) error
	Close() error
}

type SocketCANWriter struct {
	conn net.Conn
	tx   *socketcan.Transmitter
}

// NewSocketCANWriter dials a SocketCAN interface such as "can0" or "vcan0".
func NewSocketCANWriter(ctx context.Context, iface string) (*SocketCANWriter, error) {
	conn, err := socketcan.DialContext(ctx, "can", iface)
	if err != nil {
		return nil, fmt.Errorf("socketcan dial %s: %w", iface, err)
	}
	return &SocketCANWriter{
		conn: conn,
		tx:   socketcan.NewTransmitter(conn),
	}, nil
}

func (w *SocketCANWriter) WriteFrame(ctx context.Context, frame can.Frame) error {
	return w.tx.TransmitFrame(ctx, frame)
}

func (w *SocketCANWriter) Close() error {
	if w.conn != nil {
		return w.conn.Close()
	}
	return nil
}

// Transmitter sends every issued command as a CAN frame. It implements
// dynamo.Observer; send failures are logged and counted but never stop
// the control loop.
type Transmitter struct {
	w       Writer
	log     *zap.Logger
	timeout time.Duration

	mu      sync.Mutex
	counter uint8
	sent    int
	failed  int
}

func NewTransmitter(w Writer, log *zap.Logger) *Transmitter {
	if log == nil {
		log = zap.NewNop()
	}
	return &Transmitter{w: w, log: log, timeout: 20 * time.Millisecond}
}

func (t *Transmitter) OnStep(x dynamo.State, u dynamo.Command, at float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	frame, err := Encode(u, t.counter)
	if err != nil {
		t.failed++
		t.log.Warn("command not sent", zap.Float64("t", at), zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()
	if err := t.w.WriteFrame(ctx, frame); err != nil {
		t.failed++
		t.log.Warn("can write failed", zap.Float64("t", at), zap.Error(err))
		return
	}
	t.counter++
	t.sent++
}

// Stats returns the number of frames sent and failed so far.
func (t *Transmitter) Stats() (sent, failed int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sent, t.failed
}

func (t *Transmitter) Close() error {
	return t.w.Close()
}
