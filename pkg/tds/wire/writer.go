package wire

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"

	models "github.com/tabwire/tds/pkg/models/tds"
)

// MessageWriter serializes logical messages into the packet stream. Writes
// are strictly sequential: a message is fully handed to the transport before
// the next one may begin, matching the request/response framing of the
// handshake.
type MessageWriter struct {
	w          io.Writer
	logger     *zap.Logger
	packetSize int
	spid       uint16
	inFlight   bool
}

// NewMessageWriter binds a writer to a transport with the given maximum
// packet size.
func NewMessageWriter(w io.Writer, packetSize int, logger *zap.Logger) *MessageWriter {
	return &MessageWriter{
		w:          w,
		logger:     logger,
		packetSize: packetSize,
	}
}

// PacketSize returns the current maximum packet size.
func (mw *MessageWriter) PacketSize() int { return mw.packetSize }

// SetPacketSize applies a renegotiated packet size (ENVCHANGE during login).
func (mw *MessageWriter) SetPacketSize(n int) { mw.packetSize = n }

// WriteMessage encodes one logical message and emits its packets in order.
// Backpressure is the transport's: a full send buffer blocks the write until
// capacity is available, bounded by the connection deadline.
func (mw *MessageWriter) WriteMessage(ctx context.Context, t models.PacketType, payload []byte) error {
	if mw.inFlight {
		return models.NewProtocolErrorf("write of a %s message started before the previous message finished", t)
	}
	mw.inFlight = true
	defer func() { mw.inFlight = false }()

	packets, err := EncodePackets(t, payload, mw.packetSize, mw.spid)
	if err != nil {
		return err
	}
	for _, pkt := range packets {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := mw.w.Write(pkt); err != nil {
			return fmt.Errorf("failed to write %s packet: %w", t, err)
		}
	}
	mw.logger.Debug("message sent",
		zap.String("type", t.String()),
		zap.Int("payload_bytes", len(payload)),
		zap.Int("packets", len(packets)))
	return nil
}
