package wire

import (
	"context"
	"errors"
	"io"

	"go.uber.org/zap"

	models "github.com/tabwire/tds/pkg/models/tds"
)

// MessageReader consumes raw bytes from a transport and reassembles them
// into logical messages. It is single-pass: one instance serves exactly one
// connection, and only one message may be in progress at a time.
type MessageReader struct {
	r       io.Reader
	logger  *zap.Logger
	dec     Decoder
	cur     *Message
	scratch []byte
}

// NewMessageReader binds a reader to a transport. Blocking reads are bounded
// by whatever deadline the owner set on the underlying connection.
func NewMessageReader(r io.Reader, logger *zap.Logger) *MessageReader {
	return &MessageReader{
		r:       r,
		logger:  logger,
		scratch: make([]byte, 4096),
	}
}

// Next suspends until the first packet of the next message has arrived and
// returns the message. It returns io.EOF when the transport ended cleanly
// between messages. Beginning a new message before draining the previous one
// is a usage error.
func (mr *MessageReader) Next(ctx context.Context) (*Message, error) {
	if mr.cur != nil && !mr.cur.exhausted {
		return nil, models.NewProtocolErrorf("previous %s message not fully drained", mr.cur.Type)
	}

	pkt, err := mr.nextPacket(ctx)
	if err != nil {
		return nil, err
	}

	msg := &Message{
		Type:       pkt.Header.Type,
		mr:         mr,
		pending:    pkt.Payload,
		pendingSet: true,
		eom:        pkt.Header.EOM(),
	}
	mr.cur = msg
	mr.logger.Debug("message started",
		zap.String("type", msg.Type.String()),
		zap.Uint16("spid", pkt.Header.SPID),
		zap.Bool("single_packet", msg.eom))
	return msg, nil
}

// nextPacket pulls one complete packet, reading more transport bytes as
// needed. A transport close that truncates a packet surfaces as
// io.ErrUnexpectedEOF so the handshake can classify it as a remote close
// rather than a framing violation.
func (mr *MessageReader) nextPacket(ctx context.Context) (*models.Packet, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		pkt, err := mr.dec.Next()
		if pkt != nil || err != nil {
			return pkt, err
		}

		n, err := mr.r.Read(mr.scratch)
		if n > 0 {
			mr.dec.Feed(mr.scratch[:n])
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				mr.dec.Close()
				pkt, derr := mr.dec.Next()
				if pkt != nil {
					return pkt, nil
				}
				if models.IsProtocolError(derr) {
					// Bytes of an unfinished packet: the peer went away
					// mid-frame, not a malformed stream.
					return nil, io.ErrUnexpectedEOF
				}
				return nil, derr
			}
			return nil, err
		}
	}
}

// Message is one logical protocol unit, possibly spanning several packets,
// exposed as a lazy sequence of byte chunks.
type Message struct {
	Type models.PacketType

	mr         *MessageReader
	pending    []byte
	pendingSet bool
	eom        bool
	exhausted  bool
}

// Next returns the next non-empty chunk of the message, suspending until
// more packets arrive. It returns io.EOF once the end-of-message packet has
// been consumed. Chunks preserve byte order and deliver every payload byte
// exactly once.
func (m *Message) Next(ctx context.Context) ([]byte, error) {
	for {
		if m.exhausted {
			return nil, io.EOF
		}
		if m.pendingSet {
			m.pendingSet = false
			chunk := m.pending
			m.pending = nil
			if m.eom {
				m.exhausted = true
			}
			if len(chunk) > 0 {
				return chunk, nil
			}
			continue
		}
		if m.eom {
			m.exhausted = true
			return nil, io.EOF
		}

		pkt, err := m.mr.nextPacket(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				// Complete packets but no end-of-message: remote close.
				return nil, io.ErrUnexpectedEOF
			}
			return nil, err
		}
		if pkt.Header.Type != m.Type {
			return nil, models.NewProtocolErrorf("packet type changed mid-message: %s then %s", m.Type, pkt.Header.Type)
		}
		m.pending = pkt.Payload
		m.pendingSet = true
		m.eom = pkt.Header.EOM()
	}
}

// ReadAll drains the message into one contiguous buffer.
func (m *Message) ReadAll(ctx context.Context) ([]byte, error) {
	var out []byte
	for {
		chunk, err := m.Next(ctx)
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, chunk...)
	}
}
