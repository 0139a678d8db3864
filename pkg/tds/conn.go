package tds

import (
	"context"
	"net"

	"go.uber.org/zap"

	models "github.com/tabwire/tds/pkg/models/tds"
	"github.com/tabwire/tds/pkg/tds/wire"
)

// Conn is an established session. It is not safe for concurrent use; the
// protocol allows one outstanding request per connection unless MARS was
// negotiated.
type Conn struct {
	transport net.Conn
	reader    *wire.MessageReader
	writer    *wire.MessageWriter
	session   *models.SessionContext
	logger    *zap.Logger
}

// Session returns what the handshake negotiated.
func (c *Conn) Session() *models.SessionContext {
	return c.session
}

// SendBatch submits a pre-encoded SQL batch payload.
func (c *Conn) SendBatch(ctx context.Context, payload []byte) error {
	return c.writer.WriteMessage(ctx, models.PacketSQLBatch, payload)
}

// SendAttention asks the server to cancel the outstanding request. The
// attention message carries no payload.
func (c *Conn) SendAttention(ctx context.Context) error {
	c.logger.Debug("sending attention")
	return c.writer.WriteMessage(ctx, models.PacketAttention, nil)
}

// Next returns the next response message from the server.
func (c *Conn) Next(ctx context.Context) (*wire.Message, error) {
	return c.reader.Next(ctx)
}

// Close tears down the transport.
func (c *Conn) Close() error {
	return c.transport.Close()
}
