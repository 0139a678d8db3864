// Package tds is the public entry point of the client: a Connector that
// dials and retries until a session is established, and the resulting Conn.
package tds

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/tabwire/tds/config"
	models "github.com/tabwire/tds/pkg/models/tds"
	"github.com/tabwire/tds/pkg/tds/conn"
)

// Connector establishes sessions against one configured server. It is safe
// to reuse for several Connect calls.
type Connector struct {
	cfg    *config.Config
	logger *zap.Logger
	dialer net.Dialer

	// TLSWrapper upgrades the transport when encryption is negotiated.
	// Leaving it nil makes encrypted servers unreachable.
	TLSWrapper func(net.Conn) (net.Conn, error)
}

func NewConnector(cfg *config.Config, logger *zap.Logger) *Connector {
	return &Connector{cfg: cfg, logger: logger}
}

// Connect runs handshake attempts until one succeeds or the budget runs out.
// The overall deadline is computed once; retries never extend it. At most
// MaxRetries+1 attempts are made, on one transport at a time, and only
// transient failures are retried.
func (c *Connector) Connect(ctx context.Context) (*Conn, error) {
	encryption, err := c.cfg.EncryptionMode()
	if err != nil {
		return nil, err
	}

	deadline := time.Now().Add(c.cfg.ConnectTimeout)
	ctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	bo := backoff.NewConstantBackOff(c.cfg.RetryInterval)
	attempts := c.cfg.MaxRetries + 1
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		cn, outcome := c.attempt(ctx, deadline, encryption)
		switch outcome.Kind {
		case models.OutcomeSuccess:
			c.logger.Info("session established",
				zap.Int("attempt", attempt),
				zap.String("server", cn.Session().ServerVersion()),
				zap.Int("packet_size", cn.Session().PacketSize))
			return cn, nil
		case models.OutcomeTimeout:
			return nil, outcome.Err
		case models.OutcomeFatal:
			return nil, outcome.Err
		}

		lastErr = outcome.Err
		c.logger.Warn("connection attempt failed",
			zap.Int("attempt", attempt),
			zap.Int("attempts_allowed", attempts),
			zap.Error(outcome.Err))
		if attempt == attempts {
			break
		}
		wait := bo.NextBackOff()
		// Waiting out the interval would cross the deadline anyway, so give
		// up now rather than start an attempt with no time left.
		if !time.Now().Add(wait).Before(deadline) {
			return nil, &models.TimeoutError{Phase: "retry-wait", Timeout: c.cfg.ConnectTimeout}
		}
		select {
		case <-ctx.Done():
			return nil, &models.TimeoutError{Phase: "retry-wait", Timeout: c.cfg.ConnectTimeout}
		case <-time.After(wait):
		}
	}
	return nil, fmt.Errorf("all %d connection attempts failed: %w", attempts, lastErr)
}

// attempt dials one transport and runs one handshake over it. Anything but
// a success leaves no transport behind.
func (c *Connector) attempt(ctx context.Context, deadline time.Time, encryption models.EncryptionMode) (*Conn, *models.Outcome) {
	transport, err := c.dialer.DialContext(ctx, "tcp", c.cfg.Addr())
	if err != nil {
		if isTimeoutErr(err) {
			return nil, models.TimeoutOutcome(&models.TimeoutError{Phase: "dialing", Timeout: c.cfg.ConnectTimeout})
		}
		// An unreachable or refusing server may come back within the
		// deadline.
		return nil, models.TransientOutcome(fmt.Errorf("failed to dial %s: %w", c.cfg.Addr(), err))
	}
	// The transport deadline backs the overall budget; external cancellation
	// tears the transport down so blocked reads return promptly.
	_ = transport.SetDeadline(deadline)
	stopWatch := context.AfterFunc(ctx, func() { _ = transport.Close() })

	hs := conn.New(conn.Options{
		Login:      c.login(),
		Encryption: encryption,
		Instance:   c.cfg.Instance,
		MARS:       c.cfg.MARS,
		PacketSize: c.cfg.PacketSize,
		TLSWrapper: c.TLSWrapper,
	}, c.logger)
	res := hs.Run(ctx, transport)
	if res.Outcome.Kind != models.OutcomeSuccess {
		stopWatch()
		_ = transport.Close()
		return nil, res.Outcome
	}

	stopWatch()
	_ = res.Transport.SetDeadline(time.Time{})
	return &Conn{
		transport: res.Transport,
		reader:    res.Reader,
		writer:    res.Writer,
		session:   res.Outcome.Session,
		logger:    c.logger,
	}, res.Outcome
}

// login assembles the LOGIN7 identity fields from the configuration.
func (c *Connector) login() models.Login7 {
	workstation := c.cfg.Workstation
	if workstation == "" {
		workstation, _ = os.Hostname()
	}
	return models.Login7{
		HostName:   workstation,
		UserName:   c.cfg.User,
		Password:   c.cfg.Password,
		AppName:    c.cfg.AppName,
		ServerName: c.cfg.Host,
		CtlIntName: "tabwire",
		Database:   c.cfg.Database,
	}
}

func isTimeoutErr(err error) bool {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded)
}
