package conn

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"strconv"
	"syscall"

	"github.com/google/uuid"
	"go.uber.org/zap"

	models "github.com/tabwire/tds/pkg/models/tds"
	"github.com/tabwire/tds/pkg/tds/wire"
)

// Client version reported in the prelogin VERSION option.
const (
	driverVersionMajor uint8  = 1
	driverVersionMinor uint8  = 0
	driverVersionBuild uint16 = 0
)

// State is the phase of the handshake state machine. It only ever moves
// forward; a failure in any phase jumps straight to StateFailed.
type State int

const (
	StateSendingPrelogin State = iota
	StateAwaitingPreloginResponse
	StateSendingLogin
	StateAwaitingLoginResponse
	StateLoggedIn
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateSendingPrelogin:
		return "sending-prelogin"
	case StateAwaitingPreloginResponse:
		return "awaiting-prelogin-response"
	case StateSendingLogin:
		return "sending-login"
	case StateAwaitingLoginResponse:
		return "awaiting-login-response"
	case StateLoggedIn:
		return "logged-in"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Options parameterizes one handshake attempt. Login carries the identity
// fields; the rest shapes prelogin negotiation.
type Options struct {
	Login      models.Login7
	Encryption models.EncryptionMode
	Instance   string
	MARS       bool
	PacketSize int

	// TLSWrapper upgrades the transport when encryption is negotiated. A nil
	// wrapper means this client cannot encrypt.
	TLSWrapper func(net.Conn) (net.Conn, error)
}

// Result is what one attempt produced. Transport, Reader and Writer are only
// meaningful when the outcome is a success; the streams already point at the
// possibly TLS-wrapped transport.
type Result struct {
	Outcome   *models.Outcome
	Transport net.Conn
	Reader    *wire.MessageReader
	Writer    *wire.MessageWriter
}

// Handshake drives the prelogin and login exchange over a single transport.
// One Handshake serves one attempt; the retry controller creates a fresh one
// per attempt.
type Handshake struct {
	opts   Options
	logger *zap.Logger
	state  State
}

func New(opts Options, logger *zap.Logger) *Handshake {
	if opts.PacketSize == 0 {
		opts.PacketSize = models.DefaultPacketSize
	}
	return &Handshake{opts: opts, logger: logger}
}

// State returns the phase the machine is currently in, or ended in.
func (h *Handshake) State() State { return h.state }

// Run performs the full handshake over transport. It never closes the
// transport; ownership stays with the caller so it can reuse or discard it
// based on the outcome.
func (h *Handshake) Run(ctx context.Context, transport net.Conn) *Result {
	r := &Result{Transport: transport}
	r.Reader = wire.NewMessageReader(transport, h.logger)
	r.Writer = wire.NewMessageWriter(transport, h.opts.PacketSize, h.logger)

	h.state = StateSendingPrelogin
	if err := h.sendPrelogin(ctx, r.Writer); err != nil {
		r.Outcome = h.fail(ctx, err)
		return r
	}

	h.state = StateAwaitingPreloginResponse
	srv, err := h.readPreloginReply(ctx, r.Reader)
	if err != nil {
		r.Outcome = h.fail(ctx, err)
		return r
	}
	h.logger.Debug("prelogin negotiated",
		zap.String("server_encryption", srv.Encryption.String()),
		zap.Uint8("server_major", srv.Version.Major),
		zap.Uint8("server_minor", srv.Version.Minor),
		zap.Uint16("server_build", srv.Version.Build))

	encrypt, err := h.negotiateEncryption(srv.Encryption)
	if err != nil {
		r.Outcome = h.fail(ctx, err)
		return r
	}
	if encrypt {
		wrapped, err := h.opts.TLSWrapper(transport)
		if err != nil {
			r.Outcome = h.fail(ctx, err)
			return r
		}
		r.Transport = wrapped
		r.Reader = wire.NewMessageReader(wrapped, h.logger)
		r.Writer = wire.NewMessageWriter(wrapped, h.opts.PacketSize, h.logger)
	}

	h.state = StateSendingLogin
	if err := h.sendLogin(ctx, r.Writer); err != nil {
		r.Outcome = h.fail(ctx, err)
		return r
	}

	h.state = StateAwaitingLoginResponse
	session, err := h.readLoginReply(ctx, r.Reader, r.Writer)
	if err != nil {
		r.Outcome = h.fail(ctx, err)
		return r
	}
	session.Encrypted = encrypt

	h.state = StateLoggedIn
	r.Outcome = models.SuccessOutcome(session)
	return r
}

func (h *Handshake) sendPrelogin(ctx context.Context, w *wire.MessageWriter) error {
	connID := uuid.New()
	activityID := uuid.New()
	opts := &models.PreloginOptions{
		Version: models.PreloginVersionValue{
			Major: driverVersionMajor,
			Minor: driverVersionMinor,
			Build: driverVersionBuild,
		},
		Encryption: h.opts.Encryption,
		Instance:   h.opts.Instance,
		ThreadID:   uint32(os.Getpid()),
		MARS:       h.opts.MARS,
		TraceID: &models.TraceID{
			ConnID:     [16]byte(connID),
			ActivityID: [16]byte(activityID),
		},
	}
	payload, err := wire.EncodePrelogin(opts)
	if err != nil {
		return err
	}
	h.logger.Debug("sending prelogin",
		zap.String("conn_id", connID.String()),
		zap.String("encryption", h.opts.Encryption.String()))
	return w.WriteMessage(ctx, models.PacketPrelogin, payload)
}

func (h *Handshake) readPreloginReply(ctx context.Context, r *wire.MessageReader) (*models.PreloginOptions, error) {
	msg, err := r.Next(ctx)
	if err != nil {
		return nil, err
	}
	if msg.Type != models.PacketReply {
		return nil, models.NewProtocolErrorf("expected a REPLY to prelogin, got %s", msg.Type)
	}
	payload, err := msg.ReadAll(ctx)
	if err != nil {
		return nil, err
	}
	if len(payload) == 0 {
		return nil, models.NewProtocolErrorf("empty prelogin response")
	}
	return wire.DecodePrelogin(payload)
}

// negotiateEncryption reconciles the client request with the server answer
// and reports whether the transport must be upgraded before login.
func (h *Handshake) negotiateEncryption(server models.EncryptionMode) (bool, error) {
	clientWants := h.opts.Encryption == models.EncryptionOn || h.opts.Encryption == models.EncryptionRequired
	switch server {
	case models.EncryptionRequired, models.EncryptionOn:
		if h.opts.TLSWrapper == nil {
			return false, models.ErrEncryptionRequired
		}
		return true, nil
	case models.EncryptionNotSupported:
		if clientWants {
			return false, models.ErrEncryptionRefused
		}
		return false, nil
	case models.EncryptionOff:
		if clientWants {
			if h.opts.TLSWrapper == nil {
				return false, models.ErrEncryptionRequired
			}
			return true, nil
		}
		return false, nil
	default:
		return false, models.NewProtocolErrorf("server answered prelogin with invalid encryption mode %d", server)
	}
}

func (h *Handshake) sendLogin(ctx context.Context, w *wire.MessageWriter) error {
	login := h.opts.Login
	if login.TDSVersion == 0 {
		login.TDSVersion = models.VerTDS74
	}
	if login.PacketSize == 0 {
		login.PacketSize = uint32(h.opts.PacketSize)
	}
	if login.ClientPID == 0 {
		login.ClientPID = uint32(os.Getpid())
	}
	login.OptionFlags2 |= models.LoginFlagODBC
	payload, err := EncodeLogin7(&login)
	if err != nil {
		return err
	}
	h.logger.Debug("sending login",
		zap.String("user", login.UserName),
		zap.String("database", login.Database),
		zap.String("app", login.AppName))
	return w.WriteMessage(ctx, models.PacketLogin7, payload)
}

// readLoginReply drains the server's login response and folds its tokens
// into a session context. The first ERROR token decides the attempt; a
// LOGINACK is required for success.
func (h *Handshake) readLoginReply(ctx context.Context, r *wire.MessageReader, w *wire.MessageWriter) (*models.SessionContext, error) {
	msg, err := r.Next(ctx)
	if err != nil {
		return nil, err
	}
	if msg.Type != models.PacketReply {
		return nil, models.NewProtocolErrorf("expected a REPLY to login, got %s", msg.Type)
	}
	payload, err := msg.ReadAll(ctx)
	if err != nil {
		return nil, err
	}

	session := &models.SessionContext{PacketSize: w.PacketSize()}
	var (
		acked    bool
		loginErr *models.ServerError
	)
	tokens := wire.NewTokenReader(payload, h.logger)
	for {
		t, v, err := tokens.Next()
		if errors.Is(err, io.EOF) {
			return nil, models.NewProtocolErrorf("login response ended without a DONE token")
		}
		if err != nil {
			return nil, err
		}
		switch t {
		case models.TokenLoginAck:
			ack := v.(*models.LoginAck)
			acked = true
			session.TDSVersion = ack.TDSVersion
			session.ServerProgram = ack.ProgName
			session.ServerMajor, session.ServerMinor, session.ServerBuild = ack.ServerVersion()
		case models.TokenError:
			se := v.(*models.ServerError)
			if loginErr == nil {
				loginErr = se
			}
			h.logger.Debug("server rejected login",
				zap.Int32("number", se.Number),
				zap.String("message", se.Message))
		case models.TokenInfo:
			se := v.(*models.ServerError)
			h.logger.Debug("server info",
				zap.Int32("number", se.Number),
				zap.String("message", se.Message))
		case models.TokenEnvChange:
			h.applyEnvChange(v.(*models.EnvChange), session, w)
		case models.TokenDone:
			done := v.(*models.Done)
			if done.Status&models.DoneMore != 0 {
				continue
			}
			if loginErr != nil {
				return nil, loginErr
			}
			if !acked {
				return nil, models.NewProtocolErrorf("login response carried neither LOGINACK nor ERROR")
			}
			return session, nil
		}
	}
}

func (h *Handshake) applyEnvChange(env *models.EnvChange, session *models.SessionContext, w *wire.MessageWriter) {
	switch env.Type {
	case models.EnvTypeDatabase:
		session.Database = env.NewValue
	case models.EnvTypeLanguage:
		session.Language = env.NewValue
	case models.EnvTypePacketSize:
		n, err := strconv.Atoi(env.NewValue)
		if err != nil {
			h.logger.Warn("server sent unparseable packet size", zap.String("value", env.NewValue))
			return
		}
		if n < models.MinPacketSize {
			n = models.MinPacketSize
		} else if n > models.MaxPacketSize {
			n = models.MaxPacketSize
		}
		w.SetPacketSize(n)
		session.PacketSize = n
		h.logger.Debug("packet size renegotiated", zap.Int("packet_size", n))
	}
}

// fail classifies err into an outcome and parks the machine in StateFailed.
func (h *Handshake) fail(ctx context.Context, err error) *models.Outcome {
	at := h.state
	h.state = StateFailed

	// An expired deadline tears the transport down from outside, so the
	// blocked read surfaces a close error rather than a timeout. The context
	// knows which one actually happened.
	if isTimeout(err) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return models.TimeoutOutcome(&models.TimeoutError{Phase: at.String()})
	}
	// A server error reaching this point was selected as the deciding token
	// of the login response.
	var se *models.ServerError
	if errors.As(err, &se) {
		if se.Transient() {
			return models.TransientOutcome(se)
		}
		return models.FatalOutcome(se)
	}
	if models.IsProtocolError(err) {
		return models.FatalOutcome(err)
	}
	// The server dropping the transport while we wait for the login verdict
	// usually means it is shedding load, so another attempt is worthwhile.
	// Before that point a vanished peer is not retried.
	if at == StateAwaitingLoginResponse && isRemoteClose(err) {
		return models.TransientOutcome(err)
	}
	return models.FatalOutcome(err)
}

func isTimeout(err error) bool {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded)
}

func isRemoteClose(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed) || errors.Is(err, syscall.ECONNRESET)
}
