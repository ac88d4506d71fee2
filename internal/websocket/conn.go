package websocket

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"syscall"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// HandlerFunc handles one complete text or binary frame.
type HandlerFunc func(data []byte) error

type Config struct {
	// URL, DialTimeout and Headers apply to Dial only.
	URL         string
	DialTimeout time.Duration
	Headers     http.Header
	Logger      *slog.Logger
}

// Conn is one endpoint of a websocket connection. The same type backs the
// dialed upstream leg and the accepted client leg of a relay session;
// only the handshake and the frame masking state differ.
type Conn struct {
	conn     net.Conn
	r        io.Reader
	state    ws.State
	out      chan wsutil.Message
	done     chan struct{}
	doneOnce sync.Once
	logger   *slog.Logger
}

// Dial connects to a websocket server and returns the client-side Conn.
func Dial(ctx context.Context, config Config) (*Conn, error) {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("url", config.URL))

	dialTimeout := config.DialTimeout
	if dialTimeout == 0 {
		dialTimeout = 10 * time.Second
	}

	hsCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	d := ws.Dialer{
		Timeout: dialTimeout,
		Header:  ws.HandshakeHeaderHTTP(config.Headers),
	}
	conn, buf, hs, err := d.Dial(hsCtx, config.URL)
	if err != nil {
		return nil, err
	}
	logger.Debug("handshake complete", slog.Any("handshake", hs))

	logger.Info("connected to websocket")

	c := newConn(conn, ws.StateClientSide, logger)
	// A non-nil buf holds frames the server sent right after the
	// handshake; keep reading through it so they are not lost.
	if buf != nil {
		c.r = buf
	}
	return c, nil
}

// Accept upgrades an incoming HTTP request and returns the server-side
// Conn. The underlying TCP connection is hijacked; nothing may be written
// to the ResponseWriter afterwards.
func Accept(w http.ResponseWriter, r *http.Request, config Config) (*Conn, error) {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		return nil, fmt.Errorf("websocket upgrade: %w", err)
	}

	logger.Debug("accepted websocket", slog.String("remote", conn.RemoteAddr().String()))

	return newConn(conn, ws.StateServerSide, logger), nil
}

func newConn(conn net.Conn, state ws.State, logger *slog.Logger) *Conn {
	c := &Conn{
		conn:   conn,
		r:      conn,
		state:  state,
		out:    make(chan wsutil.Message, 1000),
		done:   make(chan struct{}),
		logger: logger,
	}

	// output channel -> websocket
	go func() {
		for {
			select {
			case <-c.done:
				return
			case msg := <-c.out:
				if err := wsutil.WriteMessage(conn, state, msg.OpCode, msg.Payload); err != nil {
					c.logger.Error("ws write failed", slog.Any("err", err))
					c.setDone()
					return
				}
				if msg.OpCode == ws.OpClose {
					c.setDone()
					return
				}
			}
		}
	}()

	return c
}

// setDone marks the connection unusable and tears down the socket so the
// peer observes the close.
func (c *Conn) setDone() {
	c.doneOnce.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// Done is closed once the connection is no longer usable, whether by a
// peer close, a read/write error, or Close.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

func (c *Conn) WriteText(data []byte) {
	c.Write(ws.OpText, data)
}

func (c *Conn) WriteBinary(data []byte) {
	c.Write(ws.OpBinary, data)
}

func (c *Conn) Write(opcode ws.OpCode, data []byte) {
	select {
	case c.out <- wsutil.Message{OpCode: opcode, Payload: data}:
	case <-c.done:
	}
}

func (c *Conn) SendClose(code ws.StatusCode, reason string) {
	c.Write(ws.OpClose, ws.NewCloseFrameBody(code, reason))
}

func (c *Conn) Close(ctx context.Context) error {
	c.SendClose(ws.StatusNormalClosure, "closing")
	defer c.setDone()
	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("close failed: %w", ctx.Err())
	}
}

// Serve reads frames and dispatches them to onText/onBinary until the
// connection closes or the context is canceled. A non-nil handler error
// terminates the connection. A peer disconnect (EOF, reset, closed conn)
// is a normal termination and is not logged as an error.
func (c *Conn) Serve(ctx context.Context, onText, onBinary HandlerFunc) {
	defer c.setDone()

	if onText == nil {
		onText = func(data []byte) error { return nil }
	}
	if onBinary == nil {
		onBinary = func(data []byte) error { return nil }
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		default:
		}

		messages, err := wsutil.ReadMessage(c.r, c.state, nil)
		if err != nil {
			if isClosedErr(err) {
				c.logger.Debug("ws closed by peer")
				return
			}
			c.logger.Error("ws read failed", slog.Any("err", err))
			return
		}

		for _, msg := range messages {
			if msg.OpCode.IsControl() {
				if err := c.handleControl(msg); err != nil {
					c.logger.Error("handling of control message failed", slog.Any("err", err))
				}
				if msg.OpCode == ws.OpClose {
					c.logger.Debug("rcv: close", slog.String("reason", string(msg.Payload)))
					return
				}
				continue
			}

			switch msg.OpCode {
			case ws.OpText:
				if err := onText(msg.Payload); err != nil {
					c.logger.Error("text message handler failed", slog.Any("err", err))
					return
				}
			case ws.OpBinary:
				if err := onBinary(msg.Payload); err != nil {
					c.logger.Error("binary message handler failed", slog.Any("err", err))
					return
				}
			default:
				c.logger.Warn("dropping unexpected frame", slog.Any("opcode", msg.OpCode))
			}
		}
	}
}

func (c *Conn) handleControl(msg wsutil.Message) error {
	if c.state == ws.StateClientSide {
		return wsutil.HandleServerControlMessage(c.conn, msg)
	}
	return wsutil.HandleClientControlMessage(c.conn, msg)
}

func isClosedErr(err error) bool {
	var closed wsutil.ClosedError
	return errors.Is(err, io.EOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.As(err, &closed)
}
