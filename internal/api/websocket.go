package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-scraper/internal/catalog"
)

const (
	commandGetProducts = "get_products"
	// maxMessageSize caps one inbound message, fragments included.
	maxMessageSize = 64 << 10
	// closeGrace bounds how long a rejected peer may keep sending after our
	// close frame; closeDrainLimit bounds how much of it is discarded.
	closeGrace      = 500 * time.Millisecond
	closeDrainLimit = 1 << 20
)

var errMessageTooLarge = errors.New("websocket message too large")

// wsClient is one WebSocket connection registered with the notifier. All
// frame writes, including control replies from the read loop, hold mu.
type wsClient struct {
	conn net.Conn
	src  io.Reader
	mu   sync.Mutex
}

// newWSClient reads through buf first: frames pipelined behind the handshake
// were already consumed from conn into it.
func newWSClient(conn net.Conn, buf *bufio.ReadWriter) *wsClient {
	var src io.Reader = conn
	if buf != nil && buf.Reader.Buffered() > 0 {
		src = io.MultiReader(buf.Reader, conn)
	}
	return &wsClient{conn: conn, src: src}
}

// Send writes text as a single frame. It honors the context deadline.
func (c *wsClient) Send(ctx context.Context, text string) error {
	return c.write(ctx, ws.OpText, []byte(text))
}

func (c *wsClient) write(ctx context.Context, op ws.OpCode, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetWriteDeadline(deadline)
		defer func() { _ = c.conn.SetWriteDeadline(time.Time{}) }()
	}
	return wsutil.WriteServerMessage(c.conn, op, payload)
}

func (c *wsClient) controlHandler() wsutil.FrameHandlerFunc {
	handle := wsutil.ControlFrameHandler(c.conn, ws.StateServerSide)
	return func(h ws.Header, r io.Reader) error {
		c.mu.Lock()
		defer c.mu.Unlock()
		return handle(h, r)
	}
}

// read returns the next text or binary message, answering control frames.
// Messages over maxMessageSize fail with errMessageTooLarge.
func (c *wsClient) read() ([]byte, error) {
	control := c.controlHandler()
	rd := &wsutil.Reader{
		Source:         c.src,
		State:          ws.StateServerSide,
		CheckUTF8:      true,
		OnIntermediate: control,
	}
	for {
		hdr, err := rd.NextFrame()
		if err != nil {
			return nil, err
		}
		if hdr.OpCode.IsControl() {
			if err := control(hdr, rd); err != nil {
				return nil, err
			}
			continue
		}
		if hdr.OpCode&(ws.OpText|ws.OpBinary) == 0 {
			if err := rd.Discard(); err != nil {
				return nil, err
			}
			continue
		}
		if hdr.Length > maxMessageSize {
			return nil, fmt.Errorf("%w: frame of %d bytes", errMessageTooLarge, hdr.Length)
		}
		msg, err := io.ReadAll(io.LimitReader(rd, maxMessageSize+1))
		if err != nil {
			return nil, err
		}
		if len(msg) > maxMessageSize {
			return nil, errMessageTooLarge
		}
		return msg, nil
	}
}

// reject sends a close frame and drains what the peer already sent, so the
// socket is not reset before the close frame is read.
func (c *wsClient) reject(ctx context.Context, code ws.StatusCode, reason string) {
	if err := c.write(ctx, ws.OpClose, ws.NewCloseFrameBody(code, reason)); err != nil {
		return
	}
	_ = c.conn.SetReadDeadline(time.Now().Add(closeGrace))
	_, _ = io.Copy(io.Discard, io.LimitReader(c.src, closeDrainLimit))
}

func (s *Server) websocket(w http.ResponseWriter, r *http.Request) {
	conn, buf, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	defer func() { _ = conn.Close() }()
	client := newWSClient(conn, buf)
	logger := s.logger
	if s.notifier != nil {
		handle := s.notifier.Subscribe(client)
		defer s.notifier.Unsubscribe(handle)
		logger = logger.With(zap.Uint64("subscriber", uint64(handle)))
	}
	logger.Debug("websocket connected")

	ctx := context.WithoutCancel(r.Context())
	for {
		msg, err := client.read()
		if err != nil {
			var closed wsutil.ClosedError
			switch {
			case errors.Is(err, errMessageTooLarge):
				logger.Warn("websocket message rejected", zap.Error(err))
				client.reject(ctx, ws.StatusMessageTooBig, "message too large")
			case !errors.As(err, &closed) && !errors.Is(err, io.EOF):
				logger.Debug("websocket read failed", zap.Error(err))
			}
			return
		}
		reply, err := s.handleCommand(ctx, strings.TrimSpace(string(msg)), msg)
		if err != nil {
			logger.Warn("websocket command failed", zap.Error(err))
			reply, _ = json.Marshal(map[string]string{"error": err.Error()})
		}
		if err := client.write(ctx, ws.OpText, reply); err != nil {
			logger.Debug("websocket write failed", zap.Error(err))
			return
		}
	}
}

// handleCommand answers get_products with the product list and echoes
// anything else verbatim.
func (s *Server) handleCommand(ctx context.Context, command string, raw []byte) ([]byte, error) {
	if command != commandGetProducts {
		return raw, nil
	}
	products, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(lo.Map(products, func(p catalog.Product, _ int) productResponse {
		return toResponse(p)
	}))
	if err != nil {
		return nil, err
	}
	return data, nil
}
