package ws

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/bashautom/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/bashautom/internal/process"
	"github.com/GriffinCanCode/bashautom/internal/registry"
	"github.com/GriffinCanCode/bashautom/internal/shell"
)

const (
	pingInterval   = 30 * time.Second
	readDeadline   = 60 * time.Second
	writeDeadline  = 10 * time.Second
	maxMessageSize = 1 << 20
	sendBuffer     = 256
)

// Message types.
const (
	TypeSystem = "system"
	TypeExec   = "exec"
	TypeOutput = "output"
	TypeResult = "result"
	TypeSignal = "signal"
	TypePing   = "ping"
	TypePong   = "pong"
	TypeError  = "error"
)

// Inbound is a client message.
type Inbound struct {
	Type    string `json:"type"`
	Command string `json:"command,omitempty"`
	Timeout string `json:"timeout,omitempty"`
	Signal  string `json:"signal,omitempty"`
}

// Outbound is a server message. Only the fields relevant to Type are set.
type Outbound struct {
	Type      string               `json:"type"`
	Session   string               `json:"session,omitempty"`
	Message   string               `json:"message,omitempty"`
	Stream    shell.Stream         `json:"stream,omitempty"`
	Data      string               `json:"data,omitempty"`
	Result    *shell.CommandResult `json:"result,omitempty"`
	Dropped   int64                `json:"dropped,omitempty"`
	Signal    string               `json:"signal,omitempty"`
	Delivered *bool                `json:"delivered,omitempty"`
	Error     string               `json:"error,omitempty"`
	Timestamp int64                `json:"timestamp"`
}

// Handler streams command execution over WebSocket connections.
type Handler struct {
	registry *registry.Registry
	metrics  *monitoring.Metrics
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// NewHandler creates a WebSocket handler. checkOrigin may be nil to accept
// any origin; metrics may be nil.
func NewHandler(reg *registry.Registry, metrics *monitoring.Metrics, logger *zap.Logger, checkOrigin func(*http.Request) bool) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	return &Handler{
		registry: reg,
		metrics:  metrics,
		logger:   logger,
		upgrader: websocket.Upgrader{CheckOrigin: checkOrigin},
	}
}

// client is one connection bound to one session.
type client struct {
	h       *Handler
	conn    *websocket.Conn
	session *shell.Session
	send    chan []byte
	done    chan struct{}
	flushed chan struct{}
	ctx     context.Context
	cancel  context.CancelFunc

	running atomic.Bool
	wg      sync.WaitGroup
}

// HandleConnection upgrades GET /api/sessions/:name/stream.
func (h *Handler) HandleConnection(c *gin.Context) {
	s, err := h.registry.Get(c.Param("name"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	cl := &client{
		h:       h,
		conn:    conn,
		session: s,
		send:    make(chan []byte, sendBuffer),
		done:    make(chan struct{}),
		flushed: make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
	}
	if h.metrics != nil {
		h.metrics.IncWSConnections()
	}

	cl.enqueue(Outbound{Type: TypeSystem, Session: s.Name(), Message: "connected to " + s.Name()})

	go cl.writePump()
	cl.readPump()
}

// readPump handles client messages until the connection drops.
func (c *client) readPump() {
	defer func() {
		c.cancel()
		c.wg.Wait()
		close(c.done)
		<-c.flushed
		c.conn.Close()
		if c.h.metrics != nil {
			c.h.metrics.DecWSConnections()
		}
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(readDeadline))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(readDeadline))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.h.logger.Debug("WebSocket read error", zap.String("session", c.session.Name()), zap.Error(err))
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(readDeadline))

		var msg Inbound
		if err := sonic.Unmarshal(data, &msg); err != nil {
			c.sendError("invalid message: " + err.Error())
			continue
		}
		if c.h.metrics != nil {
			c.h.metrics.RecordWSMessage("in", msg.Type)
		}
		c.handle(msg)
	}
}

func (c *client) handle(msg Inbound) {
	switch msg.Type {
	case TypeExec:
		c.exec(msg)
	case TypeSignal:
		c.signal(msg)
	case TypePing:
		c.enqueue(Outbound{Type: TypePong})
	default:
		c.sendError("unknown message type: " + msg.Type)
	}
}

// exec runs the command in the background so signals can arrive meanwhile.
func (c *client) exec(msg Inbound) {
	if msg.Command == "" {
		c.sendError("command is required")
		return
	}
	var opts []shell.ExecOption
	if msg.Timeout != "" {
		d, err := shell.ParseTimeout(msg.Timeout)
		if err != nil {
			c.sendError(err.Error())
			return
		}
		opts = append(opts, shell.WithTimeout(d))
	}
	if !c.running.CompareAndSwap(false, true) {
		c.sendError("a command is already running on this connection")
		return
	}

	var dropped atomic.Int64
	opts = append(opts, shell.WithObserver(func(ev shell.StreamEvent) {
		if !c.tryEnqueue(Outbound{
			Type:      TypeOutput,
			Stream:    ev.Stream,
			Data:      ev.Data,
			Timestamp: ev.Timestamp.UnixMilli(),
		}) {
			dropped.Add(1)
		}
	}))

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer c.running.Store(false)

		res, err := c.session.Execute(c.ctx, msg.Command, opts...)
		out := Outbound{Type: TypeResult, Session: c.session.Name(), Result: res, Dropped: dropped.Load()}
		if err != nil {
			out.Error = err.Error()
			if res == nil {
				out.Type = TypeError
			}
		}
		c.enqueue(out)
	}()
}

func (c *client) signal(msg Inbound) {
	name := msg.Signal
	if name == "" {
		name = "INT"
	}
	sig, err := process.ParseSignal(name)
	if err != nil {
		c.sendError(err.Error())
		return
	}
	delivered, err := c.session.SendSignal(sig)
	if err != nil {
		c.sendError(err.Error())
		return
	}
	if delivered && c.h.metrics != nil {
		c.h.metrics.RecordSignal(process.SignalName(sig))
	}
	c.enqueue(Outbound{Type: TypeSignal, Signal: process.SignalName(sig), Delivered: &delivered})
}

func (c *client) sendError(msg string) {
	c.enqueue(Outbound{Type: TypeError, Error: msg})
}

func (c *client) encode(msg Outbound) []byte {
	if msg.Timestamp == 0 {
		msg.Timestamp = time.Now().UnixMilli()
	}
	data, err := sonic.Marshal(msg)
	if err != nil {
		c.h.logger.Error("Failed to encode message", zap.Error(err))
		return nil
	}
	if c.h.metrics != nil {
		c.h.metrics.RecordWSMessage("out", msg.Type)
	}
	return data
}

// enqueue blocks until msg is queued or the connection is gone.
func (c *client) enqueue(msg Outbound) {
	data := c.encode(msg)
	if data == nil {
		return
	}
	select {
	case c.send <- data:
	case <-c.ctx.Done():
	}
}

// tryEnqueue queues msg unless the buffer is full. Observers use it since
// they must not block the session's readers.
func (c *client) tryEnqueue(msg Outbound) bool {
	data := c.encode(msg)
	if data == nil {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// writePump writes queued messages and keeps the connection alive.
func (c *client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		close(c.flushed)
	}()

	for {
		select {
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.cancel()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.cancel()
				return
			}
		case <-c.done:
			// Flush what is queued, then say goodbye
			for {
				select {
				case data := <-c.send:
					_ = c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
					_ = c.conn.WriteMessage(websocket.TextMessage, data)
				default:
					_ = c.conn.WriteMessage(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
					return
				}
			}
		}
	}
}
