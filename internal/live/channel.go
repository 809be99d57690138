package live

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// State 通道连接状态
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

var ErrChannelClosed = errors.New("live channel closed")

// Conn 一条已建立的事件连接
type Conn interface {
	// ReadFrame 阻塞直到收到一帧或连接断开
	ReadFrame() ([]byte, error)
	Close() error
}

// Transport 建立事件连接
type Transport interface {
	Dial(ctx context.Context) (Conn, error)
}

// Channel 每个会话一条的事件通道，解码帧后发布到 Bus
type Channel struct {
	transport Transport
	bus       *Bus
	logger    *slog.Logger

	mu      sync.Mutex
	state   State
	conn    Conn
	closed  bool
	onState func(State)
}

// NewChannel 创建事件通道
func NewChannel(transport Transport, bus *Bus, logger *slog.Logger) *Channel {
	if logger == nil {
		logger = slog.Default()
	}
	return &Channel{
		transport: transport,
		bus:       bus,
		logger:    logger,
	}
}

// OnStateChange 注册状态变化回调
func (c *Channel) OnStateChange(fn func(State)) {
	c.mu.Lock()
	c.onState = fn
	c.mu.Unlock()
}

// State 当前状态
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Bus 返回事件总线
func (c *Channel) Bus() *Bus {
	return c.bus
}

func (c *Channel) setState(s State) {
	c.mu.Lock()
	if c.state == s {
		c.mu.Unlock()
		return
	}
	c.state = s
	fn := c.onState
	c.mu.Unlock()

	if fn != nil {
		fn(s)
	}
}

// Run 建立连接并持续读取，连接断开或 ctx 结束时返回。
// ctx 结束或 Close 导致的退出返回 nil（Close 之后再调用返回 ErrChannelClosed）。
func (c *Channel) Run(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrChannelClosed
	}
	c.mu.Unlock()

	c.setState(StateConnecting)
	conn, err := c.transport.Dial(ctx)
	if err != nil {
		c.setState(StateDisconnected)
		if ctx.Err() != nil {
			return nil
		}
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		c.setState(StateDisconnected)
		return ErrChannelClosed
	}
	c.conn = conn
	c.mu.Unlock()

	c.setState(StateConnected)
	c.logger.Info("Live channel connected")

	stop := make(chan struct{})
	watchDone := make(chan struct{})
	go func() {
		defer close(watchDone)
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	readErr := c.readLoop(conn)

	close(stop)
	<-watchDone
	conn.Close()

	c.mu.Lock()
	c.conn = nil
	closed := c.closed
	c.mu.Unlock()
	c.setState(StateDisconnected)

	if ctx.Err() != nil || closed {
		c.logger.Info("Live channel stopped")
		return nil
	}
	c.logger.Warn("Live channel disconnected", "error", readErr)
	return readErr
}

func (c *Channel) readLoop(conn Conn) error {
	for {
		data, err := conn.ReadFrame()
		if err != nil {
			return err
		}

		ev, err := DecodeFrame(data)
		if err != nil {
			c.logger.Warn("Dropping live frame", "error", err, "size", len(data))
			continue
		}
		c.bus.Publish(ev)
	}
}

// Close 关闭通道；之后 Run 不再建立连接
func (c *Channel) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	conn := c.conn
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
}

// Closed 是否已关闭
func (c *Channel) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
