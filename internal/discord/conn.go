// Package discord implements the Rich Presence transport over Discord's
// local IPC endpoint (a Unix socket, or a named pipe on Windows).
//
// [Conn] satisfies [presence.Connection]: it dials the first reachable
// endpoint from [Endpoints], performs the versioned handshake, and publishes
// activities with SET_ACTIVITY. A background reader answers pings and
// notices when Discord goes away so [Conn.Running] turns false.
package discord

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"tools.zach/dev/cordsync/internal/logger"
	"tools.zach/dev/cordsync/internal/presence"
)

// ///////////////////////////////////////////////
// Sentinel Errors
// ///////////////////////////////////////////////

var (
	// ErrNotConnected is returned when an operation requires an active connection.
	ErrNotConnected = errors.New("not connected")
	// ErrIPCNotAvailable is returned when no Discord IPC endpoint can be reached.
	ErrIPCNotAvailable = errors.New("discord IPC not available")
	// ErrHandshakeRejected is returned when Discord answers the handshake with an error.
	ErrHandshakeRejected = errors.New("handshake rejected")
)

// clearTimeout bounds the best-effort activity clear sent on disconnect.
const clearTimeout = 250 * time.Millisecond

// ///////////////////////////////////////////////
// Conn
// ///////////////////////////////////////////////

// Conn is a single IPC session bound to one Discord application ID.
type Conn struct {
	appID  string
	onUser func(presence.User)
	log    *slog.Logger
	// dial opens the raw transport; replaced in tests.
	dial func(ctx context.Context) (net.Conn, error)

	state atomic.Int32

	// mu serializes writes to nc and guards nc itself.
	mu sync.Mutex
	nc net.Conn
	// readerDone is closed when the reader goroutine for nc exits.
	readerDone chan struct{}
}

// NewConn returns an unconnected Conn for appID. onUser may be nil.
func NewConn(appID string, onUser func(presence.User)) *Conn {
	c := &Conn{
		appID:  appID,
		onUser: onUser,
		log:    logger.ForComponent(nil, "discord"),
		dial:   dialFirst,
	}
	c.state.Store(int32(presence.StateCreated))
	return c
}

// Dialer adapts [NewConn] to [presence.Dialer], logging through log.
func Dialer(log *slog.Logger) presence.Dialer {
	return func(appID string, onUser func(presence.User)) presence.Connection {
		c := NewConn(appID, onUser)
		if log != nil {
			c.log = log
		}
		return c
	}
}

// AppID returns the application ID the connection is bound to.
func (c *Conn) AppID() string { return c.appID }

// State returns the current lifecycle state.
func (c *Conn) State() presence.ConnState {
	return presence.ConnState(c.state.Load())
}

// Running reports whether the handshake succeeded and Discord has not
// closed the connection since.
func (c *Conn) Running() bool {
	return c.State() == presence.StateConnected
}

// Connect dials Discord and performs the handshake. It is a no-op when the
// connection is already running. ctx bounds both the dial and the handshake.
func (c *Conn) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.nc != nil && c.Running() {
		return nil
	}
	c.closeLocked()
	c.state.Store(int32(presence.StateConnecting))

	nc, err := c.dial(ctx)
	if err != nil {
		c.state.Store(int32(presence.StateDisconnected))
		return err
	}

	user, err := c.handshake(ctx, nc)
	if err != nil {
		nc.Close()
		c.state.Store(int32(presence.StateDisconnected))
		return err
	}

	c.nc = nc
	c.readerDone = make(chan struct{})
	c.state.Store(int32(presence.StateConnected))
	go c.readLoop(nc, c.readerDone)

	if c.onUser != nil {
		c.onUser(user)
	}
	return nil
}

// Send publishes p with SET_ACTIVITY. The write is abandoned when ctx ends.
func (c *Conn) Send(ctx context.Context, p *presence.Presence) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.nc == nil || !c.Running() {
		return ErrNotConnected
	}
	return c.command(ctx, "SET_ACTIVITY", map[string]any{
		"pid":      os.Getpid(),
		"activity": toActivity(p),
	})
}

// Disconnect clears the activity best-effort and closes the transport. It
// is safe to call repeatedly.
func (c *Conn) Disconnect() error {
	c.mu.Lock()
	if c.nc == nil {
		c.state.Store(int32(presence.StateDisconnected))
		c.mu.Unlock()
		return nil
	}

	if c.Running() {
		ctx, cancel := context.WithTimeout(context.Background(), clearTimeout)
		if err := c.command(ctx, "SET_ACTIVITY", map[string]any{"pid": os.Getpid(), "activity": nil}); err != nil {
			c.log.Debug("failed to clear activity before disconnect", "error", err)
		}
		cancel()
	}

	done := c.readerDone
	err := c.closeLocked()
	c.mu.Unlock()

	if done != nil {
		<-done
	}
	return err
}

// closeLocked closes nc without waiting for the reader. The caller must hold c.mu.
func (c *Conn) closeLocked() error {
	c.state.Store(int32(presence.StateDisconnected))
	if c.nc == nil {
		return nil
	}
	err := c.nc.Close()
	c.nc = nil
	if err != nil {
		return fmt.Errorf("closing IPC connection: %w", err)
	}
	return nil
}

// ///////////////////////////////////////////////
// Wire Protocol
// ///////////////////////////////////////////////

// readyEvent is the handshake response payload.
type readyEvent struct {
	Cmd  string `json:"cmd"`
	Evt  string `json:"evt"`
	Data struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		User    struct {
			ID            string `json:"id"`
			Username      string `json:"username"`
			GlobalName    string `json:"global_name"`
			Discriminator string `json:"discriminator"`
			Avatar        string `json:"avatar"`
		} `json:"user"`
	} `json:"data"`
}

// closePayload is sent by Discord with OpClose.
type closePayload struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// handshake sends the versioned handshake and returns the user from READY.
func (c *Conn) handshake(ctx context.Context, nc net.Conn) (presence.User, error) {
	stop := bindDeadline(ctx, nc)
	defer stop()

	if err := writeJSON(nc, OpHandshake, map[string]any{"v": 1, "client_id": c.appID}); err != nil {
		return presence.UnknownUser, fmt.Errorf("handshake: %w", err)
	}

	opcode, data, err := DecodeFrame(nc)
	if err != nil {
		if ctx.Err() != nil {
			return presence.UnknownUser, fmt.Errorf("handshake: %w", ctx.Err())
		}
		return presence.UnknownUser, fmt.Errorf("reading handshake response: %w", err)
	}

	switch opcode {
	case OpClose:
		var cp closePayload
		_ = json.Unmarshal(data, &cp)
		return presence.UnknownUser, fmt.Errorf("%w: %s (code %d)", ErrHandshakeRejected, cp.Message, cp.Code)
	case OpFrame:
	default:
		return presence.UnknownUser, fmt.Errorf("unexpected handshake response opcode: %s", opcode)
	}

	var ev readyEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return presence.UnknownUser, fmt.Errorf("parsing handshake response: %w", err)
	}
	if ev.Evt == "ERROR" {
		return presence.UnknownUser, fmt.Errorf("%w: %s", ErrHandshakeRejected, ev.Data.Message)
	}

	u := ev.Data.User
	if u.ID == "" {
		return presence.UnknownUser, nil
	}
	return presence.User{
		ID:            u.ID,
		Username:      u.Username,
		GlobalName:    u.GlobalName,
		Discriminator: u.Discriminator,
		Avatar:        u.Avatar,
	}, nil
}

// command writes a command frame tagged with a fresh nonce. The caller
// must hold c.mu.
func (c *Conn) command(ctx context.Context, cmd string, args map[string]any) error {
	if c.nc == nil {
		return ErrNotConnected
	}
	stop := bindDeadline(ctx, c.nc)
	defer stop()

	nonce := uuid.NewString()
	c.log.Log(ctx, logger.LevelTrace, "writing command", "cmd", cmd, "nonce", nonce)
	err := writeJSON(c.nc, OpFrame, map[string]any{
		"cmd":   cmd,
		"args":  args,
		"nonce": nonce,
	})
	if err == nil {
		return nil
	}

	// A partial frame leaves the stream unframed; drop the transport so the
	// next Connect starts clean.
	c.log.Debug("command write failed, closing transport", "cmd", cmd, "error", err)
	_ = c.closeLocked()
	switch {
	case ctx.Err() != nil:
		return fmt.Errorf("%s: %w", cmd, ctx.Err())
	case errors.Is(err, os.ErrDeadlineExceeded):
		return fmt.Errorf("%s: %w", cmd, context.DeadlineExceeded)
	}
	return fmt.Errorf("%s: %w", cmd, err)
}

// readLoop consumes frames until the transport fails or Discord closes it.
func (c *Conn) readLoop(nc net.Conn, done chan struct{}) {
	defer close(done)
	for {
		opcode, data, err := DecodeFrame(nc)
		if err != nil {
			c.markDown(nc, "read failed", err)
			return
		}
		c.log.Log(context.Background(), logger.LevelTrace, "frame received", "op", opcode.String(), "bytes", len(data))

		switch opcode {
		case OpPing:
			c.mu.Lock()
			if c.nc == nc {
				frame, encErr := EncodeFrame(OpPong, data)
				if encErr == nil {
					_, err = nc.Write(frame)
				}
			}
			c.mu.Unlock()
			if err != nil {
				c.markDown(nc, "pong failed", err)
				return
			}
		case OpClose:
			var cp closePayload
			_ = json.Unmarshal(data, &cp)
			c.markDown(nc, "closed by discord", fmt.Errorf("code %d: %s", cp.Code, cp.Message))
			return
		case OpFrame:
			var ev readyEvent
			if json.Unmarshal(data, &ev) == nil && ev.Evt == "ERROR" {
				c.log.Warn("discord rejected command", "cmd", ev.Cmd, "code", ev.Data.Code, "message", ev.Data.Message)
			}
		}
	}
}

// markDown flips the state to disconnected if nc is still the live transport.
// A reader outliving its transport (after Disconnect or a reconnect) is ignored.
func (c *Conn) markDown(nc net.Conn, reason string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.nc != nc {
		return
	}
	if c.state.CompareAndSwap(int32(presence.StateConnected), int32(presence.StateDisconnected)) {
		c.log.Info("discord connection lost", "app_id", c.appID, "reason", reason, "error", err)
	}
}

// bindDeadline applies ctx's deadline to nc and forces pending I/O to fail
// when ctx is cancelled. The returned func restores an unbounded deadline.
func bindDeadline(ctx context.Context, nc net.Conn) func() {
	if dl, ok := ctx.Deadline(); ok {
		_ = nc.SetDeadline(dl)
	}
	stop := context.AfterFunc(ctx, func() {
		_ = nc.SetDeadline(time.Now())
	})
	return func() {
		stop()
		_ = nc.SetDeadline(time.Time{})
	}
}

// dialFirst returns a connection to the first reachable endpoint.
func dialFirst(ctx context.Context) (net.Conn, error) {
	for _, path := range Endpoints() {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		conn, err := dialEndpoint(ctx, path)
		if err == nil {
			return conn, nil
		}
	}
	return nil, notAvailable()
}

// ///////////////////////////////////////////////
// Activity Mapping
// ///////////////////////////////////////////////

type activityTimestamps struct {
	Start int64 `json:"start,omitempty"`
	End   int64 `json:"end,omitempty"`
}

type activityAssets struct {
	LargeImage string `json:"large_image,omitempty"`
	LargeText  string `json:"large_text,omitempty"`
	SmallImage string `json:"small_image,omitempty"`
	SmallText  string `json:"small_text,omitempty"`
}

type activity struct {
	Details    string              `json:"details,omitempty"`
	State      string              `json:"state,omitempty"`
	Timestamps *activityTimestamps `json:"timestamps,omitempty"`
	Assets     *activityAssets     `json:"assets,omitempty"`
	Buttons    []presence.Button   `json:"buttons,omitempty"`
}

// maxButtons is the number of buttons Discord renders.
const maxButtons = 2

// toActivity converts p to the SET_ACTIVITY wire shape, omitting empty sections.
func toActivity(p *presence.Presence) *activity {
	if p == nil {
		return nil
	}
	a := &activity{Details: p.Details, State: p.State}
	if p.StartTimestamp != 0 || p.EndTimestamp != 0 {
		a.Timestamps = &activityTimestamps{Start: p.StartTimestamp, End: p.EndTimestamp}
	}
	if p.LargeImage != "" || p.LargeText != "" || p.SmallImage != "" || p.SmallText != "" {
		a.Assets = &activityAssets{
			LargeImage: p.LargeImage,
			LargeText:  p.LargeText,
			SmallImage: p.SmallImage,
			SmallText:  p.SmallText,
		}
	}
	for _, b := range p.Buttons {
		if len(a.Buttons) == maxButtons {
			break
		}
		if b.Label != "" && b.URL != "" {
			a.Buttons = append(a.Buttons, b)
		}
	}
	return a
}
