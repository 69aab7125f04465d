// Package ws provides a WebSocket client for the taskd gateway.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync/atomic"

	"github.com/coder/websocket"

	wsprotocol "github.com/dohr-michael/taskd/internal/gateway/ws"
	"github.com/dohr-michael/taskd/internal/tasks"
)

// CallError is a failed response from the gateway.
type CallError struct {
	Code    string
	Message string
}

func (e *CallError) Error() string {
	if e.Code == "" {
		return e.Message
	}
	return e.Code + ": " + e.Message
}

// Client is a WebSocket client for the taskd gateway. It is not safe for
// concurrent use.
type Client struct {
	conn    *websocket.Conn
	reqSeq  uint64
	ctx     context.Context
	cancel  context.CancelFunc
	pending []wsprotocol.Frame
}

// Dial connects to the gateway WebSocket endpoint. A non-empty owner scopes
// the connection to that owner's events.
func Dial(ctx context.Context, rawURL, owner string) (*Client, error) {
	if owner != "" {
		u, err := url.Parse(rawURL)
		if err != nil {
			return nil, fmt.Errorf("ws url: %w", err)
		}
		q := u.Query()
		q.Set("owner", owner)
		u.RawQuery = q.Encode()
		rawURL = u.String()
	}

	conn, _, err := websocket.Dial(ctx, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("ws dial: %w", err)
	}

	clientCtx, cancel := context.WithCancel(ctx)

	return &Client{
		conn:   conn,
		ctx:    clientCtx,
		cancel: cancel,
	}, nil
}

// Call sends a request and waits for its response. Event frames received
// meanwhile are kept for ReadEvent.
func (c *Client) Call(method wsprotocol.Method, params any, out any) error {
	return c.call(method, params, out, nil)
}

// call is Call with event frames handed to onEvent when it is non-nil.
func (c *Client) call(method wsprotocol.Method, params any, out any, onEvent func(wsprotocol.Frame)) error {
	seq := atomic.AddUint64(&c.reqSeq, 1)
	id := fmt.Sprintf("req-%d", seq)

	frame, err := wsprotocol.NewRequestFrame(id, method, params)
	if err != nil {
		return err
	}
	data, err := wsprotocol.MarshalFrame(frame)
	if err != nil {
		return err
	}
	if err := c.conn.Write(c.ctx, websocket.MessageText, data); err != nil {
		return err
	}

	for {
		f, err := c.readFrame()
		if err != nil {
			return err
		}
		if f.Type == wsprotocol.FrameTypeEvent {
			if onEvent != nil {
				onEvent(f)
			} else {
				c.pending = append(c.pending, f)
			}
			continue
		}
		if f.Type != wsprotocol.FrameTypeResponse || f.ID != id {
			continue
		}
		if f.OK == nil || !*f.OK {
			return &CallError{Code: f.Code, Message: f.Error}
		}
		if out != nil && len(f.Payload) > 0 {
			return json.Unmarshal(f.Payload, out)
		}
		return nil
	}
}

// Submit submits a task and returns its id.
func (c *Client) Submit(params wsprotocol.SubmitParams) (string, error) {
	var res wsprotocol.SubmitResult
	if err := c.Call(wsprotocol.MethodSubmitTask, params, &res); err != nil {
		return "", err
	}
	return res.TaskID, nil
}

// Wait blocks until the task is terminal and returns its final snapshot.
// The outcome comes from the gateway's response, not from event frames, so
// dropped events cannot stall it. Event frames received meanwhile, including
// those already buffered, are passed to onEvent when it is non-nil.
func (c *Client) Wait(taskID string, onEvent func(wsprotocol.Frame)) (tasks.Snapshot, error) {
	if onEvent != nil {
		for _, f := range c.pending {
			onEvent(f)
		}
		c.pending = nil
	}
	var snap tasks.Snapshot
	err := c.call(wsprotocol.MethodWaitTask, wsprotocol.TaskParams{TaskID: taskID}, &snap, onEvent)
	return snap, err
}

// ReadEvent returns the next event frame.
func (c *Client) ReadEvent() (wsprotocol.Frame, error) {
	if len(c.pending) > 0 {
		f := c.pending[0]
		c.pending = c.pending[1:]
		return f, nil
	}
	for {
		f, err := c.readFrame()
		if err != nil {
			return wsprotocol.Frame{}, err
		}
		if f.Type == wsprotocol.FrameTypeEvent {
			return f, nil
		}
	}
}

func (c *Client) readFrame() (wsprotocol.Frame, error) {
	_, data, err := c.conn.Read(c.ctx)
	if err != nil {
		return wsprotocol.Frame{}, err
	}
	return wsprotocol.UnmarshalFrame(data)
}

// Close gracefully closes the connection.
func (c *Client) Close() error {
	c.cancel()
	err := c.conn.Close(websocket.StatusNormalClosure, "bye")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
