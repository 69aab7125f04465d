package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/coder/websocket"

	"github.com/dohr-michael/taskd/internal/tasks"
)

const (
	sendBuffer   = 256
	writeTimeout = 10 * time.Second
	pingInterval = 30 * time.Second
)

// Client is one WebSocket connection. Events go through send and are dropped
// when the client falls behind; responses go through replies and are not.
type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte
	replies chan []byte
	done    chan struct{} // closed when the write loop exits
	owner   string
}

func newClient(h *Hub, conn *websocket.Conn, owner string) *Client {
	return &Client{
		hub:     h,
		conn:    conn,
		send:    make(chan []byte, sendBuffer),
		replies: make(chan []byte),
		done:    make(chan struct{}),
		owner:   owner,
	}
}

// queue hands an event to the write loop without blocking. Callers hold the
// hub read lock, which keeps send open.
func (c *Client) queue(data []byte) bool {
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *Client) serve(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go c.writeLoop(ctx)
	c.readLoop(ctx)
}

func (c *Client) readLoop(ctx context.Context) {
	defer func() {
		c.hub.remove(c)
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			if status := websocket.CloseStatus(err); status != -1 {
				slog.Debug("ws closed", "owner", c.owner, "status", status)
			} else if !errors.Is(err, context.Canceled) {
				slog.Debug("ws read", "owner", c.owner, "error", err)
			}
			return
		}

		frame, err := UnmarshalFrame(data)
		if err != nil {
			c.reply(errorFrame("", CodeInvalidParams, "malformed frame"))
			continue
		}
		if frame.Type != FrameTypeRequest {
			slog.Debug("ws ignoring frame", "type", frame.Type)
			continue
		}
		if Method(frame.Method) == MethodWaitTask {
			// Blocks until the task ends; keep reading meanwhile.
			go func() { c.reply(c.wait(ctx, frame)) }()
			continue
		}
		c.reply(c.handle(frame))
	}
}

func (c *Client) writeLoop(ctx context.Context) {
	defer close(c.done)
	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-c.replies:
			if err := c.write(ctx, msg); err != nil {
				return
			}
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.write(ctx, msg); err != nil {
				return
			}
		case <-ping.C:
			pctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.conn.Ping(pctx)
			cancel()
			if err != nil {
				slog.Debug("ws ping", "owner", c.owner, "error", err)
				return
			}
		}
	}
}

func (c *Client) write(ctx context.Context, msg []byte) error {
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	err := c.conn.Write(wctx, websocket.MessageText, msg)
	if err != nil {
		slog.Debug("ws write", "owner", c.owner, "error", err)
	}
	return err
}

// reply hands a response to the write loop, waiting for it unless the
// connection is gone.
func (c *Client) reply(f Frame) {
	data, err := MarshalFrame(f)
	if err != nil {
		slog.Error("ws response frame", "error", err)
		return
	}
	select {
	case c.replies <- data:
	case <-c.done:
	}
}

type methodFunc func(c *Client, params json.RawMessage) (any, error)

var methods = map[Method]methodFunc{
	MethodSubmitTask:  (*Client).submit,
	MethodCancelTask:  control(TaskService.Cancel),
	MethodPauseTask:   control(TaskService.Pause),
	MethodResumeTask:  control(TaskService.Resume),
	MethodSetPriority: (*Client).setPriority,
	MethodTaskResult:  (*Client).result,
	MethodQueueStatus: func(c *Client, _ json.RawMessage) (any, error) {
		return c.hub.svc.QueueStatus(), nil
	},
}

// callError carries a protocol error code.
type callError struct {
	code string
	msg  string
}

func (e *callError) Error() string { return e.msg }

func invalidParams() error { return &callError{code: CodeInvalidParams, msg: "invalid params"} }

// handle dispatches a request and builds its response frame.
func (c *Client) handle(req Frame) Frame {
	fn, ok := methods[Method(req.Method)]
	if !ok {
		return errorFrame(req.ID, CodeUnknownMethod, "unknown method: "+req.Method)
	}
	out, err := fn(c, req.Params)
	if err != nil {
		var ce *callError
		if errors.As(err, &ce) {
			return errorFrame(req.ID, ce.code, ce.msg)
		}
		return errorFrame(req.ID, ErrorCode(err), err.Error())
	}
	f, err := NewResponseFrame(req.ID, true, out, "")
	if err != nil {
		return errorFrame(req.ID, CodeInternal, err.Error())
	}
	return f
}

func errorFrame(id, code, msg string) Frame {
	f, _ := NewResponseFrame(id, false, nil, msg)
	f.Code = code
	return f
}

func (c *Client) submit(raw json.RawMessage) (any, error) {
	var params SubmitParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, invalidParams()
	}
	opts, err := params.TaskOptions()
	if err != nil {
		return nil, err
	}
	if opts.Owner == "" {
		opts.Owner = c.owner
	}
	id, err := c.hub.svc.Submit(params.Type, params.Input, opts)
	if err != nil {
		return nil, err
	}
	return SubmitResult{TaskID: id}, nil
}

func decodeTask(raw json.RawMessage) (TaskParams, error) {
	var params TaskParams
	if err := json.Unmarshal(raw, &params); err != nil || params.TaskID == "" {
		return params, invalidParams()
	}
	return params, nil
}

func control(op func(TaskService, string) bool) methodFunc {
	return func(c *Client, raw json.RawMessage) (any, error) {
		params, err := decodeTask(raw)
		if err != nil {
			return nil, err
		}
		return AckResult{Applied: op(c.hub.svc, params.TaskID)}, nil
	}
}

func (c *Client) setPriority(raw json.RawMessage) (any, error) {
	var params PriorityParams
	if err := json.Unmarshal(raw, &params); err != nil || params.TaskID == "" {
		return nil, invalidParams()
	}
	prio, err := tasks.ParsePriority(params.Priority)
	if err != nil {
		return nil, err
	}
	return AckResult{Applied: c.hub.svc.UpdatePriority(params.TaskID, prio)}, nil
}

// wait answers wait_task with the final snapshot once the task is terminal.
func (c *Client) wait(ctx context.Context, req Frame) Frame {
	params, err := decodeTask(req.Params)
	if err != nil {
		return errorFrame(req.ID, CodeInvalidParams, err.Error())
	}
	snap, err := c.hub.svc.Wait(ctx, params.TaskID)
	if err != nil {
		return errorFrame(req.ID, ErrorCode(err), err.Error())
	}
	f, err := NewResponseFrame(req.ID, true, snap, "")
	if err != nil {
		return errorFrame(req.ID, CodeInternal, err.Error())
	}
	return f
}

func (c *Client) result(raw json.RawMessage) (any, error) {
	params, err := decodeTask(raw)
	if err != nil {
		return nil, err
	}
	snap, ok := c.hub.svc.Result(params.TaskID)
	if !ok {
		return nil, &callError{code: CodeNotFound, msg: fmt.Sprintf("task %s not found", params.TaskID)}
	}
	return snap, nil
}
