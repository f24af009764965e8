// Package monitor streams task lifecycle events to an operator dashboard
// over socket.io. It is optional: without a monitor URL the app uses the
// no-op reporter and nothing is emitted.
package monitor

import (
	"context"
	"fmt"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"

	"github.com/tidalworks/harmgrid/internal/ctxlog"
)

// Reporter receives run progress events.
type Reporter interface {
	TaskSubmitted(taskIndex int, jobID string, nodes int)
	TaskDone(taskIndex int)
	TaskTimedOut(taskIndex int)
	RunFinished(err error)
	Close()
}

// Nop discards all events.
type Nop struct{}

func (Nop) TaskSubmitted(int, string, int) {}
func (Nop) TaskDone(int)                   {}
func (Nop) TaskTimedOut(int)               {}
func (Nop) RunFinished(error)              {}
func (Nop) Close()                         {}

// SocketReporter emits events to a socket.io endpoint.
type SocketReporter struct {
	io        *socket.Socket
	connected atomic.Bool
}

// connectTimeout bounds the initial dial; progress reporting must never
// stall the run for long.
const connectTimeout = 10 * time.Second

// Dial connects to the dashboard endpoint. The URL path selects the
// socket.io mount point; the fragment-free default namespace is used.
func Dial(ctx context.Context, rawURL string) (*SocketReporter, error) {
	logger := ctxlog.FromContext(ctx).With("monitor", rawURL)
	logger.Debug("Connecting to monitor endpoint.")

	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse monitor URL: %w", err)
	}

	baseURL := fmt.Sprintf("%s://%s", parsedURL.Scheme, parsedURL.Host)
	opts := socket.DefaultOptions()
	if parsedURL.Path != "" {
		opts.SetPath(parsedURL.Path)
	}
	opts.SetTransports(types.NewSet(transports.WebSocket))

	manager := socket.NewManager(baseURL, opts)
	io := manager.Socket("/", opts)

	r := &SocketReporter{io: io}
	connected := make(chan error, 1)

	io.On(types.EventName("connect"), func(...any) {
		r.connected.Store(true)
		logger.Info("Monitor connected.", "sid", io.Id())
		select {
		case connected <- nil:
		default:
		}
	})
	io.On(types.EventName("connect_error"), func(errs ...any) {
		if err, ok := errs[0].(error); ok {
			select {
			case connected <- err:
			default:
			}
		}
	})

	io.Connect()

	dialCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	select {
	case err := <-connected:
		if err != nil {
			io.Disconnect()
			return nil, fmt.Errorf("failed to connect to monitor: %w", err)
		}
		return r, nil
	case <-dialCtx.Done():
		io.Disconnect()
		return nil, fmt.Errorf("timed out connecting to monitor at %s", rawURL)
	}
}

func (r *SocketReporter) emit(event string, payload map[string]any) {
	if !r.connected.Load() {
		return
	}
	r.io.Emit(event, payload)
}

func (r *SocketReporter) TaskSubmitted(taskIndex int, jobID string, nodes int) {
	r.emit("task_submitted", map[string]any{"task": taskIndex, "job_id": jobID, "nodes": nodes})
}

func (r *SocketReporter) TaskDone(taskIndex int) {
	r.emit("task_done", map[string]any{"task": taskIndex})
}

func (r *SocketReporter) TaskTimedOut(taskIndex int) {
	r.emit("task_timeout", map[string]any{"task": taskIndex})
}

func (r *SocketReporter) RunFinished(err error) {
	payload := map[string]any{"ok": err == nil}
	if err != nil {
		payload["error"] = err.Error()
	}
	r.emit("run_finished", payload)
}

func (r *SocketReporter) Close() {
	r.connected.Store(false)
	r.io.Disconnect()
}
