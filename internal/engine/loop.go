package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/poolproxy/internal/ir"
)

// Enqueue adds an event to the engine's queue.
// Thread-safe: may be called from any goroutine.
// Returns false if the engine has been stopped.
func (e *Engine) Enqueue(ev Event) bool {
	return e.queue.Enqueue(ev)
}

// QueueLen returns the number of events waiting to be processed.
func (e *Engine) QueueLen() int {
	return e.queue.Len()
}

// Stop closes the queue. Run returns once the queued events are processed.
func (e *Engine) Stop() {
	e.queue.Close()
}

// Run processes events until ctx is cancelled or Stop is called.
//
// Events are processed one at a time in arrival order. A failed event is
// logged and the loop continues: the failure has already been committed
// or rolled back by the invocation's transaction.
func (e *Engine) Run(ctx context.Context) error {
	slog.Info("engine starting", "contract", e.self)

	for {
		event, ok := e.queue.TryDequeue()
		if ok {
			if err := e.processEvent(ctx, event); err != nil {
				logEventError(event, err)
			}
			continue
		}

		select {
		case <-ctx.Done():
			slog.Info("engine stopping: context cancelled")
			e.queue.Close()
			return ctx.Err()

		case <-e.queue.Wait():
			// The signal channel closes with the queue.
			if e.queue.Drained() {
				slog.Info("engine stopping: queue closed")
				return nil
			}
		}
	}
}

// Drain processes queued events, including those enqueued while draining,
// until the queue is empty. It returns the number of events processed.
// Event failures are logged, not returned.
func (e *Engine) Drain(ctx context.Context) (int, error) {
	n := 0
	for {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		event, ok := e.queue.TryDequeue()
		if !ok {
			return n, nil
		}
		if err := e.processEvent(ctx, event); err != nil {
			logEventError(event, err)
		}
		n++
	}
}

// processEvent runs one invocation at the current block time and hands its
// outbound calls to the dispatcher.
func (e *Engine) processEvent(ctx context.Context, event Event) error {
	env := e.Env()

	var (
		resp ir.Response
		flow string
		err  error
	)
	switch event.Type {
	case EventTypeExecute:
		if event.Execute == nil {
			err = fmt.Errorf("execute event missing message")
			break
		}
		resp, flow, err = e.execute(ctx, env, event.Info, *event.Execute)

	case EventTypeReply:
		if event.Reply == nil {
			err = fmt.Errorf("reply event missing reply")
			break
		}
		resp, flow, err = e.reply(ctx, env, *event.Reply)

	default:
		err = fmt.Errorf("unknown event type: %d", event.Type)
	}

	if err == nil && e.dispatcher != nil {
		for _, msg := range resp.Messages {
			if derr := e.dispatcher.Dispatch(ctx, flow, msg); derr != nil {
				err = fmt.Errorf("dispatch call %d to %s: %w", msg.ID, msg.Contract, derr)
				break
			}
		}
	}

	if event.Done != nil {
		event.Done(resp, err)
	}
	return err
}

// logEventError logs a failed event with enough context for manual
// recovery.
func logEventError(event Event, err error) {
	switch {
	case event.Type == EventTypeExecute && event.Execute != nil:
		variant, _ := event.Execute.Variant()
		slog.Error("execute processing failed",
			"error", err,
			"variant", variant,
			"sender", event.Info.Sender,
			"code", CodeOf(err),
		)
	case event.Type == EventTypeReply && event.Reply != nil:
		slog.Error("reply processing failed",
			"error", err,
			"id", event.Reply.ID,
			"ok", event.Reply.Result.IsOk(),
			"code", CodeOf(err),
		)
	default:
		slog.Error("event processing failed",
			"error", err,
			"event_type", event.Type.String(),
		)
	}
}
