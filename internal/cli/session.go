package cli

import (
	"context"
	"time"

	"github.com/BioHazard786/camrelay/internal/config"
	"github.com/BioHazard786/camrelay/internal/roomclient"
	"github.com/BioHazard786/camrelay/internal/ui"
)

// replyTimeout bounds how long the CLI waits for room-created or
// room-joined.
const replyTimeout = 15 * time.Second

// ConnectionContext bundles a live signaling connection with its router.
type ConnectionContext struct {
	Client  *roomclient.Client
	Handler *roomclient.Handler
	Config  *config.Client
}

func NewConnectionContext(ctx context.Context, cfg *config.Client) (*ConnectionContext, error) {
	stop := ui.RunConnectionSpinner("Connecting to server...")
	defer stop()

	client := roomclient.NewClient(cfg.ServerURL, cfg.Msgpack)
	if err := client.Connect(ctx); err != nil {
		return nil, NewError("connect to server", err)
	}

	handler := roomclient.NewHandler(client)
	go handler.Start()

	return &ConnectionContext{
		Client:  client,
		Handler: handler,
		Config:  cfg,
	}, nil
}

func (c *ConnectionContext) Close() {
	if c.Client != nil {
		c.Client.Close()
	}
}

// awaitReply waits for the first value on ch, failing on a server error,
// a dropped connection, cancellation or timeout.
func awaitReply[T any](ctx context.Context, c *ConnectionContext, op string, ch <-chan T) (T, error) {
	var zero T
	timer := time.NewTimer(replyTimeout)
	defer timer.Stop()

	select {
	case v := <-ch:
		return v, nil
	case msg := <-c.Handler.Error:
		return zero, WrapError(op, ErrRejected, msg)
	case <-c.Handler.Done():
		return zero, NewError(op, ErrServerGone)
	case <-timer.C:
		return zero, WrapError(op, ErrTimeout, "no reply from server")
	case <-ctx.Done():
		return zero, NewError(op, ctx.Err())
	}
}
