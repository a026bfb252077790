package rcon_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	gorcon "github.com/gorcon/rcon"
	"github.com/gorcon/rcon/rcontest"
	"github.com/linemk/rcon-shop/internal/config"
	"github.com/linemk/rcon-shop/internal/rcon"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newServer(t *testing.T) *rcontest.Server {
	t.Helper()
	server := rcontest.NewServer(
		rcontest.SetSettings(rcontest.Settings{Password: "secret"}),
		rcontest.SetCommandHandler(func(c *rcontest.Context) {
			body := c.Request().Body()
			resp := "Unknown command"
			if body == "give Steve diamond 1" {
				resp = "Gave 1 [Diamond] to Steve"
			}
			_, _ = gorcon.NewPacket(gorcon.SERVERDATA_RESPONSE_VALUE, c.Request().ID, resp).WriteTo(c.Conn())
		}),
	)
	t.Cleanup(server.Close)
	return server
}

func TestClient_Execute(t *testing.T) {
	server := newServer(t)
	c := rcon.NewClient(discardLogger(), config.RCONConfig{
		Address:     server.Addr(),
		Password:    "secret",
		DialTimeout: time.Second,
		Timeout:     time.Second,
	})
	defer c.Close()

	resp, err := c.Execute(context.Background(), "give Steve diamond 1")
	require.NoError(t, err)
	assert.Equal(t, "Gave 1 [Diamond] to Steve", resp)

	// Соединение переиспользуется
	resp, err = c.Execute(context.Background(), "foo")
	require.NoError(t, err)
	assert.Equal(t, "Unknown command", resp)
}

func TestClient_WrongPassword(t *testing.T) {
	server := newServer(t)
	c := rcon.NewClient(discardLogger(), config.RCONConfig{
		Address:     server.Addr(),
		Password:    "wrong",
		DialTimeout: time.Second,
		Timeout:     time.Second,
	})

	_, err := c.Execute(context.Background(), "give Steve diamond 1")
	assert.Error(t, err)
}

func TestClient_NotConfigured(t *testing.T) {
	c := rcon.NewClient(discardLogger(), config.RCONConfig{})

	_, err := c.Execute(context.Background(), "list")
	assert.True(t, errors.Is(err, rcon.ErrNotConfigured))
}

func TestClient_CanceledContext(t *testing.T) {
	server := newServer(t)
	c := rcon.NewClient(discardLogger(), config.RCONConfig{Address: server.Addr(), Password: "secret"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Execute(ctx, "list")
	assert.True(t, errors.Is(err, context.Canceled))
}
