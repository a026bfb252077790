// Package rcon держит соединение с консолью игрового сервера.
package rcon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorcon/rcon"
	"github.com/linemk/rcon-shop/internal/config"
)

var ErrNotConfigured = errors.New("rcon is not configured")

// Client выполняет команды по одной: RCON-протокол не мультиплексирует запросы.
// Соединение открывается лениво и сбрасывается после любой ошибки.
type Client struct {
	log         *slog.Logger
	address     string
	password    string
	dialTimeout time.Duration
	timeout     time.Duration

	mu   sync.Mutex
	conn *rcon.Conn
}

func NewClient(log *slog.Logger, cfg config.RCONConfig) *Client {
	return &Client{
		log:         log,
		address:     cfg.Address,
		password:    cfg.Password,
		dialTimeout: cfg.DialTimeout,
		timeout:     cfg.Timeout,
	}
}

type result struct {
	resp string
	err  error
}

// Execute отправляет команду и возвращает ответ сервера как есть.
// Если ctx истёк раньше ответа, соединение закрывается.
func (c *Client) Execute(ctx context.Context, command string) (string, error) {
	const op = "rcon.Client.Execute"

	if c.address == "" || c.password == "" {
		return "", fmt.Errorf("%s: %w", op, ErrNotConfigured)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	conn, err := c.connect()
	if err != nil {
		return "", fmt.Errorf("%s: dial: %w", op, err)
	}

	done := make(chan result, 1)
	go func() {
		resp, err := conn.Execute(command)
		done <- result{resp: resp, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			c.reset()
			return "", fmt.Errorf("%s: %w", op, r.err)
		}
		return r.resp, nil
	case <-ctx.Done():
		// закрытие соединения разблокирует горутину с Execute
		c.reset()
		<-done
		return "", fmt.Errorf("%s: %w", op, ctx.Err())
	}
}

func (c *Client) connect() (*rcon.Conn, error) {
	if c.conn != nil {
		return c.conn, nil
	}
	opts := make([]rcon.Option, 0, 2)
	if c.dialTimeout > 0 {
		opts = append(opts, rcon.SetDialTimeout(c.dialTimeout))
	}
	if c.timeout > 0 {
		opts = append(opts, rcon.SetDeadline(c.timeout))
	}
	conn, err := rcon.Dial(c.address, c.password, opts...)
	if err != nil {
		return nil, err
	}
	c.log.Debug("rcon connected", slog.String("address", c.address))
	c.conn = conn
	return conn, nil
}

func (c *Client) reset() {
	if c.conn == nil {
		return
	}
	if err := c.conn.Close(); err != nil {
		c.log.Debug("rcon close failed", slog.String("error", err.Error()))
	}
	c.conn = nil
}

// Close закрывает соединение, если оно открыто
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reset()
	return nil
}
