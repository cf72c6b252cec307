// Package nats stores conversation messages in a NATS JetStream stream.
package nats

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/capitalize-ai/quorra/pkg/logger"
)

const connectionName = "quorra-message-log"

// Config holds NATS connection settings. TLS is enabled when all three file
// paths are set.
type Config struct {
	URL      string
	CAFile   string
	CertFile string
	KeyFile  string
	Token    string
}

func (c Config) tls() bool {
	return c.CAFile != "" && c.CertFile != "" && c.KeyFile != ""
}

// Client is a JetStream-enabled connection used by the message log.
type Client struct {
	conn   *nats.Conn
	js     jetstream.JetStream
	logger *logger.Logger
}

// Connect dials the server and opens a JetStream context. The connection
// reconnects forever; publishes made while disconnected are buffered.
func Connect(ctx context.Context, cfg Config, log *logger.Logger) (*Client, error) {
	log = logger.OrNop(log).Named("nats")
	if cfg.URL == "" {
		return nil, errors.New("nats url is required")
	}

	nc, err := nats.Connect(cfg.URL, connectOptions(cfg, log)...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", cfg.URL, err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}
	if _, err := js.AccountInfo(ctx); err != nil {
		nc.Close()
		return nil, fmt.Errorf("JetStream unavailable: %w", err)
	}

	log.Info("connected", zap.String("url", nc.ConnectedUrl()), zap.Bool("tls", cfg.tls()))
	return &Client{conn: nc, js: js, logger: log}, nil
}

func connectOptions(cfg Config, log *logger.Logger) []nats.Option {
	opts := []nats.Option{
		nats.Name(connectionName),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.ReconnectBufSize(8 * 1024 * 1024),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Warn("disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			subject := ""
			if sub != nil {
				subject = sub.Subject
			}
			log.Error("async error", zap.String("subject", subject), zap.Error(err))
		}),
	}
	if cfg.tls() {
		opts = append(opts,
			nats.RootCAs(cfg.CAFile),
			nats.ClientCert(cfg.CertFile, cfg.KeyFile),
		)
	}
	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	}
	return opts
}

// JetStream returns the JetStream context.
func (c *Client) JetStream() jetstream.JetStream {
	return c.js
}

// Close drains pending publishes and closes the connection.
func (c *Client) Close() {
	if c.conn == nil {
		return
	}
	if err := c.conn.Drain(); err != nil {
		c.logger.Warn("drain failed", zap.Error(err))
		c.conn.Close()
	}
}

// IsConnected reports whether the connection is up. It backs the /ready check.
func (c *Client) IsConnected() bool {
	return c.conn != nil && c.conn.IsConnected()
}
