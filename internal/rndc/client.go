package rndc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/isccctl/gornd/internal/iscc"
)

// DefaultPort is the TCP port BIND's rndc listens on by default.
const DefaultPort = 953

// MetricsSink receives optional, best-effort instrumentation from a
// Client. A nil sink (the default) disables metrics entirely; callers
// that want observability supply internal/metrics.Collector, which
// implements this interface.
type MetricsSink interface {
	ObservePacketSigned()
	ObservePacketVerified()
	ObserveCommandSent(command, host string)
	ObserveAuthFailure()
	ObserveSessionDuration(d time.Duration)
}

// Option configures a one-shot Do call.
type Option func(*doConfig)

type doConfig struct {
	host string
	port int
}

// WithHost overrides the client's configured host for a single command.
func WithHost(host string) Option {
	return func(c *doConfig) { c.host = host }
}

// WithPort overrides the client's configured port for a single command.
func WithPort(port int) Option {
	return func(c *doConfig) { c.port = port }
}

// Client is the synchronous, single-command library surface over
// Session: it drives one Session to completion against a freshly dialed
// Socket and exposes the result through Response/Error.
type Client struct {
	Key  *iscc.Key
	Host string
	Port int

	// Metrics is optional; nil disables instrumentation.
	Metrics MetricsSink

	response string
	lastErr  error
}

// NewClient builds a Client for host:port, authenticated with key.
func NewClient(key *iscc.Key, host string, port int) *Client {
	if port == 0 {
		port = DefaultPort
	}
	return &Client{Key: key, Host: host, Port: port}
}

// Do runs command to completion against the client's configured (or
// per-call overridden) target and reports whether it succeeded. The
// response text and error detail are retrieved afterward via Response
// and Error. Do panics if the client has no Key or the effective host is
// empty.
func (c *Client) Do(ctx context.Context, command string, opts ...Option) (bool, error) {
	cfg := doConfig{host: c.Host, port: c.Port}
	for _, opt := range opts {
		opt(&cfg)
	}
	if c.Key == nil {
		panic(`rndc: missing required argument "key"`)
	}
	if cfg.host == "" {
		panic(`rndc: missing required argument "host"`)
	}

	start := time.Now()
	c.response = ""
	c.lastErr = nil

	addr := fmt.Sprintf("%s:%d", cfg.host, cfg.port)
	sock, err := DialTCP(ctx, addr)
	if err != nil {
		c.lastErr = err
		return false, err
	}
	defer sock.Close()

	done := make(chan struct{})
	var sessionErr error

	var sess *Session
	sess = NewSession(c.Key, command, Callbacks{
		WantWrite: func(pkt *Packet, data []byte) {
			if werr := sock.WriteFrame(ctx, data); werr != nil {
				sessionErr = werr
				close(done)
				return
			}
			if c.Metrics != nil {
				c.Metrics.ObservePacketSigned()
				// Only the command packet carries a nonce, and it is built
				// only after the nonce reply verified.
				if _, ok := pkt.Nonce(); ok {
					c.Metrics.ObservePacketVerified()
					c.Metrics.ObserveCommandSent(pkt.Type(), cfg.host)
				}
			}
			sess.Next()
		},
		WantRead: func() {
			frame, rerr := sock.ReadFrame(ctx)
			if rerr != nil {
				sessionErr = rerr
				close(done)
				return
			}
			sess.NextRead(frame)
		},
		WantFinish: func(text string) {
			c.response = text
			if c.Metrics != nil {
				c.Metrics.ObservePacketVerified()
			}
			close(done)
		},
		WantError: func(err error) {
			sessionErr = err
			if c.Metrics != nil {
				var serverErr *ServerError
				if errors.As(err, &serverErr) {
					// A server error is only surfaced from a verified envelope.
					c.Metrics.ObservePacketVerified()
				} else if errors.Is(err, iscc.ErrSignatureMismatch) {
					c.Metrics.ObserveAuthFailure()
				}
			}
			close(done)
		},
	})

	sess.Start()
	<-done

	if c.Metrics != nil {
		c.Metrics.ObserveSessionDuration(time.Since(start))
	}

	if sessionErr != nil {
		c.lastErr = sessionErr
		return false, sessionErr
	}
	return true, nil
}

// Response returns the text of the most recent Do call, or "" if that
// call failed.
func (c *Client) Response() string { return c.response }

// Error returns the error of the most recent Do call, or nil if that call
// succeeded.
func (c *Client) Error() error { return c.lastErr }
