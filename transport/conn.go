package transport

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"braces.dev/errtrace"

	"github.com/ghettovoice/qsip/internal/log"
)

type closeOnceConn struct {
	net.Conn
	closeOnce sync.Once
	closeErr  error
}

func newCloseOnceConn(c net.Conn) *closeOnceConn {
	if c, ok := c.(*closeOnceConn); ok {
		return c
	}
	return &closeOnceConn{Conn: c}
}

func (c *closeOnceConn) Close() error {
	c.closeOnce.Do(func() {
		if err := c.Conn.Close(); err != nil {
			c.closeErr = err
		}
	})
	return errtrace.Wrap(c.closeErr)
}

type logConn struct {
	net.Conn
	log *slog.Logger
}

func newLogConn(c net.Conn, log *slog.Logger) *logConn {
	if c, ok := c.(*logConn); ok {
		return c
	}
	return &logConn{Conn: c, log: log}
}

func (c *logConn) Write(b []byte) (n int, err error) {
	n, err = c.Conn.Write(b)
	if err != nil {
		return n, errtrace.Wrap(err)
	}

	ctx := context.Background()
	if !c.log.Enabled(ctx, slog.LevelDebug) {
		return n, nil
	}
	c.log.LogAttrs(ctx, slog.LevelDebug,
		fmt.Sprintf("socket wrote buffer %s -> %s", c.LocalAddr(), c.RemoteAddr()),
		slog.Group("buffer",
			slog.Int("size", n),
			slog.Any("data", log.PayloadValue(b[:n], 1000)),
		),
	)
	return n, nil
}

func (c *logConn) Close() error {
	if err := c.Conn.Close(); err != nil {
		c.log.LogAttrs(context.Background(), slog.LevelDebug, "socket closed with error", slog.Any("error", err))
		return errtrace.Wrap(err)
	}
	c.log.LogAttrs(context.Background(), slog.LevelDebug, "socket closed")
	return nil
}

func (c *logConn) SetWriteDeadline(t time.Time) error {
	if err := c.Conn.SetWriteDeadline(t); err != nil {
		return errtrace.Wrap(err)
	}
	c.log.LogAttrs(context.Background(), slog.LevelDebug, "socket set write deadline", slog.Time("deadline", t))
	return nil
}
