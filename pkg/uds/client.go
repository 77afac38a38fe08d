package uds

import (
	"context"
	"net"

	"github.com/yanun0323/errors"

	"tickcore/pkg/exception"
)

const unixNetwork = "unix"

// Client dials Unix domain sockets using a precomputed address.
type Client struct {
	addr   net.UnixAddr
	dialer net.Dialer
}

// NewClient creates a client for the provided socket path.
func NewClient(path string) (*Client, error) {
	if path == "" {
		return nil, exception.ErrEmptyPathUDS
	}
	return &Client{addr: net.UnixAddr{Name: path, Net: unixNetwork}}, nil
}

// Path returns the configured socket path.
func (c *Client) Path() string {
	if c == nil {
		return ""
	}
	return c.addr.Name
}

// Dial opens a Unix domain socket connection.
func (c *Client) Dial(ctx context.Context) (*net.UnixConn, error) {
	if c == nil {
		return nil, exception.ErrNilClientUDS
	}
	conn, err := c.dialer.DialContext(ctx, unixNetwork, c.addr.Name)
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", c.addr.Name)
	}
	return conn.(*net.UnixConn), nil
}
