// Copyright 2025 KrakLabs
// SPDX-License-Identifier: AGPL-3.0-or-later

package rpcserver

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"time"
)

// Client is a minimal synchronous client for the daemon's Unix socket
// protocol, used by CLI commands that proxy to a running daemon (e.g.
// `cie search` when a daemon is already up for the workspace).
type Client struct {
	conn net.Conn
	r    *bufio.Reader
}

// Dial connects to a daemon listening on sockPath.
func Dial(sockPath string, timeout time.Duration) (*Client, error) {
	conn, err := net.DialTimeout("unix", sockPath, timeout)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", sockPath, err)
	}
	return &Client{conn: conn, r: bufio.NewReader(conn)}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error { return c.conn.Close() }

// Call sends op/args and blocks for the matching response.
func (c *Client) Call(id, op string, args any) (Response, error) {
	argBytes, err := json.Marshal(args)
	if err != nil {
		return Response{}, err
	}

	req := Request{ID: id, Op: op, Args: argBytes}
	body, err := json.Marshal(req)
	if err != nil {
		return Response{}, err
	}

	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(body)))
	if _, err := c.conn.Write(lenBuf[:]); err != nil {
		return Response{}, err
	}
	if _, err := c.conn.Write(body); err != nil {
		return Response{}, err
	}

	if _, err := io.ReadFull(c.r, lenBuf[:]); err != nil {
		return Response{}, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	respBody := make([]byte, n)
	if _, err := io.ReadFull(c.r, respBody); err != nil {
		return Response{}, err
	}

	var resp Response
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return Response{}, err
	}
	return resp, nil
}
