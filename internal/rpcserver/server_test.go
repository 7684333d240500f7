// Copyright 2025 KrakLabs
// SPDX-License-Identifier: AGPL-3.0-or-later

package rpcserver

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestServer_DispatchesRegisteredOp(t *testing.T) {
	sockPath := filepath.Join(t.TempDir(), "cie.sock")
	s, err := New(sockPath, nil)
	require.NoError(t, err)
	defer s.Close()

	s.Register("echo", func(ctx context.Context, args json.RawMessage) (any, error) {
		var m map[string]any
		_ = json.Unmarshal(args, &m)
		return m, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Serve(ctx)
	time.Sleep(20 * time.Millisecond)

	c, err := Dial(sockPath, time.Second)
	require.NoError(t, err)
	defer c.Close()

	resp, err := c.Call("1", "echo", map[string]any{"hello": "world"})
	require.NoError(t, err)
	require.True(t, resp.OK)
}

func TestServer_UnknownOpReturnsError(t *testing.T) {
	sockPath := filepath.Join(t.TempDir(), "cie.sock")
	s, err := New(sockPath, nil)
	require.NoError(t, err)
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Serve(ctx)
	time.Sleep(20 * time.Millisecond)

	c, err := Dial(sockPath, time.Second)
	require.NoError(t, err)
	defer c.Close()

	resp, err := c.Call("1", "nope", nil)
	require.NoError(t, err)
	require.False(t, resp.OK)
	require.NotNil(t, resp.Error)
}
