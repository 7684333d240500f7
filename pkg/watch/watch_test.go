// Copyright 2025 KrakLabs
// SPDX-License-Identifier: Apache-2.0

package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWatcher_DebouncesRapidEdits(t *testing.T) {
	root := t.TempDir()
	w, err := New(root, nil, WithDebounce(50*time.Millisecond))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	path := filepath.Join(root, "a.go")
	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(path, []byte("x"), 0644))
		time.Sleep(5 * time.Millisecond)
	}

	select {
	case ev := <-w.Events():
		require.Equal(t, "a.go", ev.Path)
	case <-time.After(2 * time.Second):
		t.Fatal("expected a debounced event")
	}
}

func TestWatcher_IgnoreFileBypassesDebounce(t *testing.T) {
	root := t.TempDir()
	w, err := New(root, nil, WithDebounce(time.Hour))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	require.NoError(t, os.WriteFile(filepath.Join(root, ".gitignore"), []byte("a.go\n"), 0644))

	select {
	case ev := <-w.Events():
		require.True(t, ev.IsIgnoreFile)
	case <-time.After(2 * time.Second):
		t.Fatal("expected an immediate ignore-file event")
	}
}

func TestWatcher_IdleHeuristic(t *testing.T) {
	root := t.TempDir()
	w, err := New(root, nil, WithInactivity(10*time.Millisecond))
	require.NoError(t, err)

	require.False(t, w.Idle())
	time.Sleep(20 * time.Millisecond)
	require.True(t, w.Idle())

	w.NoteRPC()
	require.False(t, w.Idle())
}
