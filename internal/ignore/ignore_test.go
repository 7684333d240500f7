// Copyright 2025 KrakLabs
// SPDX-License-Identifier: AGPL-3.0-or-later

package ignore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEngine_DefaultsExcludeVendor(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "vendor", "pkg"), 0755))

	e, err := New(root)
	require.NoError(t, err)

	require.True(t, e.ShouldIgnore("vendor/pkg/lib.go"))
	require.False(t, e.ShouldIgnore("main.go"))
}

func TestEngine_RepoSpecificOverridesGit(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, ".gitignore"), []byte("generated/\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, RepoIgnoreFilename), []byte("!generated/keep.go\n"), 0644))

	e, err := New(root)
	require.NoError(t, err)

	require.True(t, e.ShouldIgnore("generated/other.go"))
	require.False(t, e.ShouldIgnore("generated/keep.go"))
}

func TestEngine_NotifyChangedRecompiles(t *testing.T) {
	root := t.TempDir()
	giPath := filepath.Join(root, ".gitignore")
	require.NoError(t, os.WriteFile(giPath, []byte("a.go\n"), 0644))

	e, err := New(root)
	require.NoError(t, err)
	require.True(t, e.ShouldIgnore("a.go"))

	require.NoError(t, os.WriteFile(giPath, []byte("b.go\n"), 0644))
	e.NotifyChanged(giPath)

	require.False(t, e.ShouldIgnore("a.go"))
	require.True(t, e.ShouldIgnore("b.go"))
}
