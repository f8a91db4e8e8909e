package pathutil

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestValidator(t *testing.T) *Validator {
	t.Helper()
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/usr/bin", 0o755))
	require.NoError(t, afero.WriteFile(fs, "/usr/bin/gdb", []byte("#!/bin/sh\n"), 0o755))
	require.NoError(t, afero.WriteFile(fs, "/work/a.out", []byte{0x7f, 'E', 'L', 'F'}, 0o755))
	return NewValidator(fs)
}

func TestIsRegularFile(t *testing.T) {
	v := newTestValidator(t)

	assert.True(t, v.IsRegularFile("/usr/bin/gdb"))
	assert.True(t, v.IsRegularFile("/work/a.out"))
	assert.False(t, v.IsRegularFile("/usr/bin"), "directories are not regular files")
	assert.False(t, v.IsRegularFile("/usr/bin/lldb"))
	assert.False(t, v.IsRegularFile(""))
}

func TestIsExecutableRef(t *testing.T) {
	v := newTestValidator(t)

	assert.True(t, v.IsExecutableRef("gdb", "gdb"), "bare name is left to PATH")
	assert.True(t, v.IsExecutableRef("/usr/bin/gdb", "gdb"))
	assert.False(t, v.IsExecutableRef("gdb-multiarch", "gdb"))
	assert.False(t, v.IsExecutableRef("", ""))
	assert.False(t, v.IsExecutableRef("/opt/gdb", "gdb"))
}
