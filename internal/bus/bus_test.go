package bus

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPidManagerBasics(t *testing.T) {
	testPidManager := &pidManager{
		path: filepath.Join(t.TempDir(), PidName),
	}

	t.Run("create and remove PID file", func(t *testing.T) {
		require.NoError(t, testPidManager.create())

		pidData, err := os.ReadFile(testPidManager.path)
		require.NoError(t, err)
		assert.Equal(t, strconv.Itoa(os.Getpid()), string(pidData))

		require.NoError(t, testPidManager.remove())
		_, err = os.Stat(testPidManager.path)
		assert.True(t, os.IsNotExist(err), "PID file should not exist after removal")
	})

	t.Run("remove twice is fine", func(t *testing.T) {
		assert.NoError(t, testPidManager.remove())
	})

	t.Run("checkExisting with no PID file", func(t *testing.T) {
		assert.NoError(t, testPidManager.checkExisting())
	})

	t.Run("checkExisting with current process", func(t *testing.T) {
		require.NoError(t, testPidManager.create())
		defer testPidManager.remove()

		err := testPidManager.checkExisting()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "already running")
	})

	for name, content := range map[string]string{
		"stale":   "99999999",
		"invalid": "not-a-pid",
	} {
		t.Run("checkExisting with "+name+" PID file", func(t *testing.T) {
			require.NoError(t, os.WriteFile(testPidManager.path, []byte(content), 0o600))

			assert.NoError(t, testPidManager.checkExisting())
			_, err := os.Stat(testPidManager.path)
			assert.True(t, os.IsNotExist(err), "%s PID file should be removed", name)
		})
	}
}

func TestIsProcessAlive(t *testing.T) {
	pm := &pidManager{}
	assert.True(t, pm.isProcessAlive(os.Getpid()))
	assert.False(t, pm.isProcessAlive(99999999))
}

// serve answers each command with reply(cmd) until the listener closes.
func serve(ln net.Listener, reply func(cmd byte) string) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		go func(c net.Conn) {
			defer c.Close()
			line, err := bufio.NewReader(c).ReadString('\n')
			if err != nil || len(line) == 0 {
				return
			}
			fmt.Fprint(c, reply(line[0]))
		}(conn)
	}
}

func TestSocketManager(t *testing.T) {
	sm := &socketManager{path: filepath.Join(t.TempDir(), SockName)}

	t.Run("dial without listener", func(t *testing.T) {
		_, err := sm.dial()
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrDaemonNotRunning))
	})

	ln, err := sm.listen()
	require.NoError(t, err)
	defer ln.Close()

	go serve(ln, func(cmd byte) string {
		switch cmd {
		case CmdToggle:
			return "OK armed session=abc\n"
		case CmdStatus:
			return "STATUS armed=false online=true queued=2\n"
		case CmdVersion:
			return fmt.Sprintf("STATUS proto=%s\n", ProtoVer)
		case CmdQuit:
			return "OK quitting\n"
		default:
			return fmt.Sprintf("ERR unknown=%q\n", cmd)
		}
	})

	tests := []struct {
		cmd      byte
		expected string
	}{
		{CmdToggle, "OK armed session=abc\n"},
		{CmdStatus, "STATUS armed=false online=true queued=2\n"},
		{CmdVersion, fmt.Sprintf("STATUS proto=%s\n", ProtoVer)},
		{CmdQuit, "OK quitting\n"},
		{'x', "ERR unknown='x'\n"},
	}
	for _, tt := range tests {
		t.Run(string(tt.cmd), func(t *testing.T) {
			resp, err := sm.send(tt.cmd)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, resp)
		})
	}

	t.Run("listen replaces stale socket", func(t *testing.T) {
		other := &socketManager{path: filepath.Join(t.TempDir(), SockName)}
		require.NoError(t, os.WriteFile(other.path, []byte("stale"), 0o600))
		ln2, err := other.listen()
		require.NoError(t, err)
		ln2.Close()
	})
}

func TestParseResponse(t *testing.T) {
	tests := []struct {
		line     string
		kind     string
		expected map[string]string
	}{
		{"STATUS armed=true queued=3\n", "STATUS", map[string]string{"armed": "true", "queued": "3"}},
		{"OK quitting\n", "OK", map[string]string{"quitting": ""}},
		{"ERR\n", "ERR", map[string]string{}},
		{"", "", nil},
	}
	for _, tt := range tests {
		kind, kv := ParseResponse(tt.line)
		assert.Equal(t, tt.kind, kind, tt.line)
		assert.Equal(t, tt.expected, kv, tt.line)
	}
}

func TestFormatFields(t *testing.T) {
	line := FormatFields("STATUS", []string{"b", "a"}, map[string]string{"a": "1", "b": "2"})
	assert.Equal(t, "STATUS b=2 a=1\n", line)

	kind, kv := ParseResponse(line)
	assert.Equal(t, "STATUS", kind)
	assert.Equal(t, map[string]string{"a": "1", "b": "2"}, kv)
}

func TestPathFunctions(t *testing.T) {
	t.Setenv("XDG_CACHE_HOME", t.TempDir())

	sp, err := SockPath()
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(sp))
	assert.Equal(t, SockName, filepath.Base(sp))
	assert.Equal(t, "livescribe", filepath.Base(filepath.Dir(sp)))

	pp, err := PidPath()
	require.NoError(t, err)
	assert.Equal(t, PidName, filepath.Base(pp))
}

func TestPublicPidLifecycle(t *testing.T) {
	t.Setenv("XDG_CACHE_HOME", t.TempDir())

	require.NoError(t, CheckExistingDaemon())
	require.NoError(t, CreatePidFile())

	pidPath, err := PidPath()
	require.NoError(t, err)
	_, err = os.Stat(pidPath)
	require.NoError(t, err)

	assert.Error(t, CheckExistingDaemon())
	require.NoError(t, RemovePidFile())
	assert.NoError(t, CheckExistingDaemon())
}
