package workerproc

// ============================================================================
// WorkerHandle Test File
// Purpose: Verify spawn, INIT handshake, WORK dispatch, and exit reporting
// against a real child process (a small shell fixture implementing the wire
// protocol), since a Go worker can be an arbitrary external program.
// ============================================================================

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/chuliyu/poolmanager/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeFixtureWorker writes a shell script implementing just enough of the
// wire protocol to exercise Spawn/Send/readLoop/waitLoop: it replies
// INIT_DONE to INIT, WORK_DONE to WORK, and exits 0 on TERMINATE.
func writeFixtureWorker(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "fixture-worker.sh")
	script := `#!/bin/sh
while IFS= read -r line; do
  id=$(printf '%s' "$line" | sed -n 's/.*"id":"\([^"]*\)".*/\1/p')
  case "$line" in
    *'"type":"INIT"'*)
      printf '{"id":"%s","type":"INIT_DONE","ok":true,"data":{"pid":%d}}\n' "$id" "$$"
      ;;
    *'"type":"WORK"'*)
      printf '{"id":"%s","type":"WORK_DONE","ok":true,"data":null}\n' "$id"
      ;;
    *'"type":"TERMINATE"'*)
      exit 0
      ;;
  esac
done
`
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func writeCrashingWorker(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "crashing-worker.sh")
	script := `#!/bin/sh
read -r line
exit 7
`
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func TestSpawnInitHandshake(t *testing.T) {
	script := writeFixtureWorker(t)
	eventsCh := make(chan Event, 16)

	h, err := Spawn(context.Background(), script, "pool-a", 512, RuntimeFlagStrategy{}, nil, eventsCh)
	require.NoError(t, err)
	require.NotZero(t, h.PID)
	assert.Equal(t, "pool-a", h.PoolName)
	assert.Equal(t, StateStarting, h.State)

	h.Send(protocol.Task{ID: "init-1", Type: protocol.Init})

	select {
	case ev := <-eventsCh:
		require.NotNil(t, ev.Reply)
		assert.Equal(t, protocol.TaskID("init-1"), ev.Reply.ID)
		assert.Equal(t, protocol.InitDone, ev.Reply.Type)
		assert.True(t, ev.Reply.OK)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for INIT_DONE")
	}

	h.Send(protocol.Task{ID: "term-1", Type: protocol.Terminate})
	waitForExitEvent(t, eventsCh, h.PID)
	h.Close()
	h.Wait()
}

func TestSpawnWorkRoundTrip(t *testing.T) {
	script := writeFixtureWorker(t)
	eventsCh := make(chan Event, 16)

	h, err := Spawn(context.Background(), script, "pool-a", 512, RuntimeFlagStrategy{}, nil, eventsCh)
	require.NoError(t, err)
	defer func() {
		h.Send(protocol.Task{ID: "term", Type: protocol.Terminate})
		waitForExitEvent(t, eventsCh, h.PID)
		h.Close()
		h.Wait()
	}()

	h.Send(protocol.Task{ID: "init", Type: protocol.Init})
	drainReply(t, eventsCh, "init")

	h.Send(protocol.Task{ID: "work-1", Type: protocol.Work})
	reply := drainReply(t, eventsCh, "work-1")
	assert.Equal(t, protocol.WorkDone, reply.Type)
	assert.True(t, reply.OK)
}

func TestSpawnReportsAbnormalExit(t *testing.T) {
	script := writeCrashingWorker(t)
	eventsCh := make(chan Event, 16)

	h, err := Spawn(context.Background(), script, "pool-a", 512, RuntimeFlagStrategy{}, nil, eventsCh)
	require.NoError(t, err)

	h.Send(protocol.Task{ID: "work-1", Type: protocol.Work})

	select {
	case ev := <-eventsCh:
		require.NotNil(t, ev.Exit)
		assert.Equal(t, 7, ev.Exit.Code)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for exit event")
	}
	h.Close()
	h.Wait()
}

func drainReply(t *testing.T, eventsCh chan Event, wantID protocol.TaskID) protocol.Reply {
	t.Helper()
	select {
	case ev := <-eventsCh:
		require.NotNil(t, ev.Reply)
		require.Equal(t, wantID, ev.Reply.ID)
		return *ev.Reply
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for reply to %s", wantID)
	}
	return protocol.Reply{}
}

func waitForExitEvent(t *testing.T, eventsCh chan Event, pid int) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-eventsCh:
			if ev.Exit != nil && ev.PID == pid {
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for process exit")
		}
	}
}
