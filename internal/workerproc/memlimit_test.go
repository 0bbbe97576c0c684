package workerproc

import (
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRuntimeFlagStrategyIsNoOp(t *testing.T) {
	cmd := exec.Command("/bin/true", "--expose-gc", "--max-old-space-size=256")
	originalPath := cmd.Path
	originalArgs := append([]string(nil), cmd.Args...)

	err := RuntimeFlagStrategy{}.Apply(cmd, 256)
	require.NoError(t, err)

	assert.Equal(t, originalPath, cmd.Path)
	assert.Equal(t, originalArgs, cmd.Args)
}

func TestRLimitStrategyRewrapsCommand(t *testing.T) {
	cmd := exec.Command("/bin/true", "--expose-gc", "--max-old-space-size=256")

	strategy := RLimitStrategy{PrlimitPath: "/usr/bin/prlimit"}
	err := strategy.Apply(cmd, 256)
	require.NoError(t, err)

	assert.Equal(t, "/usr/bin/prlimit", cmd.Path)
	assert.Equal(t, []string{
		"/usr/bin/prlimit",
		"--as=268435456",
		"/bin/true",
		"--expose-gc",
		"--max-old-space-size=256",
	}, cmd.Args)
}

func TestRLimitStrategyMissingPrlimit(t *testing.T) {
	cmd := exec.Command("/bin/true")
	strategy := RLimitStrategy{PrlimitPath: ""}

	t.Setenv("PATH", t.TempDir())
	err := strategy.Apply(cmd, 128)
	assert.Error(t, err)
}

func TestExitSignalNoProcessState(t *testing.T) {
	cmd := exec.Command("/bin/true")
	assert.Equal(t, "", exitSignal(cmd))
}
