package printer

import (
	"bytes"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func capture(t *testing.T) (out, errOut *bytes.Buffer) {
	t.Helper()
	out, errOut = &bytes.Buffer{}, &bytes.Buffer{}
	restore := SetOutput(out, errOut)

	prev := color.NoColor
	color.NoColor = true
	t.Cleanup(func() {
		restore()
		color.NoColor = prev
	})
	return out, errOut
}

func TestError(t *testing.T) {
	t.Run("returns error with title", func(t *testing.T) {
		_, errOut := capture(t)
		err := Error("Test Error", "This is a test error", []string{})
		require.Error(t, err)
		require.Equal(t, "Test Error", err.Error())
		assert.Equal(t, "Test Error\n\nThis is a test error\n", errOut.String())
	})

	t.Run("prints a single suggestion plainly", func(t *testing.T) {
		_, errOut := capture(t)
		err := Error("Test Error", "Explanation", []string{"Try this fix"})
		require.Equal(t, "Test Error", err.Error())
		assert.True(t, strings.HasSuffix(errOut.String(), "\nTry this fix\n"))
	})

	t.Run("numbers multiple suggestions", func(t *testing.T) {
		_, errOut := capture(t)
		err := Error("Test Error", "Explanation", []string{
			"First option",
			"Second option",
		})
		require.Equal(t, "Test Error", err.Error())
		assert.Contains(t, errOut.String(), "Either:\n  1. First option\n  2. Second option\n")
	})
}

func TestErrorWithContext(t *testing.T) {
	t.Run("prints context sorted by key", func(t *testing.T) {
		_, errOut := capture(t)
		context := map[string]string{
			"Tree":  "main",
			"Agent": "scout",
		}
		err := ErrorWithContext("Test Error", "Explanation", context, nil)
		require.Equal(t, "Test Error", err.Error())
		assert.Contains(t, errOut.String(), "  Agent: scout\n  Tree: main\n")
	})

	t.Run("skips empty explanation", func(t *testing.T) {
		_, errOut := capture(t)
		ErrorWithContext("Test Error", "", map[string]string{"Key": "Value"}, []string{"Fix it"})
		assert.Equal(t, "Test Error\n\n\n  Key: Value\n\nFix it\n", errOut.String())
	})
}

func TestMessages(t *testing.T) {
	out, _ := capture(t)

	Success("Tree %s is valid\n", "main")
	Success("✓ already prefixed\n")
	Warning("watch out\n")
	Step("loading\n")
	Info("plain %d\n", 1)

	assert.Equal(t, "✓ Tree main is valid\n✓ already prefixed\n⚠️  watch out\n→ loading\nplain 1\n", out.String())
}

func TestResult(t *testing.T) {
	capture(t)
	for _, r := range []string{"succeeded", "failed", "aborted", "in_progress"} {
		assert.Equal(t, r, Result(r))
	}
}
