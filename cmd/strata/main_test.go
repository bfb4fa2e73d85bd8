package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const objectGraph = `module @e2e {
  class @Root {
    slot count : int
    method forward = @Root.forward
  }
  init {
    %0 = const.int {value = 0} : int
    %1 = obj.new(%0) {class = @Root, slots = ["count"]} : !obj<"Root">
  }
  func private @Root.forward(%self: !obj<"Root">) -> int {
    %0 = obj.get_slot(%self) {name = "count"} : int
    func.return(%0)
  }
}`

func writeInput(t *testing.T, dir, source string) string {
	t.Helper()
	path := filepath.Join(dir, "model.sir")
	require.NoError(t, os.WriteFile(path, []byte(source), 0o644))
	return path
}

func TestRunUsesNearestConfig(t *testing.T) {
	dir := t.TempDir()
	input := writeInput(t, dir, objectGraph)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "strata.yaml"), []byte("pipeline: globalize-object-graph\n"), 0o644))

	var stdout, stderr bytes.Buffer
	code := run([]string{input}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())

	assert.Contains(t, stdout.String(), "global @count : int = %0")
	assert.NotContains(t, stdout.String(), "obj.")
	assert.Contains(t, stderr.String(), "Successfully processed")
}

func TestRunWritesOutputFile(t *testing.T) {
	dir := t.TempDir()
	input := writeInput(t, dir, objectGraph)
	output := filepath.Join(dir, "out.sir")

	var stdout, stderr bytes.Buffer
	code := run([]string{"-pipeline", "globalize-object-graph,inline-global-slots", "-o", output, input}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())
	assert.Empty(t, stdout.String())

	written, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Contains(t, string(written), "const.int")
	assert.NotContains(t, string(written), "global @count")
}

func TestRunReportsParseErrors(t *testing.T) {
	input := writeInput(t, t.TempDir(), "module @m {\n  func @f( {\n}")

	var stdout, stderr bytes.Buffer
	code := run([]string{"-pipeline", "verify-backend-contract", input}, &stdout, &stderr)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "E0100")
	assert.Empty(t, stdout.String())
}

func TestRunReportsPassFailures(t *testing.T) {
	input := writeInput(t, t.TempDir(), `module @m {
  func public @f(%x: tensor<[2],f32>) -> tensor<[2],f32> {
    %0 = aten.relu_(%x) : tensor<[2],f32>
    func.return(%0)
  }
}`)

	var stdout, stderr bytes.Buffer
	code := run([]string{"-pipeline", "verify-backend-contract", input}, &stdout, &stderr)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "E0705")
	assert.Contains(t, stderr.String(), "verify-backend-contract failed")
}

func TestRunRejectsBadPipeline(t *testing.T) {
	input := writeInput(t, t.TempDir(), objectGraph)

	var stdout, stderr bytes.Buffer
	code := run([]string{"-pipeline", "globalize-object-graph,fold-everything", input}, &stdout, &stderr)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "unknown pass fold-everything")
}

func TestRunListPasses(t *testing.T) {
	var stdout, stderr bytes.Buffer
	assert.Equal(t, 0, run([]string{"-list-passes"}, &stdout, &stderr))
	assert.Contains(t, stdout.String(), "lower-to-backend-contract")
	assert.Contains(t, stdout.String(), "adjust-calling-conventions")
}

func TestRunUsage(t *testing.T) {
	var stdout, stderr bytes.Buffer
	assert.Equal(t, 2, run(nil, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "Usage: strata")
}

func TestRunInteractive(t *testing.T) {
	input := writeInput(t, t.TempDir(), objectGraph)
	stdin = strings.NewReader("run globalize-object-graph\nprint\nquit\n")
	t.Cleanup(func() { stdin = os.Stdin })

	var stdout, stderr bytes.Buffer
	code := run([]string{"-i", input}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())
	assert.Contains(t, stdout.String(), "global @count : int = %0")
}
