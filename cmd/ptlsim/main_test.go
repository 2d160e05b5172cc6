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

const putGetScenario = "../../internal/scenario/testdata/put_get.yaml"

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestCommandPresence(t *testing.T) {
	cmd := newRootCommand()
	for _, name := range []string{"run", "runs", "codes"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}

	verbose := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verbose)
	assert.Equal(t, "v", verbose.Shorthand)
}

func TestRunPrintsTranscript(t *testing.T) {
	out, err := execute(t, "run", putGetScenario)
	require.NoError(t, err)

	golden, err := os.ReadFile("../../internal/scenario/testdata/golden/put_get.golden")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, string(golden)), "transcript mismatch:\n%s", out)
	assert.Contains(t, out, "ok   put_get\n")
}

func TestRunRecordsJournal(t *testing.T) {
	db := filepath.Join(t.TempDir(), "runs.db")

	out, err := execute(t, "run", "--quiet", "--journal", db, putGetScenario)
	require.NoError(t, err)
	assert.Equal(t, "ok   put_get\n", out)

	out, err = execute(t, "runs", "--journal", db)
	require.NoError(t, err)
	fields := strings.Fields(out)
	require.Len(t, fields, 4)
	assert.Equal(t, "passed", fields[1])
	assert.Equal(t, "put_get", fields[3])

	out, err = execute(t, "runs", "--journal", db, "--show", fields[0])
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "001 b pt_alloc -> PTL_OK pt=0\n"))
}

func TestRunReportsFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`name: bad
processes:
  - name: a
steps:
  - op: pt_alloc
    proc: a
    name: first
    index: 0
  - op: pt_alloc
    proc: a
    name: second
    index: 0
`), 0o600))

	out, err := execute(t, "run", path)
	require.Error(t, err)
	assert.Contains(t, out, "FAIL bad: step 2 (pt_alloc): expected PTL_OK, got PTL_PT_IN_USE")
}

func TestRunRejectsMissingFile(t *testing.T) {
	_, err := execute(t, "run", filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestRunsRequiresJournal(t *testing.T) {
	_, err := execute(t, "runs")
	require.Error(t, err)
}

func TestCodesListsNames(t *testing.T) {
	out, err := execute(t, "codes")
	require.NoError(t, err)
	assert.Contains(t, out, "PTL_OK")
	assert.Contains(t, out, "PTL_EQ_DROPPED")
	assert.Contains(t, out, "PTL_EVENT_ACK")
	assert.Contains(t, out, "PTL_NI_DROPPED")
}
