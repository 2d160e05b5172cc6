package scenario

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseRejectsUnknownFields(t *testing.T) {
	_, err := Parse(strings.NewReader(`
name: typo
processes:
  - name: a
steps:
  - {op: pt_alloc, proc: a, indx: 3}
`))
	require.Error(t, err)
	require.Contains(t, err.Error(), "indx")
}

func TestParseValidates(t *testing.T) {
	cases := map[string]string{
		"missing name": `
processes: [{name: a}]
`,
		"no processes": `
name: empty
`,
		"duplicate process": `
name: dup
processes: [{name: a}, {name: a}]
`,
		"unknown op": `
name: op
processes: [{name: a}]
steps: [{op: pt_explode, proc: a}]
`,
		"unknown process": `
name: proc
processes: [{name: a}]
steps: [{op: pt_alloc, proc: z}]
`,
		"unknown target": `
name: target
processes: [{name: a}]
steps: [{op: put, proc: a, target: z}]
`,
		"data and words": `
name: init
processes: [{name: a}]
steps: [{op: md_bind, proc: a, data: x, words: [1]}]
`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(doc))
			require.ErrorIs(t, err, ErrInvalid)
		})
	}
}

func TestLoadTestdata(t *testing.T) {
	sc, err := Load("testdata/put_get.yaml")
	require.NoError(t, err)
	require.Equal(t, "put_get", sc.Name)
	require.Len(t, sc.Processes, 2)
	require.Equal(t, OpPTAlloc, sc.Steps[0].Op)
	require.Equal(t, uint64(0x2a), sc.Steps[3].HdrData)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("testdata/does-not-exist.yaml")
	require.Error(t, err)
}
