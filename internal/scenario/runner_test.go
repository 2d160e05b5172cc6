package scenario

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestGoldenTranscripts(t *testing.T) {
	files, err := filepath.Glob("testdata/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, files)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	for _, file := range files {
		sc, err := Load(file)
		require.NoError(t, err, file)
		t.Run(sc.Name, func(t *testing.T) {
			res, err := Run(context.Background(), sc)
			require.NoError(t, err, "transcript so far:\n%s", res.Transcript())
			g.Assert(t, sc.Name, []byte(res.Transcript()))
		})
	}
}

func TestRunStreamsToSink(t *testing.T) {
	sc, err := Load("testdata/put_get.yaml")
	require.NoError(t, err)

	var seqs []int
	var lines []string
	res, err := Run(context.Background(), sc, WithSink(func(seq int, line string) error {
		seqs = append(seqs, seq)
		lines = append(lines, line)
		return nil
	}))
	require.NoError(t, err)
	require.Equal(t, res.Lines, lines)
	for i, seq := range seqs {
		require.Equal(t, i+1, seq)
	}
}

func TestRunReportsUnexpectedCode(t *testing.T) {
	sc, err := Parse(strings.NewReader(`
name: mismatch
processes: [{name: a}]
steps:
  - {op: pt_alloc, proc: a, name: pt0}
  - {op: pt_alloc, proc: a, index: 0}
  - {op: pt_alloc, proc: a, index: 1}
`))
	require.NoError(t, err)

	res, err := Run(context.Background(), sc)
	var mismatch *ExpectationError
	require.ErrorAs(t, err, &mismatch)
	require.Equal(t, 2, mismatch.Step)
	require.Equal(t, "PTL_OK", mismatch.Want)
	require.Equal(t, "PTL_PT_IN_USE", mismatch.Got)
	require.Equal(t, []string{
		"001 a pt_alloc -> PTL_OK pt=0",
		"002 a pt_alloc -> PTL_PT_IN_USE",
	}, res.Lines)
}

func TestRunReportsTriggerRegisters(t *testing.T) {
	sc, err := Parse(strings.NewReader(`
name: registers
processes: [{name: a}]
steps:
  - {op: ct_alloc, proc: a, name: trig}
  - {op: ct_alloc, proc: a, name: out}
  - {op: triggered_ct_inc, proc: a, name: out, success: 1, trigger: trig, threshold: 1}
  - {op: ct_inc, proc: a, name: trig, success: 1}
  - {op: ct_wait, proc: a, name: out, test: 1}
  - {op: status, proc: a, register: triggered_fired}
  - {op: status, proc: a, register: triggered_failures}
`))
	require.NoError(t, err)

	res, err := Run(context.Background(), sc)
	require.NoError(t, err)
	require.Equal(t, "006 a status -> PTL_OK triggered_fired=1", res.Lines[5])
	require.Equal(t, "007 a status -> PTL_OK triggered_failures=0", res.Lines[6])
}

func TestRunRejectsUnknownReferences(t *testing.T) {
	cases := map[string]string{
		"object":   `{op: md_release, proc: a, name: nothing}`,
		"option":   `{op: pt_alloc, proc: a, options: [turbo]}`,
		"list":     `{op: me_append, proc: a, index: 0, list: sideways}`,
		"ack":      `{op: put, proc: a, md: m, index: 0, ack: maybe}`,
		"register": `{op: status, proc: a, register: mood}`,
		"atomic":   `{op: atomic, proc: a, md: m, index: 0, atomic_op: PTL_PLUS}`,
	}
	for name, step := range cases {
		t.Run(name, func(t *testing.T) {
			sc, err := Parse(strings.NewReader(`
name: refs
processes: [{name: a}]
steps:
  - {op: pt_alloc, proc: a}
  - {op: md_bind, proc: a, name: m, size: 8}
  - ` + step + `
`))
			require.NoError(t, err)
			_, err = Run(context.Background(), sc)
			require.ErrorIs(t, err, ErrInvalid)
		})
	}
}

func TestRunLogicalInterfaces(t *testing.T) {
	sc, err := Parse(strings.NewReader(`
name: logical
processes:
  - {name: a, logical: true}
  - {name: b, logical: true}
steps:
  - {op: pt_alloc, proc: b, name: pt0}
  - {op: me_append, proc: b, pt: pt0, size: 8, target: a, options: [op_put, event_link_disable]}
  - {op: md_bind, proc: a, name: m, data: ranked}
  - {op: put, proc: a, md: m, target: b, pt: pt0}
  - {op: eq_drain, proc: a, count: 2}
  - {op: eq_drain, proc: b}
`))
	require.NoError(t, err)

	res, err := Run(context.Background(), sc)
	require.NoError(t, err)
	require.Contains(t, res.Lines, "    a PTL_EVENT_ACK pt=0 mlength=6 offset=0 rank=1")
	require.Contains(t, res.Lines, "    b PTL_EVENT_PUT pt=0 list=0 match=0x0 rlength=6 mlength=6 offset=0 hdr=0x0 uid=0 rank=0")
}

func TestRunNonMatchingInterfaces(t *testing.T) {
	sc, err := Parse(strings.NewReader(`
name: non_matching
processes:
  - {name: a, non_matching: true}
steps:
  - {op: pt_alloc, proc: a, name: pt0}
  - {op: me_append, proc: a, name: le, pt: pt0, size: 8, options: [op_put, event_link_disable]}
  - {op: md_bind, proc: a, name: m, data: "any", options: [event_send_disable]}
  - {op: put, proc: a, md: m, pt: pt0, match_bits: 0xff, ack: none}
  - {op: dump, proc: a, name: le, length: 3}
  - {op: me_unlink, proc: a, name: le}
`))
	require.NoError(t, err)

	res, err := Run(context.Background(), sc)
	require.NoError(t, err)
	require.Equal(t, `005 a dump -> PTL_OK text="any"`, res.Lines[4])
}

func TestRunCounterWaitTimesOut(t *testing.T) {
	sc, err := Parse(strings.NewReader(`
name: timeout
processes: [{name: a}]
steps:
  - {op: ct_alloc, proc: a, name: c}
  - {op: ct_wait, proc: a, name: c, test: 1, expect: PTL_INTERRUPTED}
`))
	require.NoError(t, err)

	start := time.Now()
	_, err = Run(context.Background(), sc, WithWaitTimeout(20*time.Millisecond))
	require.NoError(t, err)
	require.Less(t, time.Since(start), time.Second)
}

func TestRunPassesLogger(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	sc, err := Load("testdata/triggered.yaml")
	require.NoError(t, err)

	_, err = Run(context.Background(), sc, WithLogger(zap.New(core)))
	require.NoError(t, err)
	require.NotZero(t, logs.FilterField(zap.String("process", "a")).Len())
}

func TestRunHonoursContext(t *testing.T) {
	sc, err := Load("testdata/put_get.yaml")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := Run(ctx, sc)
	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, res.Lines)
}
