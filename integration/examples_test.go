//go:build integration

package integration

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type ExampleSuite struct {
	suite.Suite
	repoRoot string
}

func (s *ExampleSuite) SetupSuite() {
	if os.Getenv("PORTALS_TEST_EXAMPLES") == "" {
		s.T().Skip("set PORTALS_TEST_EXAMPLES=1 to run example integration tests")
	}
	root, err := detectRepoRoot()
	require.NoError(s.T(), err, "locate repository root")
	s.repoRoot = root
}

func (s *ExampleSuite) TestClientBasic() {
	out := s.runExample("examples/client_basic", nil)
	s.Contains(out, `listener got "hello via PutTo/Receive"`)
	s.Contains(out, `sender read "window" from peer window`)
}

func (s *ExampleSuite) TestPutBasic() {
	out := s.runExample("examples/put_basic", []string{"PORTALS_EXAMPLE_COUNT=2"})
	s.Contains(out, `target received "message 1"`)
}

func (s *ExampleSuite) TestTriggeredBasic() {
	out := s.runExample("examples/triggered_basic", []string{"PORTALS_EXAMPLE_THRESHOLD=4"})
	s.Contains(out, "trigger counter at 4/4")
	s.Contains(out, `window holds "released by trigger"`)
}

func (s *ExampleSuite) TestAtomicBasic() {
	out := s.runExample("examples/atomic_basic", []string{"PORTALS_EXAMPLE_OP=PTL_MAX"})
	s.Contains(out, "after PTL_MAX 5: 10")
	s.Contains(out, "compare-and-swap saw 11, counter now 100")
}

func (s *ExampleSuite) runExample(relPath string, extraEnv []string) string {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, "go", "run", "./"+relPath)
	env := os.Environ()
	if len(extraEnv) > 0 {
		env = append(env, extraEnv...)
	}
	cmd.Env = env
	cmd.Dir = s.repoRoot

	output, err := cmd.CombinedOutput()
	if ctx.Err() == context.DeadlineExceeded {
		s.FailNowf("example timeout", "example %s timed out:\n%s", relPath, string(output))
	}
	require.NoErrorf(s.T(), err, "example %s failed:\n%s", relPath, string(output))
	return string(output)
}

func detectRepoRoot() (string, error) {
	root, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		if _, err := os.Stat(filepath.Join(root, "go.mod")); err == nil {
			return root, nil
		}
		next := filepath.Dir(root)
		if next == root {
			return "", fmt.Errorf("could not locate repository root containing go.mod")
		}
		root = next
	}
}

func TestExamples(t *testing.T) {
	suite.Run(t, new(ExampleSuite))
}
