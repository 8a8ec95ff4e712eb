package refstore

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRunner is an in-memory CommandRunner good enough to exercise
// Store without invoking a real git binary.
type fakeRunner struct {
	objects map[string]string // sha -> content
	refs    map[string]string // refname -> sha
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{objects: map[string]string{}, refs: map[string]string{}}
}

func (f *fakeRunner) Run(workDir, name string, args ...string) (string, error) {
	return f.RunWithStdin(workDir, "", name, args...)
}

func (f *fakeRunner) RunWithStdin(workDir, stdin, name string, args ...string) (string, error) {
	if name != "git" {
		return "", fmt.Errorf("unexpected command %s", name)
	}
	switch args[0] {
	case "rev-parse":
		return "deadbeefdeadbeefdeadbeefdeadbeefdeadbeef", nil
	case "hash-object":
		sha := fmt.Sprintf("sha-%d", len(f.objects))
		f.objects[sha] = stdin
		return sha, nil
	case "update-ref":
		if args[1] == "-d" {
			delete(f.refs, args[2])
			return "", nil
		}
		f.refs[args[1]] = args[2]
		return "", nil
	case "cat-file":
		sha, ok := f.refs[args[2]]
		if !ok {
			return "", fmt.Errorf("ref not found")
		}
		return f.objects[sha], nil
	case "for-each-ref":
		prefix := args[len(args)-1]
		var lines []string
		for ref := range f.refs {
			if strings.HasPrefix(ref, prefix) {
				lines = append(lines, ref)
			}
		}
		return strings.Join(lines, "\n"), nil
	}
	return "", fmt.Errorf("unhandled git subcommand %v", args)
}

func TestWriteReadRoundTrip(t *testing.T) {
	runner := newFakeRunner()
	s := NewWithRunner("/repo", runner)

	require.NoError(t, s.Write("try/wpt/1/1", []byte("status: open")))

	got, found, err := s.Read("try/wpt/1/1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "status: open\n", string(got))
}

func TestWriteOverwritesExistingRef(t *testing.T) {
	runner := newFakeRunner()
	s := NewWithRunner("/repo", runner)

	require.NoError(t, s.Write("try/wpt/1/1", []byte("status: open")))
	require.NoError(t, s.Write("try/wpt/1/1", []byte("status: complete")))

	got, found, err := s.Read("try/wpt/1/1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "status: complete\n", string(got))
}

func TestDeleteIsIdempotentOnMissingRef(t *testing.T) {
	runner := newFakeRunner()
	s := NewWithRunner("/repo", runner)

	err := s.Delete("try/wpt/1/1")
	require.NoError(t, err)
}

func TestListStripsPrefix(t *testing.T) {
	runner := newFakeRunner()
	runner.refs["refs/try/wpt/1/1"] = "sha-a"
	runner.refs["refs/try/wpt/1/2"] = "sha-b"
	runner.refs["refs/other/x"] = "sha-c"

	s := NewWithRunner("/repo", runner)
	names, err := s.List("try/wpt/1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"1", "2"}, names)
}

func TestReadMissingRefReportsNotFound(t *testing.T) {
	runner := newFakeRunner()
	s := NewWithRunner("/repo", runner)

	_, found, err := s.Read("try/wpt/1/1")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestTagBodyParsesHeaderlessMessage(t *testing.T) {
	out := "object abc\ntype commit\ntag try/wpt/1/1\ntagger x 1 +0000\n\nstatus: open\n"
	assert.Equal(t, "status: open\n", tagBody(out))
}

func TestBuildTagObjectEndsWithNewline(t *testing.T) {
	content := buildTagObject("abc123", "try/wpt/1/1", []byte("status: open"))
	assert.True(t, strings.HasSuffix(content, "status: open\n"))
	assert.Contains(t, content, "tag try/wpt/1/1\n")
}
