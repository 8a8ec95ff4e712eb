// Package refstore persists opaque byte payloads as annotated git
// references inside the local repository, per spec.md §6: "Try-Pushes
// are stored as annotated references... Indices are also persisted as
// refs." It is the shared primitive underneath internal/trypush and
// internal/index.
//
// A payload is written as an annotated tag object (so it carries a
// message independent of the commit it decorates) whose ref is placed
// directly under refs/<name> rather than refs/tags/<name>, keeping the
// ref path exactly equal to the logical key (a try-push process-name
// or an index key).
package refstore

import (
	"bytes"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// CommandRunner executes git subcommands. Mirrors the teacher's
// internal/git.CommandRunner so tests can substitute a fake.
type CommandRunner interface {
	Run(workDir string, name string, args ...string) (stdout string, err error)
	// RunWithStdin is Run, but feeds stdin to the child process. Used
	// for `git hash-object --stdin`.
	RunWithStdin(workDir string, stdin string, name string, args ...string) (stdout string, err error)
}

// ExecRunner is the default CommandRunner using os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(workDir, name string, args ...string) (string, error) {
	return ExecRunner{}.RunWithStdin(workDir, "", name, args...)
}

func (ExecRunner) RunWithStdin(workDir, stdin, name string, args ...string) (string, error) {
	cmd := exec.Command(name, args...)
	cmd.Dir = workDir
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = strings.TrimSpace(stdout.String())
		}
		if msg == "" {
			msg = err.Error()
		}
		return "", fmt.Errorf("%s %s: %s", name, strings.Join(args, " "), msg)
	}
	return strings.TrimSpace(stdout.String()), nil
}

// Store reads and writes annotated-ref-backed payloads in one repository.
type Store struct {
	repoPath string
	runner   CommandRunner
}

// New creates a Store rooted at repoPath using the real git binary.
func New(repoPath string) *Store {
	return &Store{repoPath: repoPath, runner: ExecRunner{}}
}

// NewWithRunner creates a Store with an injected CommandRunner, for tests.
func NewWithRunner(repoPath string, runner CommandRunner) *Store {
	return &Store{repoPath: repoPath, runner: runner}
}

const tagger = "wpt-sync <wpt-sync@mozilla.com>"

// Write stores payload at refs/<name> as an annotated tag decorating
// HEAD. Overwrites any existing ref of the same name.
func (s *Store) Write(name string, payload []byte) error {
	target, err := s.runner.Run(s.repoPath, "git", "rev-parse", "HEAD")
	if err != nil {
		return fmt.Errorf("resolve HEAD: %w", err)
	}

	tagContent := buildTagObject(target, name, payload)

	sha, err := s.hashObject(tagContent)
	if err != nil {
		return fmt.Errorf("hash tag object for %s: %w", name, err)
	}

	if _, err := s.runner.Run(s.repoPath, "git", "update-ref", "refs/"+name, sha); err != nil {
		return fmt.Errorf("update-ref refs/%s: %w", name, err)
	}
	return nil
}

// Read returns the payload stored at refs/<name>, or (nil, false, nil)
// if the ref does not exist.
func (s *Store) Read(name string) (payload []byte, found bool, err error) {
	out, runErr := s.runner.Run(s.repoPath, "git", "cat-file", "-p", "refs/"+name)
	if runErr != nil {
		// git reports missing refs via non-zero exit; treat as not-found.
		return nil, false, nil
	}

	body := tagBody(out)
	return []byte(body), true, nil
}

// Delete removes refs/<name>. Missing refs are not an error.
func (s *Store) Delete(name string) error {
	_, err := s.runner.Run(s.repoPath, "git", "update-ref", "-d", "refs/"+name)
	// A missing ref still exits non-zero on some git versions; swallow
	// the error rather than surfacing spurious delete failures.
	_ = err
	return nil
}

// List returns the suffixes of every ref under refs/<prefix>/, stripped
// of the "refs/<prefix>/" portion (so callers see bare process-names
// or index keys).
func (s *Store) List(prefix string) ([]string, error) {
	out, err := s.runner.Run(s.repoPath, "git", "for-each-ref", "--format=%(refname)", "refs/"+prefix)
	if err != nil {
		return nil, fmt.Errorf("for-each-ref refs/%s: %w", prefix, err)
	}
	if out == "" {
		return nil, nil
	}

	var names []string
	base := "refs/" + prefix + "/"
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		names = append(names, strings.TrimPrefix(line, base))
	}
	return names, nil
}

func (s *Store) hashObject(content string) (string, error) {
	return s.runner.RunWithStdin(s.repoPath, content, "git", "hash-object", "-t", "tag", "-w", "--stdin")
}

func buildTagObject(target, name string, payload []byte) string {
	now := time.Now()
	var b strings.Builder
	fmt.Fprintf(&b, "object %s\n", target)
	b.WriteString("type commit\n")
	fmt.Fprintf(&b, "tag %s\n", name)
	fmt.Fprintf(&b, "tagger %s %s %s\n\n", tagger, strconv.FormatInt(now.Unix(), 10), now.Format("-0700"))
	b.Write(payload)
	if len(payload) == 0 || payload[len(payload)-1] != '\n' {
		b.WriteString("\n")
	}
	return b.String()
}

// tagBody strips the tag-object header (everything up to the first
// blank line) from `git cat-file -p` output, returning the message body.
func tagBody(catFileOutput string) string {
	idx := strings.Index(catFileOutput, "\n\n")
	if idx == -1 {
		return ""
	}
	return catFileOutput[idx+2:]
}
