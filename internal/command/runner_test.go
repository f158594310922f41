package command

import (
	"context"
	"os/exec"
	"strings"
	"testing"
)

// TestExecRunnerCapturesOutput runs a trivial shell command when available.
func TestExecRunnerCapturesOutput(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}

	res, err := ExecRunner{}.Run(context.Background(), "sh", "-c", "printf out; printf err >&2; exit 3")
	if err == nil {
		t.Fatal("expected exit error")
	}
	if res.ExitCode != 3 {
		t.Fatalf("exit code = %d, want 3", res.ExitCode)
	}
	if string(res.Stdout) != "out" || res.Stderr != "err" {
		t.Fatalf("stdout=%q stderr=%q", res.Stdout, res.Stderr)
	}
}

// TestNewLogDropsBinaryStdout keeps logs printable for image probes.
func TestNewLogDropsBinaryStdout(t *testing.T) {
	res := Result{Stdout: []byte{0xff, 0xd8}, Stderr: "  warning  ", ExitCode: 0}
	log := NewLog("ffmpeg", []string{"-i", "x"}, res, true)
	if log.Stdout != "" {
		t.Fatalf("stdout = %q, want empty", log.Stdout)
	}
	if log.Stderr != "warning" {
		t.Fatalf("stderr = %q", log.Stderr)
	}
	if log.String() != "ffmpeg -i x" {
		t.Fatalf("string = %q", log.String())
	}
}

// TestNewLogTruncatesStderr bounds very chatty ffmpeg output.
func TestNewLogTruncatesStderr(t *testing.T) {
	res := Result{Stderr: strings.Repeat("x", 5000)}
	log := NewLog("ffmpeg", nil, res, false)
	if len(log.Stderr) != 2003 {
		t.Fatalf("stderr len = %d, want 2003", len(log.Stderr))
	}
}

// TestRunnerFuncDelegates checks the adapter used by fakes.
func TestRunnerFuncDelegates(t *testing.T) {
	var gotName string
	r := RunnerFunc(func(ctx context.Context, name string, args ...string) (Result, error) {
		gotName = name
		return Result{Stdout: []byte("ok")}, nil
	})
	res, err := r.Run(context.Background(), "xrandr", "--listmonitors")
	if err != nil || gotName != "xrandr" || string(res.Stdout) != "ok" {
		t.Fatalf("res=%+v err=%v name=%q", res, err, gotName)
	}
}
