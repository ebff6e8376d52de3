// Package shutdown handles fatal-error exits and signal-driven teardown.
// Fatal exits leave two artifacts under the data path: a human-readable
// crash dump (state/crash) and a machine-readable abort request
// (state/abort) that points at it, so a supervisor restarting hearth can
// tell a crash from an operator-requested stop.
package shutdown

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"hearth/pkg/logger"
)

type exitRequest struct {
	Time      string            `json:"time"`
	Reason    string            `json:"reason"`
	Cmd       string            `json:"cmd"`
	CrashPath string            `json:"crash_path,omitempty"`
	Meta      map[string]string `json:"meta,omitempty"`
}

func crashDirs(dbPath string) (string, string) {
	if dbPath == "" {
		return "./crash", "./abort"
	}
	return filepath.Join(dbPath, "state", "crash"), filepath.Join(dbPath, "state", "abort")
}

// Abort writes crash diagnostics for an unrecoverable error and exits.
// The countdown gives the logger and the dump writer time to reach disk
// before the process dies.
func Abort(contextMsg string, err error, dbPath string, delaySeconds ...int) {
	delay := 10
	if len(delaySeconds) > 0 && delaySeconds[0] >= 0 {
		delay = delaySeconds[0]
	}
	logger.Error("startup_fatal", "msg", contextMsg, "error", err)
	dumpPath, reqPath, derr := AbortWithDiagnostics(dbPath, contextMsg, err)
	if derr != nil {
		logger.Error("abort_with_diagnostics_failed", "error", derr)
		fmt.Fprintf(os.Stderr, "FAILED TO WRITE CRASH DUMP: %v\n", derr)
	} else {
		logger.Info("wrote_crash_dump", "path", dumpPath, "request", reqPath)
		fmt.Fprintf(os.Stderr, "CRASH DUMP WRITTEN: %s\n", dumpPath)
	}
	for i := delay; i > 0; i-- {
		logger.Info("exiting_in_seconds", "seconds", i)
		time.Sleep(1 * time.Second)
	}
	os.Exit(2)
}

// AbortWithDiagnostics writes the crash dump and the abort request that
// references it. Both land via temp-file-then-rename so a half-written
// dump is never mistaken for a complete one.
func AbortWithDiagnostics(dbPath, reason string, err error) (string, string, error) {
	crashDir, abortDir := crashDirs(dbPath)
	if e := os.MkdirAll(crashDir, 0o700); e != nil {
		return "", "", fmt.Errorf("failed to create crash dir: %w", e)
	}
	if e := os.MkdirAll(abortDir, 0o700); e != nil {
		return "", "", fmt.Errorf("failed to create abort dir: %w", e)
	}

	ts := time.Now().UnixNano()
	dumpPath := filepath.Join(crashDir, fmt.Sprintf("crash-%d.log", ts))

	f, ferr := os.CreateTemp(crashDir, ".crash-*.tmp")
	if ferr != nil {
		return "", "", fmt.Errorf("failed to create temp crash file: %w", ferr)
	}
	tmpName := f.Name()
	defer func() { _ = os.Remove(tmpName) }()

	fmt.Fprintf(f, "service: hearth\n")
	fmt.Fprintf(f, "time: %s\n", time.Now().UTC().Format(time.RFC3339))
	fmt.Fprintf(f, "store: %s\n", dbPath)
	fmt.Fprintf(f, "reason: %s\n", reason)
	fmt.Fprintf(f, "error: %v\n", err)
	fmt.Fprintf(f, "\n--- environ ---\n")
	for _, e := range os.Environ() {
		fmt.Fprintln(f, e)
	}
	fmt.Fprintf(f, "\n--- goroutine stacks ---\n")
	buf := make([]byte, 1<<20)
	n := runtime.Stack(buf, true)
	f.Write(buf[:n])
	f.Sync()
	f.Close()

	if err := os.Rename(tmpName, dumpPath); err != nil {
		return "", "", fmt.Errorf("failed to move crash dump into place: %w", err)
	}
	_ = os.Chmod(dumpPath, 0o600)

	req := exitRequest{
		Time:      time.Now().UTC().Format(time.RFC3339),
		Reason:    reason,
		Cmd:       "crash",
		CrashPath: dumpPath,
		Meta: map[string]string{
			"service": "hearth",
			"store":   dbPath,
			"pid":     fmt.Sprintf("%d", os.Getpid()),
		},
	}
	reqPath, rerr := writeExitRequest(abortDir, ts, req)
	if rerr != nil {
		return dumpPath, "", rerr
	}
	return dumpPath, reqPath, nil
}

// RequestExitFile writes an operator-requested abort (no crash dump) and
// returns its path.
func RequestExitFile(dbPath, reason string) (string, error) {
	_, abortDir := crashDirs(dbPath)
	if err := os.MkdirAll(abortDir, 0o700); err != nil {
		return "", err
	}
	req := exitRequest{
		Time:   time.Now().UTC().Format(time.RFC3339),
		Reason: reason,
		Cmd:    "abort",
		Meta: map[string]string{
			"service": "hearth",
			"store":   dbPath,
			"pid":     fmt.Sprintf("%d", os.Getpid()),
		},
	}
	return writeExitRequest(abortDir, time.Now().UnixNano(), req)
}

func writeExitRequest(abortDir string, ts int64, req exitRequest) (string, error) {
	tmp, err := os.CreateTemp(abortDir, ".req-*.tmp")
	if err != nil {
		return "", fmt.Errorf("failed to create temp req file: %w", err)
	}
	name := tmp.Name()
	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	if err := enc.Encode(req); err != nil {
		tmp.Close()
		_ = os.Remove(name)
		return "", fmt.Errorf("failed to encode req: %w", err)
	}
	tmp.Sync()
	tmp.Close()

	reqPath := filepath.Join(abortDir, fmt.Sprintf("req-%d.json", ts))
	if err := os.Rename(name, reqPath); err != nil {
		_ = os.Remove(name)
		return "", fmt.Errorf("failed to move req into place: %w", err)
	}
	_ = os.Chmod(reqPath, 0o600)
	return reqPath, nil
}

// SetupSignalHandler returns a context cancelled on SIGINT or SIGTERM. A
// SIGPIPE additionally dumps goroutine stacks to the log before cancelling,
// since it usually means the websocket or fasthttp listener lost its socket.
func SetupSignalHandler(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		s := <-sigc
		logger.Info("signal_received", "signal", s.String(), "msg", "shutdown requested")
		cancel()
	}()

	sigpipe := make(chan os.Signal, 1)
	signal.Notify(sigpipe, syscall.SIGPIPE)
	go func() {
		s := <-sigpipe
		logger.Info("signal_received", "signal", s.String(), "msg", "SIGPIPE - dumping goroutine stacks")
		buf := make([]byte, 1<<20)
		n := runtime.Stack(buf, true)
		logger.Info("goroutine_stack_dump", "dump", string(buf[:n]))
		cancel()
	}()

	return ctx, cancel
}
