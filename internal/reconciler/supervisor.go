package reconciler

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"syscall"
	"time"
)

// ChildEnv marks a process as the supervised reconciler child. The parent
// re-execs its own binary with this set; everything else about the
// environment is inherited.
const ChildEnv = "ORDERSOCKET_CHILD"

// IsChild reports whether this process was spawned by Supervise.
func IsChild() bool {
	return os.Getenv(ChildEnv) == "1"
}

// Supervise re-execs the current binary as a child and restarts it per the
// exit-code contract: 0 restarts immediately (the child wants fresh
// credentials), anything else restarts after backoff. Returns when ctx is
// cancelled; the running child gets SIGTERM and a grace period.
func Supervise(ctx context.Context, backoff time.Duration) error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolve executable: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		cmd := exec.CommandContext(ctx, exe)
		cmd.Env = append(os.Environ(), ChildEnv+"=1")
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		cmd.Cancel = func() error {
			return cmd.Process.Signal(syscall.SIGTERM)
		}
		cmd.WaitDelay = 10 * time.Second

		log.Printf("[ordersocket] starting child")
		runErr := cmd.Run()

		if ctx.Err() != nil {
			return nil
		}

		code := cmd.ProcessState.ExitCode()
		if code == 0 {
			log.Printf("[ordersocket] child exited cleanly, restarting with fresh credentials")
			continue
		}
		log.Printf("[ordersocket] child exited with code %d (%v), restarting in %s", code, runErr, backoff)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
	}
}
