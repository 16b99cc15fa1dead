// Package signals handles PID 1 duties when the daemon runs as a container
// entrypoint.
package signals

import (
	"context"
	"log/slog"
	"os"
	"syscall"
	"time"
)

// IsPID1 reports whether the daemon is the container init process.
func IsPID1() bool {
	return os.Getpid() == 1
}

// ReapZombies periodically reaps orphaned children until the context is
// cancelled. Java servers fork watchdog and plugin helper processes that
// get reparented to us when they outlive the server; as PID 1 nobody else
// will collect them.
func ReapZombies(ctx context.Context, logger *slog.Logger) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			reapAll(logger)
		}
	}
}

func reapAll(logger *slog.Logger) {
	for {
		var status syscall.WaitStatus
		pid, err := syscall.Wait4(-1, &status, syscall.WNOHANG, nil)
		if err != nil || pid <= 0 {
			return
		}
		logger.Debug("Reaped zombie process", "pid", pid, "status", status)
	}
}
