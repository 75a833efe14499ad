package cutover

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os/exec"
	"strconv"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mattn/go-shellwords"

	"github.com/artpar/cutover/internal/core/deployment"
	"github.com/artpar/cutover/internal/core/domain"
	"github.com/artpar/cutover/internal/shell/retry"
)

// DefaultReclaimCommand terminates whatever process holds ${PORT}.
const DefaultReclaimCommand = "fuser -k -n tcp ${PORT}"

// ContainerReclaimer finds and removes containers that publish a port.
type ContainerReclaimer interface {
	ContainersPublishing(ctx context.Context, port int) ([]string, error)
	Remove(ctx context.Context, name string) error
}

// ReclaimConfig configures a PortReclaimer.
type ReclaimConfig struct {
	BindHost string // address the bind check listens on, "" for all interfaces
	Command  string
	Attempts int
	Interval time.Duration
}

// PortReclaimer frees a host port for the new instance. Every step is best
// effort; the start that follows is the authoritative check.
type PortReclaimer struct {
	containers ContainerReclaimer
	config     ReclaimConfig
	clock      clockwork.Clock
	logger     *slog.Logger

	// Overridable for tests.
	bound func(host string, port int) bool
	run   func(ctx context.Context, args []string) error
}

// NewPortReclaimer creates a PortReclaimer.
func NewPortReclaimer(containers ContainerReclaimer, config ReclaimConfig, clock clockwork.Clock, logger *slog.Logger) *PortReclaimer {
	if config.Command == "" {
		config.Command = DefaultReclaimCommand
	}
	if config.Attempts <= 0 {
		config.Attempts = 3
	}
	if config.Interval <= 0 {
		config.Interval = time.Second
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PortReclaimer{
		containers: containers,
		config:     config,
		clock:      clock,
		logger:     logger.With("component", "port-reclaimer"),
		bound:      portBound,
		run:        runCommand,
	}
}

// Reclaim removes containers publishing port, then kills any other holder
// until the port can be bound or the attempts run out.
func (r *PortReclaimer) Reclaim(ctx context.Context, port int) error {
	var containerErr error
	names, err := r.containers.ContainersPublishing(ctx, port)
	if err != nil {
		containerErr = fmt.Errorf("list containers publishing %d: %w", port, err)
	}
	for _, name := range names {
		if err := r.containers.Remove(ctx, name); err != nil && !errors.Is(err, domain.ErrInstanceNotFound) {
			r.logger.Warn("failed to remove container holding port", "port", port, "container", name, "error", err)
			containerErr = err
			continue
		}
		r.logger.Info("removed container holding port", "port", port, "container", name)
	}

	args, err := shellwords.Parse(r.config.Command)
	if err != nil {
		return fmt.Errorf("parse reclaim command: %w", err)
	}
	args = deployment.ExpandArgs(args, map[string]string{"PORT": strconv.Itoa(port)})

	err = retry.Do(ctx, r.clock, retry.Constant(r.config.Attempts, r.config.Interval), func(ctx context.Context) error {
		if !r.bound(r.config.BindHost, port) {
			return nil
		}
		if len(args) > 0 {
			if err := r.run(ctx, args); err != nil {
				r.logger.Debug("reclaim command failed", "port", port, "command", args, "error", err)
			}
		}
		if r.bound(r.config.BindHost, port) {
			return fmt.Errorf("port %d is still bound", port)
		}
		return nil
	}, func(attempt int, err error, wait time.Duration) {
		r.logger.Debug("port not yet free", "port", port, "attempt", attempt, "retry_in", wait)
	})
	if err != nil {
		return err
	}
	return containerErr
}

// portBound reports whether binding host:port fails because the address is
// in use.
func portBound(host string, port int) bool {
	ln, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return errors.Is(err, syscall.EADDRINUSE)
	}
	ln.Close()
	return false
}

func runCommand(ctx context.Context, args []string) error {
	out, err := exec.CommandContext(ctx, args[0], args[1:]...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s", err, out)
	}
	return nil
}
