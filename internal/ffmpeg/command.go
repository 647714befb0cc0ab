package ffmpeg

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ProgressUpdate is a single progress snapshot parsed from ffmpeg's
// -progress output.
type ProgressUpdate struct {
	// OutTime is how much of the output timeline has been written.
	OutTime time.Duration
	// Frame is the last encoded frame number, if reported.
	Frame int64
	// Speed is the realtime multiplier, e.g. 4.2 for "4.2x".
	Speed float64
	// Done reports the terminal "progress=end" record.
	Done bool
}

// ProgressFunc receives progress updates while a command runs.
type ProgressFunc func(ProgressUpdate)

// Command wraps a running ffmpeg subprocess.
type Command struct {
	mu      sync.RWMutex
	cmd     *exec.Cmd
	started time.Time
	done    bool
	killed  bool
}

// Start launches the subprocess.
func (c *Command) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.cmd.Start(); err != nil {
		return fmt.Errorf("starting ffmpeg: %w", err)
	}
	c.started = time.Now()
	return nil
}

// Wait blocks until the subprocess exits.
func (c *Command) Wait() error {
	err := c.cmd.Wait()
	c.mu.Lock()
	c.done = true
	c.mu.Unlock()
	return err
}

// Kill forcefully terminates the subprocess.
func (c *Command) Kill() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cmd.Process == nil || c.done {
		return nil
	}
	c.killed = true
	return c.cmd.Process.Kill()
}

// Killed reports whether Kill was called.
func (c *Command) Killed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.killed
}

// PID returns the subprocess PID, or 0 before Start.
func (c *Command) PID() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.cmd.Process == nil {
		return 0
	}
	return c.cmd.Process.Pid
}

// Duration returns how long the subprocess has been running.
func (c *Command) Duration() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.started.IsZero() {
		return 0
	}
	return time.Since(c.started)
}

// CommandBuilder assembles ffmpeg argument lists.
type CommandBuilder struct {
	binary     string
	inputArgs  []string
	input      string
	filters    []string
	outputArgs []string
	output     string
	onStart    func(pid int)
}

// NewCommandBuilder creates a builder for the given ffmpeg binary.
func NewCommandBuilder(binary string) *CommandBuilder {
	return &CommandBuilder{binary: binary}
}

// Input sets the input file.
func (b *CommandBuilder) Input(path string) *CommandBuilder {
	b.input = path
	return b
}

// InputArgs adds arguments placed before -i.
func (b *CommandBuilder) InputArgs(args ...string) *CommandBuilder {
	b.inputArgs = append(b.inputArgs, args...)
	return b
}

// VideoFilter adds a -vf filter. Multiple filters are comma-joined.
func (b *CommandBuilder) VideoFilter(filter string) *CommandBuilder {
	b.filters = append(b.filters, filter)
	return b
}

// OutputArgs adds arguments placed before the output path.
func (b *CommandBuilder) OutputArgs(args ...string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, args...)
	return b
}

// Output sets the output file.
func (b *CommandBuilder) Output(path string) *CommandBuilder {
	b.output = path
	return b
}

// OnStart registers a hook invoked with the subprocess PID once it starts.
func (b *CommandBuilder) OnStart(fn func(pid int)) *CommandBuilder {
	b.onStart = fn
	return b
}

// Args assembles the final argument list. The -progress pipe:1 flags are set
// by Run, not here, so the list is also usable for logging.
func (b *CommandBuilder) Args() []string {
	args := []string{"-hide_banner", "-loglevel", "error", "-y"}
	args = append(args, b.inputArgs...)
	args = append(args, "-i", b.input)
	if len(b.filters) > 0 {
		args = append(args, "-vf", strings.Join(b.filters, ","))
	}
	args = append(args, b.outputArgs...)
	args = append(args, b.output)
	return args
}

// Build creates a Command bound to ctx. Cancelling ctx kills the subprocess.
func (b *CommandBuilder) Build(ctx context.Context) *Command {
	args := append([]string{"-progress", "pipe:1", "-nostats"}, b.Args()...)
	cmd := exec.CommandContext(ctx, b.binary, args...)
	return &Command{cmd: cmd}
}

// Run builds the command, starts it, and streams progress updates to fn
// until the subprocess exits. fn may be nil.
func (b *CommandBuilder) Run(ctx context.Context, fn ProgressFunc) error {
	command := b.Build(ctx)

	stdout, err := command.cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("opening progress pipe: %w", err)
	}
	var stderr strings.Builder
	command.cmd.Stderr = &stderr

	if err := command.Start(); err != nil {
		return err
	}
	if b.onStart != nil {
		b.onStart(command.PID())
	}

	parseProgressStream(stdout, fn)

	if err := command.Wait(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return fmt.Errorf("ffmpeg: %w: %s", err, lastLine(msg))
		}
		return fmt.Errorf("ffmpeg: %w", err)
	}
	return nil
}

// parseProgressStream reads ffmpeg's key=value progress records. A record is
// a block of lines terminated by a "progress=" line.
func parseProgressStream(r io.Reader, fn ProgressFunc) {
	scanner := bufio.NewScanner(r)
	var update ProgressUpdate
	for scanner.Scan() {
		key, value, found := strings.Cut(strings.TrimSpace(scanner.Text()), "=")
		if !found {
			continue
		}
		switch key {
		case "out_time_us":
			if us, err := strconv.ParseInt(value, 10, 64); err == nil && us >= 0 {
				update.OutTime = time.Duration(us) * time.Microsecond
			}
		case "out_time_ms":
			// Despite the name this field is also microseconds; only use
			// it when out_time_us was absent.
			if update.OutTime == 0 {
				if us, err := strconv.ParseInt(value, 10, 64); err == nil && us >= 0 {
					update.OutTime = time.Duration(us) * time.Microsecond
				}
			}
		case "frame":
			if f, err := strconv.ParseInt(value, 10, 64); err == nil {
				update.Frame = f
			}
		case "speed":
			if s, err := strconv.ParseFloat(strings.TrimSuffix(value, "x"), 64); err == nil {
				update.Speed = s
			}
		case "progress":
			update.Done = value == "end"
			if fn != nil {
				fn(update)
			}
			update = ProgressUpdate{}
		}
	}
}

// lastLine returns the last non-empty line; ffmpeg puts the actionable
// message there.
func lastLine(s string) string {
	lines := strings.Split(s, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return ""
}
