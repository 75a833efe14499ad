package builder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"

	"github.com/mattn/go-shellwords"

	"github.com/artpar/cutover/internal/core/deployment"
	"github.com/artpar/cutover/internal/core/domain"
	"github.com/artpar/cutover/internal/shell/docker"
)

// DefaultTailLines bounds the toolchain output kept for failure reports.
const DefaultTailLines = 40

// DefaultExecCommand is the exec toolchain's command template.
const DefaultExecCommand = "docker build -f ${DESCRIPTOR} -t ${IMAGE} -t ${LATEST} ${CONTEXT}"

// =============================================================================
// Docker SDK Toolchain
// =============================================================================

// ImageBuilder builds images through the Docker daemon.
type ImageBuilder interface {
	BuildImage(ctx context.Context, spec docker.ImageBuildSpec, output io.Writer) (string, error)
}

// DockerToolchain builds through the Docker SDK.
type DockerToolchain struct {
	Images    ImageBuilder
	Output    io.Writer // optional live build output
	TailLines int
}

// Build sends the context to the daemon and decodes the build stream.
func (t *DockerToolchain) Build(ctx context.Context, req Request) (string, error) {
	tail := newTailWriter(t.TailLines)
	var out io.Writer = tail
	if t.Output != nil {
		out = io.MultiWriter(tail, t.Output)
	}

	id, err := t.Images.BuildImage(ctx, docker.ImageBuildSpec{
		ContextDir: req.ContextDir,
		Dockerfile: req.Descriptor,
		Tags:       req.Tags,
		BuildArgs:  req.Args,
		Labels:     req.Labels,
	}, out)
	if err == nil {
		return id, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return "", ctxErr
	}

	code := 1
	var buildErr *docker.BuildError
	if errors.As(err, &buildErr) && buildErr.Code != 0 {
		code = buildErr.Code
	}

	stderr := tail.String()
	if stderr != "" {
		stderr += "\n"
	}
	return "", &domain.BuildToolError{ExitCode: code, Stderr: stderr + errorText(err)}
}

func errorText(err error) string {
	var buildErr *docker.BuildError
	if errors.As(err, &buildErr) {
		return buildErr.Message
	}
	return err.Error()
}

// =============================================================================
// Exec Toolchain
// =============================================================================

// ImageChecker reports whether an image reference exists locally.
type ImageChecker interface {
	ImageExists(ctx context.Context, ref string) (bool, error)
}

// ExecToolchain runs an external build command. The command template may use
// ${CONTEXT}, ${DESCRIPTOR}, ${IMAGE} and ${LATEST}; build args are exposed
// as placeholders too. When Images is set, every requested tag must exist
// once the command succeeds.
type ExecToolchain struct {
	Command   string
	Output    io.Writer
	TailLines int
	Images    ImageChecker
}

// Build runs the command in the context directory.
func (t *ExecToolchain) Build(ctx context.Context, req Request) (string, error) {
	template := t.Command
	if template == "" {
		template = DefaultExecCommand
	}

	args, err := shellwords.Parse(template)
	if err != nil {
		return "", fmt.Errorf("parse build command: %w", err)
	}
	if len(args) == 0 {
		return "", fmt.Errorf("build command is empty")
	}

	vars := make(map[string]string, len(req.Args)+4)
	for k, v := range req.Args {
		vars[k] = v
	}
	vars["CONTEXT"] = req.ContextDir
	vars["DESCRIPTOR"] = req.Descriptor
	if len(req.Tags) > 0 {
		vars["IMAGE"] = req.Tags[0]
	}
	if len(req.Tags) > 1 {
		vars["LATEST"] = req.Tags[1]
	}
	args = deployment.ExpandArgs(args, vars)

	tail := newTailWriter(t.TailLines)
	stdout := io.Writer(io.Discard)
	var stderr io.Writer = tail
	if t.Output != nil {
		stdout = t.Output
		stderr = io.MultiWriter(tail, t.Output)
	}

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Dir = req.ContextDir
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		code := 1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() > 0 {
			code = exitErr.ExitCode()
		}
		msg := tail.String()
		if msg == "" {
			msg = err.Error()
		}
		return "", &domain.BuildToolError{ExitCode: code, Stderr: msg}
	}

	if t.Images != nil {
		for _, ref := range req.Tags {
			exists, err := t.Images.ImageExists(ctx, ref)
			if err != nil {
				return "", fmt.Errorf("confirm image %s: %w", ref, err)
			}
			if !exists {
				msg := tail.String()
				if msg != "" {
					msg += "\n"
				}
				return "", &domain.BuildToolError{ExitCode: 1, Stderr: msg + "build command produced no image " + ref}
			}
		}
	}

	return "", nil
}

// =============================================================================
// Output Tail
// =============================================================================

// tailWriter keeps the last n complete lines written to it.
type tailWriter struct {
	mu      sync.Mutex
	n       int
	lines   []string
	partial bytes.Buffer
}

func newTailWriter(n int) *tailWriter {
	if n <= 0 {
		n = DefaultTailLines
	}
	return &tailWriter{n: n}
}

func (w *tailWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.partial.Write(p)
	for {
		line, err := w.partial.ReadString('\n')
		if err != nil {
			// Incomplete line; keep it for the next write.
			w.partial.Reset()
			w.partial.WriteString(line)
			break
		}
		w.push(strings.TrimRight(line, "\r\n"))
	}
	return len(p), nil
}

func (w *tailWriter) push(line string) {
	w.lines = append(w.lines, line)
	if len(w.lines) > w.n {
		w.lines = w.lines[len(w.lines)-w.n:]
	}
}

// String returns the kept lines, including a trailing partial line.
func (w *tailWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()

	lines := w.lines
	if w.partial.Len() > 0 {
		lines = append(append([]string{}, lines...), w.partial.String())
		if len(lines) > w.n {
			lines = lines[len(lines)-w.n:]
		}
	}
	return strings.Join(lines, "\n")
}
