package structural

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// envelope is the exec transport's stdout format.
type envelope struct {
	Output json.RawMessage `json:"output,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// ExecConfig runs the engine as a child process per call: Command followed
// by the module name, JSON input on stdin, an envelope on stdout.
type ExecConfig struct {
	Command []string
	Dir     string
	Env     []string // added to the parent environment
	Timeout time.Duration
}

type execTransport struct {
	cfg ExecConfig
}

// NewExecEngine builds an Engine that shells out to cfg.Command.
func NewExecEngine(cfg ExecConfig, opts ClientOpts) *Client {
	return NewClient(&execTransport{cfg: cfg}, opts)
}

func (t *execTransport) Call(ctx context.Context, module string, in, out any) error {
	if len(t.cfg.Command) == 0 {
		return &ModuleError{Module: module, Msg: "no engine command configured"}
	}
	if t.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.cfg.Timeout)
		defer cancel()
	}
	req, err := json.Marshal(in)
	if err != nil {
		return &ModuleError{Module: module, Msg: "encode input: " + err.Error()}
	}

	args := append(append([]string{}, t.cfg.Command[1:]...), module)
	cmd := exec.CommandContext(ctx, t.cfg.Command[0], args...)
	cmd.Dir = t.cfg.Dir
	if len(t.cfg.Env) > 0 {
		cmd.Env = append(os.Environ(), t.cfg.Env...)
	}
	cmd.Stdin = bytes.NewReader(req)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("exec %s: %w", module, ctxErr)
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return fmt.Errorf("exec %s: exit %d: %s", module, exitErr.ExitCode(), tail(stderr.String(), 512))
		}
		return fmt.Errorf("exec %s: %w", module, err)
	}

	var env envelope
	if err := json.Unmarshal(stdout.Bytes(), &env); err != nil {
		return &ModuleError{Module: module, Msg: "decode output: " + err.Error()}
	}
	if env.Error != "" {
		return &ModuleError{Module: module, Msg: env.Error}
	}
	if err := json.Unmarshal(env.Output, out); err != nil {
		return &ModuleError{Module: module, Msg: "decode output: " + err.Error()}
	}
	return nil
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
