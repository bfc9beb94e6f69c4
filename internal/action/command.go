package action

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// ErrNoProgram is returned for a command action without a program
var ErrNoProgram = errors.New("command action needs a program")

// Command runs an external program and waits for it to exit
type Command struct {
	program string
	args    []string
	timeout time.Duration
}

// NewCommand creates a command action. A zero timeout means the command
// runs until ctx ends.
func NewCommand(program string, args []string, timeout time.Duration) (*Command, error) {
	if strings.TrimSpace(program) == "" {
		return nil, ErrNoProgram
	}
	return &Command{program: program, args: args, timeout: timeout}, nil
}

// Execute runs the program
func (c *Command) Execute(ctx context.Context) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, c.program, c.args...)
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("run %s: %w: %s", c.program, err, msg)
		}
		return fmt.Errorf("run %s: %w", c.program, err)
	}
	return nil
}

func (c *Command) String() string {
	if len(c.args) == 0 {
		return "cmd:" + c.program
	}
	return "cmd:" + c.program + " " + strings.Join(c.args, " ")
}
