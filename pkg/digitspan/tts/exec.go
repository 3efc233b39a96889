package tts

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/mattn/go-shellwords"
)

// Command runs a local synthesizer once per clip. The command line may
// contain {text} and {lang} placeholders, e.g.
//
//	espeak-ng -v {lang} --stdout {text}
//
// and must write an MP3 or WAV file to stdout.
type Command struct {
	args    []string
	timeout time.Duration
}

func NewCommand(command string, timeout time.Duration) (*Command, error) {
	parser := shellwords.NewParser()
	parser.ParseEnv = true
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse tts command: %w", err)
	}
	if len(args) == 0 {
		return nil, ErrEmptyCommand
	}
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Command{args: args, timeout: timeout}, nil
}

func (c *Command) Name() string { return "exec:" + c.args[0] }

func (c *Command) Synthesize(ctx context.Context, text, lang string) ([]byte, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	r := strings.NewReplacer("{text}", text, "{lang}", lang)
	args := make([]string, len(c.args))
	for i, a := range c.args {
		args[i] = r.Replace(a)
	}

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%s failed: %v (%s)", args[0], err, strings.TrimSpace(stderr.String()))
	}
	if stdout.Len() == 0 {
		return nil, ErrEmptyAudio
	}
	return stdout.Bytes(), nil
}
