package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/himanishpuri/AuditoryMemoryTest/pkg/digitspan/record"
	"github.com/himanishpuri/AuditoryMemoryTest/pkg/digitspan/session"
	"github.com/himanishpuri/AuditoryMemoryTest/pkg/models"
)

const (
	ansiRed   = "\033[31m"
	ansiGreen = "\033[32m"
	ansiReset = "\033[0m"
)

// console is the terminal side of a session: it waits for Enter between
// blocks and reads y/n answers.
type console struct {
	out   io.Writer
	lines chan string
	errs  chan error
}

func newConsole(in io.Reader, out io.Writer) *console {
	c := &console{out: out, lines: make(chan string), errs: make(chan error, 1)}
	go func() {
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			c.lines <- strings.TrimSpace(sc.Text())
		}
		err := sc.Err()
		if err == nil {
			err = io.EOF
		}
		c.errs <- err
	}()
	return c
}

func (c *console) readLine(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case line := <-c.lines:
		return line, nil
	case err := <-c.errs:
		return "", err
	}
}

func (c *console) Ready(ctx context.Context, block models.Block, n int) error {
	if block == models.BlockPractice {
		fmt.Fprintf(c.out, "\n📝 Practice: %d trial(s). Listen to the digits through the noise,\n", n)
		fmt.Fprintln(c.out, "   then answer whether the probe digit was in the sequence.")
	} else {
		fmt.Fprintf(c.out, "\n🎧 Main block: %d trial(s). No feedback is given in this block.\n", n)
	}
	fmt.Fprint(c.out, "   Press Enter to begin...")
	_, err := c.readLine(ctx)
	return err
}

// ReadyTrial waits for Enter before each trial after the first of a block;
// the block prompt already covers the first.
func (c *console) ReadyTrial(ctx context.Context, t *models.Trial, index, total int) error {
	if index == 0 {
		return nil
	}
	fmt.Fprintf(c.out, "\n   Press Enter to start trial %d/%d...", index+1, total)
	_, err := c.readLine(ctx)
	return err
}

func (c *console) Respond(ctx context.Context, t *models.Trial) (bool, error) {
	for {
		fmt.Fprintf(c.out, "   Was %d in the sequence? [y/n] ", t.Probe)
		line, err := c.readLine(ctx)
		if err != nil {
			return false, err
		}
		switch strings.ToLower(line) {
		case "y", "yes":
			return true, nil
		case "n", "no":
			return false, nil
		}
	}
}

// observe renders session events.
func (c *console) observe(ev session.Event) {
	switch ev.Phase {
	case session.PhaseFixation:
		fmt.Fprintf(c.out, "\n[%s %d/%d]  +\n", ev.Trial.Block, ev.Index+1, ev.Total)
	case session.PhaseAuditory:
		fmt.Fprintln(c.out, "   🔊 listening...")
	case session.PhaseFeedback:
		var pe *record.PersistError
		if errors.As(ev.Err, &pe) {
			fmt.Fprintf(c.out, "%s   ⚠️  RESPONSE NOT SAVED to %s: %v%s\n", ansiRed, pe.Path, pe.Err, ansiReset)
		}
		if ev.Trial.Block != models.BlockPractice {
			return
		}
		if ev.Correct {
			fmt.Fprintf(c.out, "%s   ✅ Correct%s\n", ansiGreen, ansiReset)
		} else {
			fmt.Fprintf(c.out, "%s   ❌ Incorrect%s (sequence was %s)\n", ansiRed, ansiReset, record.FormatDigits(ev.Trial.Digits))
		}
	}
}
