package notify

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

const commandTimeout = 10 * time.Second

// commandSink execs a user-configured argv for each notification. This is the
// boundary to the native desktop notifier (notify-send, terminal-notifier,
// ...); pacewatch only decides when and what to call it with.
//
// Occurrences of {title} and {body} in the argv are substituted; if neither
// placeholder appears, title and body are appended as trailing arguments.
type commandSink struct {
	argv []string
}

// NewCommandSink builds a desktop-command sink. argv must be non-empty.
func NewCommandSink(argv []string) (Sink, error) {
	if len(argv) == 0 || strings.TrimSpace(argv[0]) == "" {
		return nil, errors.New("notify command is empty")
	}
	return &commandSink{argv: append([]string(nil), argv...)}, nil
}

func (s *commandSink) Name() string { return "command" }

func (s *commandSink) Send(ctx context.Context, title, body string) error {
	args := make([]string, 0, len(s.argv)+2)
	substituted := false
	for _, a := range s.argv {
		if strings.Contains(a, "{title}") || strings.Contains(a, "{body}") {
			substituted = true
			a = strings.ReplaceAll(a, "{title}", title)
			a = strings.ReplaceAll(a, "{body}", body)
		}
		args = append(args, a)
	}
	if !substituted {
		args = append(args, title, body)
	}

	cctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	cmd := exec.CommandContext(cctx, args[0], args[1:]...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("notify command: %w (output: %s)", err, strings.TrimSpace(string(out)))
	}
	return nil
}
