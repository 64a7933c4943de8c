package main

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	rip_stream "github.com/alanbriolat/rip-stream"
)

// prompter asks for values missing from the command line, but only when interactive.
type prompter struct {
	in          *bufio.Reader
	out         io.Writer
	interactive bool
}

func newPrompter(in io.Reader, out io.Writer, interactive bool) *prompter {
	return &prompter{
		in:          bufio.NewReader(in),
		out:         out,
		interactive: interactive,
	}
}

func (p *prompter) ask(label string) (string, error) {
	if !p.interactive {
		return "", fmt.Errorf("%w: %s is required", rip_stream.ErrConfiguration, strings.ToLower(label))
	}
	fmt.Fprintf(p.out, "%s: ", label)
	line, err := p.in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", fmt.Errorf("failed to read %s: %w", strings.ToLower(label), err)
	}
	return strings.TrimSpace(line), nil
}

// Value returns value, or asks for it when empty.
func (p *prompter) Value(value string, label string) (string, error) {
	if value != "" {
		return value, nil
	}
	return p.ask(label)
}

// Int asks for a number, returning def for an empty answer.
func (p *prompter) Int(label string, def int) (int, error) {
	if !p.interactive {
		return def, nil
	}
	answer, err := p.ask(fmt.Sprintf("%s [%d]", label, def))
	if err != nil || answer == "" {
		return def, err
	}
	n, err := strconv.Atoi(answer)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a number", rip_stream.ErrConfiguration, answer)
	}
	return n, nil
}
