package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

type prompter struct {
	scanner *bufio.Scanner
	out     io.Writer
}

func newPrompter(in io.Reader, out io.Writer) *prompter {
	if in == nil {
		in = os.Stdin
	}
	if out == nil {
		out = os.Stdout
	}
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &prompter{scanner: sc, out: out}
}

// line reads one trimmed line. EOF yields "".
func (p *prompter) line() (string, error) {
	if !p.scanner.Scan() {
		return "", p.scanner.Err()
	}
	return strings.TrimSpace(p.scanner.Text()), nil
}

// ask prompts for free text, returning def on empty input or EOF.
func (p *prompter) ask(question, def string) string {
	if def != "" {
		_, _ = fmt.Fprintf(p.out, "%s [%s]: ", question, def)
	} else {
		_, _ = fmt.Fprintf(p.out, "%s: ", question)
	}
	text, err := p.line()
	if err != nil || text == "" {
		return def
	}
	return text
}

// choose displays a numbered list and returns the 0-based index picked.
// defaultIdx is used on empty, invalid or missing input.
func (p *prompter) choose(question string, options []string, defaultIdx int) int {
	_, _ = fmt.Fprintf(p.out, "\n%s\n", question)
	for i, opt := range options {
		marker := "  "
		if i == defaultIdx {
			marker = "▸ "
		}
		_, _ = fmt.Fprintf(p.out, "  %s%d) %s\n", marker, i+1, opt)
	}
	_, _ = fmt.Fprintf(p.out, "  Choose [%d]: ", defaultIdx+1)

	text, err := p.line()
	if err != nil || text == "" {
		return defaultIdx
	}
	n, err := strconv.Atoi(text)
	if err != nil || n < 1 || n > len(options) {
		return defaultIdx
	}
	return n - 1
}
