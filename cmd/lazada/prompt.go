package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aluiziolira/go-scrape-lazada/scraper"
)

// terminalDecider asks the operator on a terminal. An unreadable answer
// takes the prompt's default.
type terminalDecider struct {
	in  *bufio.Reader
	out io.Writer
}

func newTerminalDecider(in io.Reader, out io.Writer) *terminalDecider {
	return &terminalDecider{in: bufio.NewReader(in), out: out}
}

func (d *terminalDecider) Confirm(ctx context.Context, p scraper.Prompt) bool {
	if ctx.Err() != nil {
		return false
	}
	switch p.Kind {
	case scraper.PromptDuplicateRun:
		fmt.Fprintf(d.out, "\n⚠️  %s already has %d products scraped today.\n", p.Country.DisplayName(), p.ExistingRows)
		return d.ask("Scrape again anyway? [y/N]: ", false)
	case scraper.PromptStart:
		fmt.Fprintf(d.out, "\n%s: %d categories, target %d products each.\n", p.Country.DisplayName(), p.Categories, p.Target)
		return d.ask("Start scraping? [Y/n]: ", true)
	default:
		return false
	}
}

func (d *terminalDecider) ask(question string, def bool) bool {
	fmt.Fprint(d.out, question)
	line, err := d.in.ReadString('\n')
	if err != nil && line == "" {
		fmt.Fprintln(d.out)
		return def
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	case "n", "no":
		return false
	default:
		return def
	}
}
