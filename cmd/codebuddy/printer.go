package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/martinemde/codebuddy/agentloop"
	"github.com/martinemde/codebuddy/logger"
)

// printer serializes terminal output from the answer stream and the session
// event feed.
type printer struct {
	mu  sync.Mutex
	out io.Writer
}

func newPrinter(out io.Writer) *printer {
	return &printer{out: out}
}

func (p *printer) Printf(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, format, args...)
}

func (p *printer) Print(s string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	io.WriteString(p.out, s)
}

// follow prints tool activity until the event channel closes.
func (p *printer) follow(events <-chan agentloop.Event) {
	for ev := range events {
		switch ev.Kind {
		case agentloop.EventToolCallStart:
			name, _ := ev.Data["tool_name"].(string)
			args, _ := ev.Data["arguments"].(map[string]any)
			p.Printf("\033[90m[*] %s %s\033[0m\n", name, summarizeArgs(args))
		case agentloop.EventToolCallEnd:
			if ok, _ := ev.Data["success"].(bool); !ok {
				name, _ := ev.Data["tool_name"].(string)
				p.Printf("\033[31m[x] %s failed\033[0m\n", name)
			}
		case agentloop.EventLoopDetection:
			p.Print("\033[33m[!] repeated tool calls detected; asking the model to change approach\033[0m\n")
		case agentloop.EventWarning:
			if msg, ok := ev.Data["message"].(string); ok {
				p.Printf("\033[33m[!] %s\033[0m\n", msg)
			}
		}
	}
}

// summarizeArgs renders arguments as short key=value pairs in key order.
func summarizeArgs(args map[string]any) string {
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		v := strings.ReplaceAll(fmt.Sprint(args[k]), "\n", "⏎")
		parts = append(parts, k+"="+logger.Truncate(v, 60))
	}
	return strings.Join(parts, " ")
}
