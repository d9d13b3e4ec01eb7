package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/net/html"

	"github.com/martinemde/codebuddy/agentloop"
)

// HTTPRequest returns the http_request tool.
func (w *Workspace) HTTPRequest() agentloop.Tool {
	return agentloop.NewFuncTool("http_request",
		"Make an HTTP request; HTML responses are reduced to text",
		agentloop.ObjectSchema(map[string]any{
			"url":     agentloop.Prop("string", "http or https URL"),
			"method":  agentloop.Prop("string", "HTTP method (default: GET)"),
			"headers": agentloop.Prop("object", "Request headers"),
			"body":    agentloop.Prop("string", "Request body"),
			"timeout": agentloop.Prop("integer", "Timeout in seconds"),
		}, "url"),
		func(ctx context.Context, args map[string]any) (string, error) {
			raw, err := agentloop.RequireString(args, "url")
			if err != nil {
				return "", err
			}
			u, err := url.Parse(raw)
			if err != nil {
				return "", fmt.Errorf("invalid url: %w", err)
			}
			if u.Scheme != "http" && u.Scheme != "https" {
				return "", fmt.Errorf("unsupported url scheme %q (only http and https)", u.Scheme)
			}
			method := http.MethodGet
			if m, ok := agentloop.GetStringArg(args, "method"); ok && m != "" {
				method = strings.ToUpper(m)
			}
			ctx, cancel := context.WithTimeout(ctx, w.commandTimeout(args, w.opts.HTTPTimeout))
			defer cancel()

			var body io.Reader
			if b, ok := agentloop.GetStringArg(args, "body"); ok && b != "" {
				body = strings.NewReader(b)
			}
			req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
			if err != nil {
				return "", err
			}
			if headers, ok := args["headers"].(map[string]any); ok {
				for k, v := range headers {
					req.Header.Set(k, fmt.Sprint(v))
				}
			}

			w.log.WithField("method", method).WithField("url", u.Redacted()).Info("http_request")
			resp, err := w.http.Do(req)
			if err != nil {
				return "", fmt.Errorf("request failed: %w", err)
			}
			defer resp.Body.Close()

			text, truncated, err := readCapped(resp.Body, w.opts.MaxResponseBytes)
			if err != nil {
				return "", fmt.Errorf("read response: %w", err)
			}
			contentType := resp.Header.Get("Content-Type")
			if strings.Contains(contentType, "text/html") {
				text = HTMLToText(text)
			}
			if truncated {
				text += fmt.Sprintf("\n\n[response truncated at %d bytes]", w.opts.MaxResponseBytes)
			}

			out := fmt.Sprintf("HTTP %s\nContent-Type: %s\n\n%s", resp.Status, contentType, text)
			if resp.StatusCode >= 400 {
				return "", fmt.Errorf("%s", out)
			}
			return out, nil
		})
}

func readCapped(r io.Reader, limit int64) (string, bool, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return "", false, err
	}
	if int64(len(data)) > limit {
		return string(data[:limit]), true, nil
	}
	return string(data), false, nil
}

// skippedElements hold no readable text.
var skippedElements = map[string]bool{
	"script": true, "style": true, "noscript": true, "svg": true, "template": true,
}

// blockElements end a line of text.
var blockElements = map[string]bool{
	"p": true, "div": true, "br": true, "li": true, "tr": true, "section": true, "article": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true, "pre": true, "title": true,
}

// HTMLToText extracts visible text from an HTML document, one block per line.
// Unparsable input is returned unchanged.
func HTMLToText(raw string) string {
	doc, err := html.Parse(strings.NewReader(raw))
	if err != nil {
		return raw
	}
	var sb strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && skippedElements[n.Data] {
			return
		}
		if n.Type == html.TextNode {
			if t := strings.Join(strings.Fields(n.Data), " "); t != "" {
				sb.WriteString(t)
				sb.WriteString(" ")
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode && blockElements[n.Data] {
			sb.WriteString("\n")
		}
	}
	walk(doc)

	var lines []string
	for _, line := range strings.Split(sb.String(), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}
