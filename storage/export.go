package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gomarkdown/markdown"
	mdhtml "github.com/gomarkdown/markdown/html"

	"otchat/model"
)

// ExportJSON writes a chat as indented JSON.
func (c *ChatStore) ExportJSON(ctx context.Context, id string, w io.Writer) error {
	chat, err := c.LoadChat(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load chat: %w", err)
	}

	data, err := json.MarshalIndent(chat, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal chat: %w", err)
	}
	_, err = w.Write(append(data, '\n'))
	return err
}

// ExportHTML writes a chat as a standalone HTML page, prose rendered from
// markdown.
func (c *ChatStore) ExportHTML(ctx context.Context, id string, w io.Writer) error {
	chat, err := c.LoadChat(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load chat: %w", err)
	}

	var sb strings.Builder
	title := html.EscapeString(chat.Title)
	fmt.Fprintf(&sb, "<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n<title>%s</title>\n</head>\n<body>\n", title)
	fmt.Fprintf(&sb, "<h1>%s</h1>\n", title)

	for _, pair := range chat.History.MsgPairs {
		for _, msg := range []*model.Msg{pair.User, pair.Assistant} {
			if msg == nil {
				continue
			}
			fmt.Fprintf(&sb, "<section class=\"%s\">\n<h2>%s</h2>\n", msg.Role, msg.Role)
			sb.Write(MarkdownToHTML(MessageMarkdown(msg.Parts)))
			sb.WriteString("</section>\n")
		}
	}
	sb.WriteString("</body>\n</html>\n")

	_, err = io.WriteString(w, sb.String())
	return err
}

// MessageMarkdown renders message parts as markdown. Tool calls become a
// short note followed by their result.
func MessageMarkdown(parts []model.MessagePart) string {
	var blocks []string
	for _, p := range parts {
		switch p.Kind() {
		case model.KindThink:
			continue
		case model.KindFunctionCall:
			fc, err := model.DecodeFunctionCall(p)
			if err != nil {
				continue
			}
			blocks = append(blocks, fmt.Sprintf("*Called `%s`*\n\n```\n%s\n```", fc.Name, fc.Result))
		default:
			if p.Type == model.TypeImage {
				blocks = append(blocks, fmt.Sprintf("![image](%s)", p.Content))
				continue
			}
			blocks = append(blocks, p.Fence())
		}
	}
	return strings.Join(blocks, "\n\n")
}

// MarkdownToHTML converts markdown to HTML, dropping raw HTML from the
// source.
func MarkdownToHTML(md string) []byte {
	renderer := mdhtml.NewRenderer(mdhtml.RendererOptions{
		Flags: mdhtml.CommonFlags | mdhtml.SkipHTML,
	})
	return markdown.ToHTML([]byte(md), nil, renderer)
}

// SanitizeFilename removes or replaces characters that are invalid in filenames
func SanitizeFilename(name string) string {
	replacer := strings.NewReplacer(
		"/", "-", "\\", "-", ":", "-", "*", "-", "?", "-", "\"", "-",
		"<", "-", ">", "-", "|", "-", " ", "-", "\n", "-", "\r", "-",
	)
	name = replacer.Replace(name)

	// Remove leading/trailing hyphens and dots
	name = strings.Trim(name, "-.")

	if r := []rune(name); len(r) > 50 {
		name = string(r[:50])
	}
	if name == "" {
		name = "chat"
	}
	return name
}

// GenerateExportPath returns a default export path in ~/Downloads.
func GenerateExportPath(title, ext string, now time.Time) string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}
	filename := fmt.Sprintf("otchat-%s-%s.%s", SanitizeFilename(title), now.Format("20060102-150405"), ext)
	return filepath.Join(homeDir, "Downloads", filename)
}

// WriteExport creates path (0600 - exports contain conversation history)
// and passes it to write.
func WriteExport(path string, write func(io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
