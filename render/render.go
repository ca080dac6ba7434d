// Package render formats chat messages for the terminal.
package render

import (
	"fmt"
	"regexp"
	"strings"

	markdown "github.com/MichaelMure/go-term-markdown"
	"github.com/charmbracelet/lipgloss"
	gomarkdown "github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/parser"
	"github.com/mattn/go-runewidth"

	"otchat/model"
)

var (
	dimColor     = lipgloss.Color("7")
	accentColor  = lipgloss.Color("12")
	successColor = lipgloss.Color("10")
	warningColor = lipgloss.Color("11")
	dangerColor  = lipgloss.Color("9")

	UserStyle = lipgloss.NewStyle().
			Foreground(successColor).
			Bold(true)

	AssistantStyle = lipgloss.NewStyle().
			Foreground(accentColor)

	DimStyle = lipgloss.NewStyle().
			Foreground(dimColor)

	WarningStyle = lipgloss.NewStyle().
			Foreground(warningColor)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(dangerColor).
			Bold(true)

	ToolStyle = lipgloss.NewStyle().
			Foreground(warningColor).
			Bold(true)

	TitleStyle = lipgloss.NewStyle().
			Bold(true)
)

var mdLinkRegex = regexp.MustCompile(`\[([^\]]+)\]\(([^)]+)\)`)

// maxResultLines caps how much of a tool result is shown inline.
const maxResultLines = 8

// Markdown renders markdown for a terminal of the given width. Links are
// reduced to their URL so terminals can detect them.
func Markdown(content string, width int) string {
	if width < 20 {
		width = 20
	}
	content = mdLinkRegex.ReplaceAllString(content, "$2")

	// Autolink off keeps plain URLs as plain text
	p := parser.NewWithExtensions(markdown.Extensions() &^ parser.Autolink)
	r := markdown.NewRenderer(width-4, 0)
	doc := p.Parse([]byte(content))
	return strings.TrimRight(string(gomarkdown.Render(doc, r)), "\n")
}

// Label returns the styled role header of a message.
func Label(msg *model.Msg) string {
	switch msg.Role {
	case model.RoleUser:
		label := "You"
		if msg.Uphurry {
			label = "You (auto)"
		}
		return UserStyle.Render(label)
	default:
		return AssistantStyle.Render("Assistant")
	}
}

// Message renders a message with its role header.
func Message(msg *model.Msg, width int) string {
	if msg == nil {
		return ""
	}
	return Label(msg) + "\n" + Parts(msg.Parts, width)
}

// Parts renders message parts in order. Consecutive prose and block parts
// are rendered as one markdown document.
func Parts(parts []model.MessagePart, width int) string {
	var out []string
	var doc []string

	flush := func() {
		if len(doc) > 0 {
			out = append(out, Markdown(strings.Join(doc, "\n\n"), width))
			doc = nil
		}
	}

	for _, p := range parts {
		switch {
		case p.Type == model.TypeImage:
			flush()
			out = append(out, DimStyle.Render("[image "+p.TypeExtra+"]"))
		case p.Kind() == model.KindThink:
			flush()
			out = append(out, Think(p.Content, width))
		case p.Kind() == model.KindFunctionCall:
			flush()
			out = append(out, FunctionCall(p, width))
		default:
			doc = append(doc, p.Fence())
		}
	}
	flush()

	return strings.Join(out, "\n")
}

// Think renders model reasoning dimmed.
func Think(content string, width int) string {
	return DimStyle.Width(width).Render("thinking: " + strings.TrimSpace(content))
}

// FunctionCall renders a tool call with its result, if any.
func FunctionCall(p model.MessagePart, width int) string {
	fc, err := model.DecodeFunctionCall(p)
	if err != nil {
		return ErrorStyle.Render("invalid tool call")
	}

	args := strings.Join(strings.Fields(fc.Args), " ")
	header := ToolStyle.Render("⚙ "+fc.Name) + DimStyle.Render(runewidth.Truncate("("+args+")", width-runewidth.StringWidth(fc.Name)-2, "…)"))
	if !fc.HasResult() {
		return header
	}

	lines := strings.Split(strings.TrimRight(fc.Result, "\n"), "\n")
	if len(lines) > maxResultLines {
		more := len(lines) - maxResultLines
		lines = append(lines[:maxResultLines], fmt.Sprintf("… %d more lines", more))
	}
	style := DimStyle
	if strings.HasPrefix(fc.Result, "Error:") {
		style = ErrorStyle
	}
	for i, line := range lines {
		lines[i] = style.Render("  → " + runewidth.Truncate(line, width-4, "…"))
	}
	return header + "\n" + strings.Join(lines, "\n")
}

// Tail renders the not yet committed part of a streamed reply as is.
func Tail(tail string) string {
	return DimStyle.Render(tail)
}

// Warning renders a non-fatal session warning.
func Warning(msg string) string {
	return WarningStyle.Render("! " + msg)
}

// Error renders a terminal failure.
func Error(msg string) string {
	return ErrorStyle.Render("✗ " + msg)
}
