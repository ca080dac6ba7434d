// Package parser turns a streamed model reply into typed message parts.
//
// The Parser is line oriented and single pass: text is buffered until a
// newline arrives, every complete line is classified once, and a correctly
// closed fence is never revisited. Because only complete lines are
// processed, the result does not depend on how the stream was chunked.
//
//	p := parser.New(parser.WithThinkTokens("<think>", "</think>"))
//	for chunk := range stream {
//	    p.Push(chunk)
//	    parts, tail := p.State() // live preview
//	}
//	parts := p.Finish()
package parser

import (
	"regexp"
	"strings"
	"unicode"

	"otchat/model"
)

var fenceRe = regexp.MustCompile("^([ \t]*)(`{3,})(.*)$")

// BlockRewriter may replace a fenced block when it closes.
type BlockRewriter func(model.MessagePart) model.MessagePart

// Option configures a Parser.
type Option func(*Parser)

// WithThinkTokens enables reasoning blocks delimited by the model-specific
// open and close tokens. An empty open token disables them.
func WithThinkTokens(open, close string) Option {
	return func(p *Parser) {
		p.thinkOpen = open
		p.thinkClose = close
	}
}

// WithBlockRewriter installs a hook applied to each fenced block as it
// closes.
func WithBlockRewriter(fn BlockRewriter) Option {
	return func(p *Parser) {
		p.rewrite = fn
	}
}

// Parser incrementally converts streamed text into message parts. It is
// not safe for concurrent use.
type Parser struct {
	thinkOpen  string
	thinkClose string
	rewrite    BlockRewriter

	parts []model.MessagePart
	cur   model.MessagePart
	// fence is the backtick count of the fence that opened cur, 0 when cur
	// was not opened by a fence.
	fence int
	buf   string

	finished bool
	final    []model.MessagePart
}

// New returns a parser positioned in an empty prose part.
func New(opts ...Option) *Parser {
	p := &Parser{}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Push appends a chunk of streamed text and processes every complete line.
// Pushing after Finish is a no-op.
func (p *Parser) Push(chunk string) {
	if p.finished {
		return
	}
	p.buf += chunk
	for {
		i := strings.IndexByte(p.buf, '\n')
		if i < 0 {
			return
		}
		line := strings.TrimSuffix(p.buf[:i], "\r")
		p.buf = p.buf[i+1:]
		p.processLine(line)
	}
}

// State returns the committed parts followed by the in-progress part, plus
// the not yet newline-terminated tail of the stream.
func (p *Parser) State() ([]model.MessagePart, string) {
	if p.finished {
		return model.CloneParts(p.final), ""
	}
	parts := make([]model.MessagePart, 0, len(p.parts)+1)
	parts = append(parts, p.parts...)
	parts = append(parts, p.cur)
	return parts, p.buf
}

// Finish flushes the stream and returns the final parts. Whitespace-only
// prose parts are dropped and an unclosed block is emitted as it stands.
// Calling Finish again returns the same parts.
func (p *Parser) Finish() []model.MessagePart {
	if p.finished {
		return model.CloneParts(p.final)
	}
	p.Push("\n")

	last := p.cur
	last.Content = trimRight(last.Content)
	all := append(p.parts, last)

	final := make([]model.MessagePart, 0, len(all))
	for _, part := range all {
		if part.Kind() == model.KindText && strings.TrimSpace(part.Content) == "" {
			continue
		}
		final = append(final, part)
	}

	p.parts = nil
	p.cur = model.MessagePart{}
	p.buf = ""
	p.final = final
	p.finished = true
	return model.CloneParts(final)
}

func (p *Parser) processLine(line string) {
	if p.thinkOpen != "" && p.cur.Kind() == model.KindText && strings.HasPrefix(line, p.thinkOpen) {
		p.commit(false)
		p.cur = model.MessagePart{Type: model.TypeThink}
		p.fence = 0
		line = line[len(p.thinkOpen):]
		if strings.TrimSpace(line) == "" {
			return
		}
	}

	if p.cur.Kind() == model.KindThink && p.fence == 0 {
		i := -1
		if p.thinkClose != "" {
			i = strings.Index(line, p.thinkClose)
		}
		if i < 0 {
			p.appendLine(line)
			return
		}
		if before := line[:i]; strings.TrimSpace(before) != "" {
			p.appendLine(before)
		}
		p.commit(false)
		p.cur = model.MessagePart{Type: model.TypeText}
		line = line[i+len(p.thinkClose):]
		if strings.TrimSpace(line) == "" {
			return
		}
	}

	if m := fenceRe.FindStringSubmatch(line); m != nil {
		indent, ticks, rest := m[1], len(m[2]), m[3]
		switch {
		case p.cur.Kind() == model.KindText && !strings.Contains(rest, "`"):
			p.commit(false)
			blockType, blockExtra := fenceType(splitHeader(rest))
			p.cur = model.MessagePart{Type: blockType, TypeExtra: blockExtra, Indent: indent}
			p.fence = ticks
			return
		case p.fence > 0 && ticks >= p.fence && strings.TrimSpace(rest) == "":
			p.commit(true)
			p.cur = model.MessagePart{Type: model.TypeText}
			p.fence = 0
			return
		}
	}

	if p.cur.Indent != "" {
		line = strings.TrimPrefix(line, p.cur.Indent)
	}
	p.appendLine(line)
}

func (p *Parser) appendLine(line string) {
	p.cur.Content += line + "\n"
}

// commit closes the current part. Closed fenced blocks go through the
// rewrite hook.
func (p *Parser) commit(closedFence bool) {
	part := p.cur
	part.Content = trimRight(part.Content)
	if closedFence && p.rewrite != nil && part.Kind() == model.KindBlock {
		part = p.rewrite(part)
	}
	p.parts = append(p.parts, part)
}

func splitHeader(rest string) (string, string) {
	rest = strings.TrimSpace(rest)
	if rest == "" {
		return model.TypePlaintext, ""
	}
	i := strings.IndexFunc(rest, unicode.IsSpace)
	if i < 0 {
		return rest, ""
	}
	return rest[:i], strings.TrimSpace(rest[i:])
}

// fenceType keeps fenced blocks out of the reserved part types. A block
// tagged "function_call", "think" or "image" stays a literal block tagged
// plaintext with the original tag as its extra.
func fenceType(blockType, blockExtra string) (string, string) {
	switch blockType {
	case model.TypeThink, model.TypeFunctionCall, model.TypeImage:
		return model.TypePlaintext, strings.TrimSpace(blockType + " " + blockExtra)
	}
	return blockType, blockExtra
}

func trimRight(s string) string {
	return strings.TrimRightFunc(s, unicode.IsSpace)
}
