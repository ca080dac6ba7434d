package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mattn/go-runewidth"

	"otchat/config"
	"otchat/model"
	"otchat/parser"
	"otchat/provider"
)

// TitleWidth is the display width of a title derived from the first user
// message when no model could name the chat.
const TitleWidth = 40

// DoneSentinel is what the next-question model answers once the goal of an
// uphurry request is reached.
const DoneSentinel = "DONE"

const (
	titlePrompt = "You name conversations. Reply with a short title of at most six words " +
		"for the conversation below. Reply with the title only, without quotes or punctuation at the end."

	nextQuestionPrompt = "You are steering an assistant towards a goal on behalf of the user. " +
		"Given the goal and the conversation so far, write the next instruction the user " +
		"would send to get closer to the goal. Reply with the instruction only. " +
		"If the goal has been reached, reply with " + DoneSentinel + " and nothing else."

	memoryPrompt = "You keep notes about the user. From the message below, extract durable facts " +
		"about the user worth remembering in later conversations (name, preferences, projects, tools). " +
		"Reply with one fact per line, each starting with \"- \". " +
		"Skip facts already known. If there is nothing worth remembering, reply with NONE."
)

// Generator runs the small single-shot completions around a chat: titles,
// uphurry instructions and memory extraction. Each request walks the model
// chain like a RequestAction does.
type Generator struct {
	Models  []config.ModelConfig
	Factory provider.Factory
}

// NewGenerator returns a generator over models.
func NewGenerator(models []config.ModelConfig, factory provider.Factory) *Generator {
	if factory == nil {
		factory = provider.NewProvider
	}
	return &Generator{Models: models, Factory: factory}
}

// Title names a chat from its first exchange. It never fails: when no model
// answers, the first user message is truncated instead.
func (g *Generator) Title(ctx context.Context, history model.ChatHistory) string {
	var sb strings.Builder
	for _, pair := range history.MsgPairs {
		if pair.User != nil {
			fmt.Fprintf(&sb, "User: %s\n", model.PlainText(pair.User.Parts))
		}
		if pair.Assistant != nil {
			fmt.Fprintf(&sb, "Assistant: %s\n", model.PlainText(pair.Assistant.Parts))
		}
		break
	}

	reply, err := g.complete(ctx, titlePrompt, sb.String())
	if err == nil {
		if title := cleanTitle(reply); title != "" {
			return title
		}
	} else if config.DebugLog != nil {
		config.DebugLog.Printf("[Action] Title generation failed: %v", err)
	}
	return FallbackTitle(history)
}

// FallbackTitle derives a title from the first user message.
func FallbackTitle(history model.ChatHistory) string {
	text := strings.Join(strings.Fields(history.FirstUserText()), " ")
	if text == "" {
		return "New chat"
	}
	return runewidth.Truncate(text, TitleWidth, "…")
}

func cleanTitle(reply string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(reply), "\n")
	line = strings.Trim(strings.TrimSpace(line), "\"'`*#")
	line = strings.TrimRight(line, ".!")
	return runewidth.Truncate(strings.TrimSpace(line), 2*TitleWidth, "…")
}

// NextQuestion asks for the next instruction towards goal. done reports the
// goal as reached.
func (g *Generator) NextQuestion(ctx context.Context, history model.ChatHistory, goal string) (question string, done bool, err error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Goal: %s\n\nConversation:\n", goal)
	for _, pair := range history.MsgPairs {
		if pair.User != nil {
			fmt.Fprintf(&sb, "User: %s\n", model.PlainText(pair.User.Parts))
		}
		if pair.Assistant != nil {
			fmt.Fprintf(&sb, "Assistant: %s\n", model.PlainText(pair.Assistant.Parts))
		}
	}

	reply, err := g.complete(ctx, nextQuestionPrompt, sb.String())
	if err != nil {
		return "", false, err
	}
	reply = strings.TrimSpace(reply)
	if isDone(reply) {
		return "", true, nil
	}
	return reply, false, nil
}

func isDone(reply string) bool {
	return reply == "" || strings.EqualFold(strings.TrimRight(reply, ".!"), DoneSentinel)
}

// ExtractMemory returns new facts about the user found in text.
func (g *Generator) ExtractMemory(ctx context.Context, text string, known []string) ([]string, error) {
	var sb strings.Builder
	if len(known) > 0 {
		sb.WriteString("Already known:\n")
		for _, fact := range known {
			fmt.Fprintf(&sb, "- %s\n", fact)
		}
		sb.WriteString("\n")
	}
	fmt.Fprintf(&sb, "Message:\n%s", text)

	reply, err := g.complete(ctx, memoryPrompt, sb.String())
	if err != nil {
		return nil, err
	}
	return parseFacts(reply, known), nil
}

func parseFacts(reply string, known []string) []string {
	seen := make(map[string]bool, len(known))
	for _, k := range known {
		seen[strings.ToLower(k)] = true
	}
	var facts []string
	for _, line := range strings.Split(reply, "\n") {
		line = strings.TrimSpace(line)
		fact, ok := strings.CutPrefix(line, "- ")
		if !ok {
			fact, ok = strings.CutPrefix(line, "* ")
		}
		fact = strings.TrimSpace(fact)
		if !ok || fact == "" || seen[strings.ToLower(fact)] {
			continue
		}
		seen[strings.ToLower(fact)] = true
		facts = append(facts, fact)
	}
	return facts
}

// complete sends a single user message and returns the reply prose, think
// blocks stripped.
func (g *Generator) complete(ctx context.Context, system, user string) (string, error) {
	if len(g.Models) == 0 {
		return "", errors.New("no models configured")
	}

	wire := []model.WireMessage{{
		Role:  provider.RoleUser,
		Parts: []model.WirePart{{Kind: model.WireText, Text: user}},
	}}

	var failures []error
	for _, mc := range g.Models {
		p, err := g.Factory(mc)
		if err != nil {
			failures = append(failures, err)
			continue
		}
		ps := parser.New(parser.WithThinkTokens(mc.ThinkOpen, mc.ThinkClose))
		_, err = p.ChatStream(ctx, system, wire, nil, model.StreamCallbacks{OnText: ps.Push})
		if err != nil {
			failures = append(failures, fmt.Errorf("model %s: %w", mc.ID, err))
			continue
		}
		return model.PlainText(ps.Finish()), nil
	}
	return "", pickError(failures)
}
