package parser

import (
	"strings"
	"unicode"

	"github.com/google/uuid"

	"otchat/model"
)

// ToolCallBlockType is the fence tag models use to invoke a tool when the
// fenced tool-call style is configured:
//
//	```tool_call
//	web_search {query: "golang generics"}
//	```
//
// The function name may also be given in the fence header
// ("```tool_call web_search") with only the arguments in the body.
const ToolCallBlockType = "tool_call"

// ToolCallRewriter returns a BlockRewriter that turns closed tool_call
// blocks into function-call parts. newID defaults to random UUIDs.
func ToolCallRewriter(newID func() string) BlockRewriter {
	if newID == nil {
		newID = uuid.NewString
	}
	return func(part model.MessagePart) model.MessagePart {
		if part.Type != ToolCallBlockType {
			return part
		}
		name, args := splitInvocation(part)
		if name == "" {
			return part
		}
		return model.NewFunctionCallPart(model.FunctionCall{
			ID:   newID(),
			Name: name,
			Args: args,
		})
	}
}

func splitInvocation(part model.MessagePart) (string, string) {
	content := strings.TrimSpace(part.Content)
	if part.TypeExtra != "" {
		return strings.TrimSpace(part.TypeExtra), content
	}
	i := strings.IndexFunc(content, unicode.IsSpace)
	if i < 0 {
		return content, ""
	}
	return content[:i], strings.TrimSpace(content[i:])
}
