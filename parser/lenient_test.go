package parser

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestParseLenient(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  any
	}{
		{"strict json", `{"a": 1, "b": [true, null, "x"]}`, map[string]any{"a": 1.0, "b": []any{true, nil, "x"}}},
		{"unquoted keys", `{query: "go", limit: 5}`, map[string]any{"query": "go", "limit": 5.0}},
		{"trailing commas", `{a: [1, 2,], }`, map[string]any{"a": []any{1.0, 2.0}}},
		{"single quotes", `{'a': 'it\'s'}`, map[string]any{"a": "it's"}},
		{"backticks", "{cmd: `ls -la`}", map[string]any{"cmd": "ls -la"}},
		{"triple quotes", `{code: """line "one"
line two"""}`, map[string]any{"code": "line \"one\"\nline two"}},
		{"comments", "{\n  // the query\n  q: 'x', /* inline */ n: -2.5\n}", map[string]any{"q": "x", "n": -2.5}},
		{"python literals", `{a: True, b: None}`, map[string]any{"a": true, "b": nil}},
		{"bare word value", `{mode: fast}`, map[string]any{"mode": "fast"}},
		{"escapes", `"tab\thereA"`, "tab\thereA"},
		{"empty string", `{a: ""}`, map[string]any{"a": ""}},
		{"number", `42`, 42.0},
		{"literal words as keys", `{true: 1, null: 2}`, map[string]any{"true": 1.0, "null": 2.0}},
		{"surrogate pair", `{"text": "\ud83d\ude00"}`, map[string]any{"text": "😀"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseLenient(tt.input)
			if err != nil {
				t.Fatalf("ParseLenient(%q) error = %v", tt.input, err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParseLenient(%q) = %#v, want %#v", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseLenientErrors(t *testing.T) {
	inputs := []string{
		`{a: 1`,
		`{a 1}`,
		`"open`,
		`{a: 1} extra`,
		`[1 2]`,
		`{: 1}`,
	}
	for _, input := range inputs {
		if _, err := ParseLenient(input); err == nil {
			t.Errorf("ParseLenient(%q) should fail", input)
		}
	}
}

func TestParseLenientArgs(t *testing.T) {
	args, err := ParseLenientArgs("  ")
	if err != nil || len(args) != 0 {
		t.Errorf("empty payload = %v, %v", args, err)
	}

	args, err = ParseLenientArgs(`{text: "hi"}`)
	if err != nil || args["text"] != "hi" {
		t.Errorf("ParseLenientArgs = %v, %v", args, err)
	}

	if _, err := ParseLenientArgs(`[1]`); err == nil {
		t.Error("array payload should be rejected")
	}
}

func TestParseLenientUnicodeEscapesMatchJSON(t *testing.T) {
	inputs := []string{
		`"\u00e9t\u00e9"`,
		`"\ud83d\ude00 and \ud83c\udf55"`,
		`"lone \ud83d high"`,
		`"lone \ude00 low"`,
		`"\ud83d\u0041"`,
	}
	for _, input := range inputs {
		var want any
		if err := json.Unmarshal([]byte(input), &want); err != nil {
			t.Fatalf("json.Unmarshal(%q) error = %v", input, err)
		}
		got, err := ParseLenient(input)
		if err != nil {
			t.Fatalf("ParseLenient(%q) error = %v", input, err)
		}
		if got != want {
			t.Errorf("ParseLenient(%q) = %q, want %q", input, got, want)
		}
	}
}
