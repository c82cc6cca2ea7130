package tool

import (
	"context"
	"strings"
	"unicode/utf16"
)

const calculatorHint = "Invalid expression. Use only numbers and + - * / ( ) ."

// Calculator evaluates basic arithmetic.
func Calculator() *Tool {
	return &Tool{
		Name:        "calculator",
		Description: "Evaluate basic math expressions. Input example: '19 * 7 + 4'.",
		Params: []Param{{
			Name:        "expression",
			Type:        TypeString,
			Required:    true,
			Description: "Math expression to evaluate",
			Pattern:     `^[0-9+\-*/().\s]+$`,
			Hint:        calculatorHint,
		}},
		Fn: func(_ context.Context, args Args) (any, error) {
			v, err := Evaluate(args.String("expression"))
			if err != nil {
				return nil, &ToolInputError{Param: "expression", Message: calculatorHint}
			}
			return FormatNumber(v), nil
		},
	}
}

// ToLower lowercases text.
func ToLower() *Tool {
	return textTool("toLower", "Convert text to lowercase.", "Text to lowercase",
		func(s string) any { return strings.ToLower(s) })
}

// WordCount counts whitespace-separated words.
func WordCount() *Tool {
	return textTool("wordCount", "Count the number of words in a piece of text.", "Text to count words in",
		func(s string) any { return FormatNumber(float64(countWords(s))) })
}

// Stats is the output of the text_stats tool.
type Stats struct {
	WordCount      int `json:"wordCount"`
	CharacterCount int `json:"characterCount"`
	SentenceCount  int `json:"sentenceCount"`
}

// TextStats reports word, character and sentence counts. Sentences are the
// pieces between periods, so "a. b." counts three. Characters are UTF-16
// code units.
func TextStats() *Tool {
	return textTool("text_stats", "Get the number of words, characters, and sentences in a piece of text.", "Text to get stats for",
		func(s string) any {
			return Stats{
				WordCount:      countWords(s),
				CharacterCount: len(utf16.Encode([]rune(s))),
				SentenceCount:  len(strings.Split(s, ".")),
			}
		})
}

// NormalizeText lowercases and trims text.
func NormalizeText() *Tool {
	return textTool("normalize_text", "Normalize text by converting to lowercase and removing whitespace.", "Text to normalize",
		func(s string) any { return strings.TrimSpace(strings.ToLower(s)) })
}

// Builtins returns a registry with every built-in tool.
func Builtins() *Registry {
	return NewRegistry().MustRegister(Calculator(), ToLower(), WordCount(), TextStats(), NormalizeText())
}

func textTool(name, desc, paramDesc string, fn func(string) any) *Tool {
	return &Tool{
		Name:        name,
		Description: desc,
		Params:      []Param{{Name: "text", Type: TypeString, Required: true, Description: paramDesc}},
		Fn: func(_ context.Context, args Args) (any, error) {
			return fn(args.String("text")), nil
		},
	}
}

func countWords(s string) int {
	return len(strings.Fields(s))
}
