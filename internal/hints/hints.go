// Package hints produces teaching hints for failed runs.
//
// KeywordGenerator is deterministic: it buckets the diagnostic text into
// syntax, runtime or logical and returns canned guidance for that bucket.
// It never suggests a fix, only where to look.
package hints

import (
	"context"
	"fmt"
	"strings"
)

// Error categories reported in Result.ErrorType.
const (
	TypeSyntax  = "syntax"
	TypeRuntime = "runtime"
	TypeLogical = "logical"
	TypeNone    = "none"
)

// Request describes the failed run.
type Request struct {
	Code           string `json:"code"`
	Language       string `json:"language"`
	Error          string `json:"error"`
	ExpectedOutput string `json:"expectedOutput"`
}

type ConceptReference struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// Result is what a generator returns. Hints are ordered from vague to
// specific.
type Result struct {
	ErrorType    string             `json:"errorType"`
	Hints        []string           `json:"hints"`
	RootCause    string             `json:"rootCause"`
	Concepts     []ConceptReference `json:"conceptReferences"`
	MinimalPatch string             `json:"minimalPatch"`
}

// KeywordGenerator classifies by substring match on the lower-cased error.
type KeywordGenerator struct{}

func NewKeywordGenerator() *KeywordGenerator {
	return &KeywordGenerator{}
}

func (g *KeywordGenerator) Generate(ctx context.Context, req Request) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	language := req.Language
	if language == "" {
		language = "python"
	}

	kind := Classify(req.Error)
	res := &Result{
		ErrorType:    kind,
		Hints:        hintsFor(kind, language),
		Concepts:     conceptsFor(kind),
		MinimalPatch: "Focus on the error location and think about what the code should be doing there.",
	}
	if req.Error != "" {
		res.RootCause = fmt.Sprintf("Detected a %s issue in your code. Review the error message carefully.", kind)
	} else {
		res.RootCause = "Code appears to be working."
	}
	if req.ExpectedOutput != "" && kind == TypeLogical {
		// the most specific hint becomes the comparison
		res.Hints[len(res.Hints)-1] = "Compare your output line by line with the expected output"
	}
	return res, nil
}

// Classify maps a diagnostic to an error category. The checks run in order
// and the first match wins, so "SyntaxError" is syntax even though it also
// contains "error", and "IndentationError" is runtime because "error" is
// checked before "indentation".
func Classify(diagnostic string) string {
	if diagnostic == "" {
		return TypeNone
	}
	d := strings.ToLower(diagnostic)
	switch {
	case containsAny(d, "syntax", "unexpected", "invalid"):
		return TypeSyntax
	case containsAny(d, "runtime", "exception", "error"):
		return TypeRuntime
	case containsAny(d, "undefined", "not defined", "name"):
		return TypeSyntax
	case strings.Contains(d, "indentation"):
		return TypeSyntax
	default:
		return TypeLogical
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func hintsFor(kind, language string) []string {
	switch kind {
	case TypeSyntax:
		return []string{
			"Look at the structure of your code - something seems off with the syntax",
			"Check colons, brackets, parentheses, and indentation carefully",
			fmt.Sprintf("In %s, pay attention to proper statement formatting and required punctuation", language),
		}
	case TypeRuntime:
		return []string{
			"Your code runs but encounters an error during execution",
			"Check for issues like division by zero, accessing invalid indices, or type mismatches",
			"Trace through your code with sample input to find where it fails",
		}
	case TypeLogical:
		return []string{
			"Your code runs but doesn't produce the expected output",
			"Review your algorithm logic and loop conditions",
			"Add print statements to see intermediate values and trace the flow",
		}
	default:
		return []string{
			"No obvious errors detected in your code",
			"Check if the output matches what you expect",
			"Consider edge cases and boundary conditions",
		}
	}
}

func conceptsFor(kind string) []ConceptReference {
	switch kind {
	case TypeSyntax:
		return []ConceptReference{{Title: "Python Syntax", URL: "https://docs.python.org/3/tutorial/"}}
	case TypeRuntime:
		return []ConceptReference{{Title: "Exception Handling", URL: "https://docs.python.org/3/tutorial/errors.html"}}
	case TypeLogical:
		return []ConceptReference{{Title: "Debugging with pdb", URL: "https://docs.python.org/3/library/pdb.html"}}
	default:
		return []ConceptReference{}
	}
}
