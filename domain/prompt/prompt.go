// Package prompt holds the RAG Pipeline's prompt templates as data
// (string components selected by an enum) rather than as code paths, so
// that a template can be edited and round-trip tested without touching
// the pipeline itself (spec §9).
package prompt

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// QueryType selects which template variant the RAG Pipeline assembles.
type QueryType string

// Query types, mirrored from the Query Processor's classification (§4.G).
const (
	QueryTypeMemoryRecall  QueryType = "memory_recall"
	QueryTypePattern       QueryType = "pattern"
	QueryTypeRecommendation QueryType = "recommendation"
	QueryTypeGeneral       QueryType = "general"
)

// Template holds the named blocks a prompt is assembled from.
type Template struct {
	Name         string `yaml:"name"`
	System       string `yaml:"system"`
	Instruction  string `yaml:"instruction"`
	NoContext    string `yaml:"no_context"`
}

//go:embed templates.yaml
var templatesYAML []byte

// templateSet is the package-level, parsed set of templates. Templates
// are loaded once from the embedded YAML so that editing templates.yaml
// does not require touching Go code.
var templateSet map[string]Template

func init() {
	var raw struct {
		Templates []Template `yaml:"templates"`
	}
	if err := yaml.Unmarshal(templatesYAML, &raw); err != nil {
		panic(fmt.Sprintf("prompt: parse embedded templates.yaml: %v", err))
	}
	templateSet = make(map[string]Template, len(raw.Templates))
	for _, t := range raw.Templates {
		templateSet[t.Name] = t
	}
}

// Selector picks a template name for a query type. query_type values
// "pattern" and "recommendation" select the analytical variant; all
// search_* intents (query_type memory_recall) use the default variant;
// anything else falls back to conversational.
func Selector(qt QueryType) string {
	switch qt {
	case QueryTypeMemoryRecall:
		return "default"
	case QueryTypePattern, QueryTypeRecommendation:
		return "analytical"
	default:
		return "conversational"
	}
}

// Lookup returns the named template, falling back to "default" if the
// name is unknown.
func Lookup(name string) Template {
	if t, ok := templateSet[name]; ok {
		return t
	}
	return templateSet["default"]
}

// NoContextTemplate returns the dedicated "no context was retrieved"
// template used when the Context Formatter's context block is empty.
func NoContextTemplate() Template {
	return templateSet["no_context"]
}

// Assemble concatenates the system block, the retrieved context block,
// the instruction block, and the user question into the final prompt
// sent to the LLM Provider. When context is empty, callers should select
// NoContextTemplate instead so the instruction acknowledges the absence.
func Assemble(t Template, contextBlock, question string) string {
	var b strings.Builder
	b.WriteString(t.System)
	b.WriteString("\n\n")
	if contextBlock != "" {
		b.WriteString(contextBlock)
		b.WriteString("\n\n")
	}
	b.WriteString(t.Instruction)
	b.WriteString("\n\nQuestion: ")
	b.WriteString(question)
	return b.String()
}
