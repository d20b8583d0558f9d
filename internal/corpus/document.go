// Package corpus writes the approved training corpus as a Rasa-style NLU
// YAML training file and locates previously written exports.
package corpus

import (
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Veraticus/the-model-must-learn/internal/model"
)

// FormatVersion is the training data format version written to every export.
const FormatVersion = "3.1"

// Document is the top-level NLU training file.
type Document struct {
	Version string        `yaml:"version"`
	NLU     []IntentBlock `yaml:"nlu"`
}

// IntentBlock groups the example utterances of one intent.
type IntentBlock struct {
	Intent   string      `yaml:"intent"`
	Examples ExampleList `yaml:"examples"`
}

// ExampleList is written as a literal block of "- utterance" lines.
type ExampleList []string

// MarshalYAML implements yaml.Marshaler.
func (l ExampleList) MarshalYAML() (any, error) {
	var b strings.Builder
	for _, ex := range l {
		b.WriteString("- ")
		b.WriteString(ex)
		b.WriteByte('\n')
	}
	return &yaml.Node{
		Kind:  yaml.ScalarNode,
		Style: yaml.LiteralStyle,
		Tag:   "!!str",
		Value: b.String(),
	}, nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (l *ExampleList) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("examples must be a block scalar, got kind %d at line %d", value.Kind, value.Line)
	}

	var out ExampleList
	for _, line := range strings.Split(value.Value, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		out = append(out, strings.TrimSpace(strings.TrimPrefix(line, "-")))
	}
	*l = out
	return nil
}

// Samples returns the number of utterances in the document.
func (d Document) Samples() int {
	var n int
	for _, block := range d.NLU {
		n += len(block.Examples)
	}
	return n
}

// Build groups examples by label into a document. Intents are sorted by name
// and utterances keep their input order.
func Build(examples []model.TrainingExample) Document {
	byIntent := make(map[string]ExampleList)
	for _, ex := range examples {
		byIntent[ex.PredictedLabel] = append(byIntent[ex.PredictedLabel], annotate(ex.Text, ex.Entities))
	}

	intents := make([]string, 0, len(byIntent))
	for intent := range byIntent {
		intents = append(intents, intent)
	}
	sort.Strings(intents)

	doc := Document{Version: FormatVersion, NLU: make([]IntentBlock, 0, len(intents))}
	for _, intent := range intents {
		doc.NLU = append(doc.NLU, IntentBlock{Intent: intent, Examples: byIntent[intent]})
	}
	return doc
}

// annotate marks entity values inline as [value](entity).
func annotate(text string, entities model.Entities) string {
	text = strings.Join(strings.Fields(text), " ")
	if len(entities) == 0 {
		return text
	}

	names := make([]string, 0, len(entities))
	for name := range entities {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		value := entities[name]
		if value == "" {
			continue
		}
		idx := strings.Index(text, value)
		if idx < 0 || (idx > 0 && text[idx-1] == '[') {
			continue
		}
		text = text[:idx] + "[" + value + "](" + name + ")" + text[idx+len(value):]
	}
	return text
}
