package corpus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/Veraticus/the-model-must-learn/internal/model"
)

func TestBuild(t *testing.T) {
	examples := []model.TrainingExample{
		{Text: "hello", PredictedLabel: "greet"},
		{Text: "book a flight to Paris", PredictedLabel: "book_flight", Entities: model.Entities{"city": "Paris"}},
		{Text: "hey  there", PredictedLabel: "greet"},
	}

	doc := Build(examples)

	assert.Equal(t, FormatVersion, doc.Version)
	require.Len(t, doc.NLU, 2)
	assert.Equal(t, "book_flight", doc.NLU[0].Intent)
	assert.Equal(t, ExampleList{"book a flight to [Paris](city)"}, doc.NLU[0].Examples)
	assert.Equal(t, "greet", doc.NLU[1].Intent)
	assert.Equal(t, ExampleList{"hello", "hey there"}, doc.NLU[1].Examples)
	assert.Equal(t, 3, doc.Samples())
}

func TestAnnotate(t *testing.T) {
	tests := []struct {
		entities model.Entities
		name     string
		text     string
		want     string
	}{
		{nil, "no entities", "play jazz", "play jazz"},
		{model.Entities{"genre": "jazz"}, "single entity", "play jazz", "play [jazz](genre)"},
		{model.Entities{"genre": "rock"}, "value not in text", "play jazz", "play jazz"},
		{model.Entities{"genre": ""}, "empty value", "play jazz", "play jazz"},
		{
			model.Entities{"from": "Boston", "to": "Denver"},
			"two entities",
			"fly from Boston to Denver",
			"fly from [Boston](from) to [Denver](to)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, annotate(tt.text, tt.entities))
		})
	}
}

func TestDocumentYAML(t *testing.T) {
	doc := Build([]model.TrainingExample{
		{Text: "hi", PredictedLabel: "greet"},
		{Text: "bye", PredictedLabel: "goodbye"},
	})

	out, err := yaml.Marshal(doc)
	require.NoError(t, err)
	assert.Contains(t, string(out), "intent: greet")
	assert.Contains(t, string(out), "examples: |")
	assert.Contains(t, string(out), "- hi")

	var decoded Document
	require.NoError(t, yaml.Unmarshal(out, &decoded))
	assert.Equal(t, doc, decoded)
}

func TestExampleListRejectsSequence(t *testing.T) {
	var doc Document
	err := yaml.Unmarshal([]byte("version: \"3.1\"\nnlu:\n- intent: greet\n  examples:\n  - hi\n"), &doc)
	assert.Error(t, err)
}
