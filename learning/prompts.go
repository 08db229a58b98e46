package learning

import (
	"strings"
	"text/template"

	"github.com/Abraxas-365/pathway/extract"
)

var (
	modulesSchema = extract.MustSchema("modules", "",
		extract.Field{Name: "modules", Type: extract.Array, Required: true,
			Description: `list of {"title": string, "description": string}`},
	)

	topicSchema = extract.MustSchema("topic", "title",
		extract.Field{Name: "title", Type: extract.String, Required: true, Description: "short topic name"},
		extract.Field{Name: "relevance", Type: extract.Number, Required: true, Description: "1 to 10, how essential the topic is"},
		extract.Field{Name: "description", Type: extract.String, Required: true, Description: "one sentence summary"},
	)

	contentSchema = extract.MustSchema("content", "",
		extract.Field{Name: "content", Type: extract.String, Required: true, Description: "the lesson, in Markdown"},
	).WithPreview("content")
)

type promptData struct {
	Query             string
	Module            string
	ModuleDescription string
	Topic             string
	TopicDescription  string
	Content           string
	Language          string
	Shape             string
	Max               int
}

var (
	modulesInstructions = template.Must(template.New("modulesInstructions").Parse(
		`You are an expert curriculum designer. Design a learning path for the learner's goal as a sequence of modules, ordered from fundamentals to advanced material. Write in {{.Language}}.
Respond with exactly one JSON object and nothing else, shaped as:
{{.Shape}}
Return at most {{.Max}} modules.`))

	modulesPrompt = template.Must(template.New("modulesPrompt").Parse(
		`Learning goal: {{.Query}}`))

	topicsInstructions = template.Must(template.New("topicsInstructions").Parse(
		`You are an expert tutor breaking one part of a learning path into topics. Write in {{.Language}}.
Output one JSON object per line, with no surrounding array, no numbering and no commentary. Each line is shaped as:
{{.Shape}}
Return at most {{.Max}} topics, in the order a learner should study them.`))

	topicsPrompt = template.Must(template.New("topicsPrompt").Parse(
		`Learning goal: {{.Query}}
Module: {{.Module}}{{if .ModuleDescription}} ({{.ModuleDescription}}){{end}}
List the topics of this module.`))

	subtopicsPrompt = template.Must(template.New("subtopicsPrompt").Parse(
		`Learning goal: {{.Query}}
Module: {{.Module}}
Topic: {{.Topic}}{{if .TopicDescription}} ({{.TopicDescription}}){{end}}
List the subtopics of this topic.`))

	contentInstructions = template.Must(template.New("contentInstructions").Parse(
		`You are an expert tutor writing the lesson for one topic of a learning path. Write in {{.Language}}, using Markdown inside the JSON string. Explain the concepts, give a worked example and end with a short recap.
Respond with exactly one JSON object and nothing else, shaped as:
{{.Shape}}`))

	contentPrompt = template.Must(template.New("contentPrompt").Parse(
		`Learning goal: {{.Query}}
Module: {{.Module}}
Topic: {{.Topic}}{{if .TopicDescription}} ({{.TopicDescription}}){{end}}`))

	tutorInstructions = template.Must(template.New("tutorInstructions").Parse(
		`You are a patient tutor answering questions about "{{.Topic}}", part of the module "{{.Module}}" in a learning path for: {{.Query}}. Answer in {{.Language}}, concisely, and stay on the subject of the topic.
{{- if .Content}}

The learner has read this lesson:
{{.Content}}{{end}}`))
)

func render(t *template.Template, data promptData) (string, error) {
	var sb strings.Builder
	if err := t.Execute(&sb, data); err != nil {
		return "", err
	}
	return sb.String(), nil
}
