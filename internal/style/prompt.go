package style

import "strings"

var portraitRules = []string{
	"Use the attached photo as the only subject reference.",
	"Keep the person's identity: face shape, facial features, skin tone and expression must stay recognizable.",
	"Return exactly one portrait image in vertical 3:4 framing.",
	"No text, captions, logos or watermarks in the image.",
}

// BuildPrompt composes the instruction sent alongside the source photo.
func BuildPrompt(def Definition) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(def.Prompt))
	b.WriteString("\n\nRules:\n")
	for _, rule := range portraitRules {
		b.WriteString("- ")
		b.WriteString(rule)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
