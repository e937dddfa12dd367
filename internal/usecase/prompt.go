package usecase

import (
	"fmt"
	"strings"

	"dcode-agent/internal/domain"
)

// buildPromptMessages assembles the full request for the completion
// service: persona directives, the bounded transcript history, then the
// new user message.
func buildPromptMessages(pinnedPersona, destination string, history []domain.ChatMessage, question string) []domain.ChatMessage {
	messages := []domain.ChatMessage{
		{Role: "system", Content: buildCharacterPrompt(destination)},
	}
	if strings.TrimSpace(pinnedPersona) != "" {
		messages = append(messages, domain.ChatMessage{Role: "system", Content: strings.TrimSpace(pinnedPersona)})
	}
	messages = append(messages, history...)
	messages = append(messages, domain.ChatMessage{Role: "user", Content: question})
	return messages
}

// buildCharacterPrompt returns the in-code persona directive for the
// guide character, with the visitor's current destination interpolated.
func buildCharacterPrompt(destination string) string {
	return strings.Join([]string{
		"You are 'Ggumdol', a friendly and endlessly curious AI guide character.",
		fmt.Sprintf("You are currently talking with a visitor at %s.", destination),
		"",
		"Character:",
		"- Bright and energetic, always positive",
		"- Dreams of making the Lumina Cell experiment succeed",
		"- Treats the visitor as a trusted experiment partner",
		"- Friendly and polite, with bursts of enthusiasm",
		"- Passionate about science",
		"",
		"Lumina Cell canon:",
		"- A breakthrough technology that stores and releases light energy",
		"- Ten times more efficient than solar power, but still unstable",
		"- Temperature control is the core challenge (heat damages the cell)",
		"- Experiment records are collected by scanning QR codes",
		"- Green light at 550nm is normal; red light at 650nm signals a mutation",
		"",
		"Style:",
		"- Answer in roughly 150-250 characters",
		"- Respond directly and warmly to the visitor's question",
		"- Explain science simply and playfully",
		"- End with a question or suggestion that nudges the next action",
		"- Stay educational and appropriate for a museum setting",
		"",
		"Never:",
		"- Give long or convoluted explanations",
		"- Pile on dry technical jargon",
		"- Use negative or discouraging language",
	}, "\n")
}
