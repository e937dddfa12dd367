package usecase

import "dcode-agent/internal/domain"

// RemoteHistory converts the tail of a transcript into the role-tagged
// message list sent to the completion service. The most recent maxTurns
// turns are kept, oldest discarded first. Option lists are not
// included, and no system directive is added here; the resolver
// prepends the persona separately.
func RemoteHistory(transcript []domain.Turn, maxTurns int) []domain.ChatMessage {
	if maxTurns <= 0 || len(transcript) == 0 {
		return nil
	}
	if len(transcript) > maxTurns {
		transcript = transcript[len(transcript)-maxTurns:]
	}

	msgs := make([]domain.ChatMessage, 0, len(transcript))
	for _, turn := range transcript {
		role := "assistant"
		if turn.Speaker == domain.SpeakerUser {
			role = "user"
		}
		msgs = append(msgs, domain.ChatMessage{Role: role, Content: turn.Text})
	}
	return msgs
}
