package domain

// Speaker identifies who produced a turn.
type Speaker string

const (
	SpeakerUser Speaker = "user"
	SpeakerBot  Speaker = "bot"
)

// Turn is one message in a conversation transcript.
// Options is non-empty only on bot turns produced from the scripted
// scenario table or the opening greeting; free-text completions never
// carry options.
type Turn struct {
	ID      int      `json:"id"`
	Text    string   `json:"text"`
	Speaker Speaker  `json:"speaker"`
	Options []string `json:"options"`
}

// BotTurnDraft is a bot turn before it has been assigned an ID and
// appended to a transcript.
type BotTurnDraft struct {
	Text    string
	Options []string
}

// InputKind distinguishes a tapped option from free-typed text.
type InputKind string

const (
	InputOption   InputKind = "option"
	InputFreeText InputKind = "text"
)

// UserInput is a single user submission.
type UserInput struct {
	Kind  InputKind
	Value string
}
