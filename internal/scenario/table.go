// Package scenario holds the scripted Lumina Cell dialogue for the
// D-CODE tour guide. The table is closed and fixed at build time: every
// follow-up option is either another table key or TerminalOption, and
// unknown keys resolve to Default, so the conversation can never
// dead-end.
package scenario

import "fmt"

// Entry is one scripted exchange: the guide's reply to a selected
// option and the 1-3 options offered next.
type Entry struct {
	Response        string
	FollowUpOptions []string
}

// TerminalOption ends the scripted scenario and hands off to the
// ending flow. It is intercepted before resolution and never resolved
// against the table.
const TerminalOption = "Move on to the finale"

const (
	optWhatIsLuminaCell = "What is a Lumina Cell?"
	optHowDoesItWork    = "How does it work?"
	optWhyUnstable      = "Why isn't it stable yet?"
	optFindRecords      = "Let's find the experiment records together!"
	optHowToScan        = "How do I scan?"
	optFindQRCodes      = "I'll look for the QR codes!"
	optWhereToFind      = "Where can I find them?"
	optFirstTestedWhere = "Where was the Lumina Cell first tested?"
	optWhatShouldIDo    = "What should I do?"
	optWhereIsLab       = "Where is the laboratory?"
	optScanNow          = "I'll scan right now!"
	optScanComplete     = "Scan complete! Check the results"
	optWhatsDifferent   = "What's different?"
	optWhatDoesItMean   = "What does this mean?"
	optAnotherWay       = "Is there another way?"
	optAnotherQuestion  = "I have another question"
	optKeepTalking      = "Keep talking with Ggumdol"
)

var table = map[string]Entry{
	optWhatIsLuminaCell: {
		Response: "The Lumina Cell is a breakthrough technology that can store light energy and release it again! It's ten times more efficient than solar panels and can even glow in the dark. But it hasn't been stabilized yet, so we're still experimenting.",
		FollowUpOptions: []string{
			optHowDoesItWork,
			optWhyUnstable,
			optFindRecords,
		},
	},
	optHowDoesItWork: {
		Response: "The Lumina Cell has a special photonic crystal structure. When light hits it, it stores the energy and converts it back into light whenever it's needed. Like a solar panel and a battery rolled into one!",
		FollowUpOptions: []string{
			optWhyUnstable,
			optFindRecords,
			optAnotherQuestion,
		},
	},
	optWhyUnstable: {
		Response: "The light conversion process still generates far too much heat. That heat damages the cell and shortens its lifespan. Temperature control is the key challenge!",
		FollowUpOptions: []string{
			optFindRecords,
			optAnotherQuestion,
			optKeepTalking,
		},
	},
	optFindRecords: {
		Response: "Great! If you scan nearby, you'll see light waveforms, spectra, and even the reasons past experiments failed. We need to analyze them carefully to find our clues!",
		FollowUpOptions: []string{
			optHowToScan,
			optFindQRCodes,
			optAnotherWay,
		},
	},
	optHowToScan: {
		Response: "Press the camera button and point it at your surroundings - it analyzes automatically! It measures the light's wavelength, intensity, and direction so we can compare them with the experiment data.",
		FollowUpOptions: []string{
			optFindQRCodes,
			optScanNow,
			optAnotherWay,
		},
	},
	optFindQRCodes: {
		Response: "Good thinking! Please find the experiment-record QR codes scattered around. There are five records in total, and each one should cover a different stage of the experiment!",
		FollowUpOptions: []string{
			optScanNow,
			optWhereToFind,
			optAnotherWay,
		},
	},
	optWhereToFind: {
		Response: "They're hidden near the major exhibits inside the museum. Look especially around the light-themed exhibits, the science hall, and the restored laboratory space!",
		FollowUpOptions: []string{
			optScanNow,
			optAnotherWay,
			optKeepTalking,
		},
	},
	optFirstTestedWhere: {
		Response:        "Great question! The very first Lumina Cell experiment started in the Light Energy Laboratory.",
		FollowUpOptions: []string{optWhatShouldIDo, optWhereIsLab, optAnotherQuestion},
	},
	optWhatShouldIDo: {
		Response:        "Please find the experiment-record QR codes scattered around. There are five records in total.",
		FollowUpOptions: []string{optFindQRCodes, optWhereToFind, optScanNow},
	},
	optWhereIsLab: {
		Response: "The Light Energy Laboratory is at the far west end of the museum's second floor. It runs as a restoration space these days, but the original experiment equipment is still on display!",
		FollowUpOptions: []string{
			optWhatShouldIDo,
			optFindQRCodes,
			optScanNow,
		},
	},
	optScanNow: {
		Response: "Great! Press the camera button and capture your surroundings. It will analyze the light data automatically and compare it against the experiment records!",
		FollowUpOptions: []string{
			optScanComplete,
			optAnotherWay,
			optKeepTalking,
		},
	},
	optScanComplete: {
		Response: "Wow, fascinating data! The light's wavelength is coming out differently than expected. This doesn't match the experiment records. Something special must be happening here!",
		FollowUpOptions: []string{
			optWhatsDifferent,
			optScanNow,
			optFindQRCodes,
		},
	},
	optWhatsDifferent: {
		Response: "A healthy Lumina Cell should emit green light at 550nm, but right now we're detecting red light at 650nm. That phenomenon appears nowhere in the experiment records!",
		FollowUpOptions: []string{
			optWhatDoesItMean,
			optScanNow,
			optFindQRCodes,
		},
	},
	optWhatDoesItMean: {
		Response: "Maybe the Lumina Cell has mutated, or it could be reacting with another energy source. We need more data. Let's scan other spots and keep looking for QR codes!",
		FollowUpOptions: []string{
			optScanNow,
			optFindQRCodes,
			optKeepTalking,
		},
	},
	optAnotherWay: {
		Response: "Yes! Besides finding QR codes, you could ask the museum staff or read the exhibit descriptions closely. Sometimes clues turn up where you least expect them!",
		FollowUpOptions: []string{
			optFindQRCodes,
			optScanNow,
			optKeepTalking,
		},
	},
	optAnotherQuestion: {
		Response: "Of course! Ask me anything you're curious about. I've been waiting for someone to help with this experiment!",
		FollowUpOptions: []string{
			optWhatIsLuminaCell,
			optFindRecords,
			optFirstTestedWhere,
		},
	},
	optKeepTalking: {
		Response: "I'd love that! My dream is to make the Lumina Cell experiment succeed, and I really need your help!",
		FollowUpOptions: []string{
			optWhatIsLuminaCell,
			optFindRecords,
			optFirstTestedWhere,
		},
	},
}

// Lookup resolves a selected option against the table. Matching is
// exact and case-sensitive; callers substitute Default on a miss.
func Lookup(promptKey string) (Entry, bool) {
	e, ok := table[promptKey]
	return e, ok
}

// StarterOptions returns the three canonical options offered by the
// greeting and by every recovery path.
func StarterOptions() []string {
	return []string{optWhatIsLuminaCell, optFindRecords, optFirstTestedWhere}
}

// Default is substituted whenever a selected option is not a table key.
func Default() Entry {
	return Entry{
		Response:        "What an interesting question! Let me tell you more.",
		FollowUpOptions: StarterOptions(),
	}
}

// Greeting returns the seeded opening turn text, personalized when a
// nickname is known.
func Greeting(nickname string) string {
	prefix := ""
	if nickname != "" {
		prefix = fmt.Sprintf("%s, ", nickname)
	}
	return prefix + "you really came! Thank you for helping.\nThe Lumina Cell experiment began right here.\nWe need to find clues in the experiment records!"
}

// GreetingOptions returns the options attached to the greeting turn.
func GreetingOptions() []string {
	return StarterOptions()
}

// ScanExchange returns the fixed user/bot pair appended when the camera
// collaborator reports a completed scan. The reply's single option is
// the terminal sentinel.
func ScanExchange() (userText string, reply Entry) {
	return optScanComplete, Entry{
		Response:        "Thank you! Thanks to you, every secret of the Lumina Cell has been uncovered.\n\nPlease accept this gift as a token of my gratitude!",
		FollowUpOptions: []string{TerminalOption},
	}
}

// FreeTextFallback is the scripted reply used when the remote
// completion service is not configured at all; unlike the apology
// messages it re-offers the starter options.
func FreeTextFallback() Entry {
	return Entry{
		Response:        "That's a fascinating thought! If there's anything you're curious about the Lumina Cell, ask me anytime!",
		FollowUpOptions: StarterOptions(),
	}
}

// ModerationDeflection is the in-character reply for flagged free text.
func ModerationDeflection() Entry {
	return Entry{
		Response:        "Hmm, let's keep our conversation friendly! Ask me anything about the Lumina Cell instead.",
		FollowUpOptions: StarterOptions(),
	}
}
