package orchestration

import (
	"regexp"
	"strings"
)

// Mode selects how accepted turns are handled. Dialogue and counsel both
// dispatch for a reply (counsel asks the service for a more reflective
// register); scribe records turns without replying.
type Mode string

const (
	ModeDialogue Mode = "dialogue"
	ModeCounsel  Mode = "counsel"
	ModeScribe   Mode = "scribe"
)

func (m Mode) valid() bool {
	switch m {
	case ModeDialogue, ModeCounsel, ModeScribe:
		return true
	}
	return false
}

var (
	modeCommandPattern = regexp.MustCompile(`(?i)\b(?:switch to|go to|change to)\s+(dialogue|counsel|scribe)\s+mode\b`)
	modeRequestPattern = regexp.MustCompile(`(?i)\b(dialogue|counsel|scribe)\s+mode,?\s*please\b`)
)

type modeCommand struct {
	Mode Mode
	// Cleaned is the utterance with the command stripped. Empty when the
	// utterance was only a command.
	Cleaned string
}

// detectModeCommand looks for a spoken mode-switch command anywhere in the
// utterance. The command is stripped so the remainder can still be processed
// as a turn.
func detectModeCommand(text string) (*modeCommand, bool) {
	for _, pattern := range []*regexp.Regexp{modeCommandPattern, modeRequestPattern} {
		match := pattern.FindStringSubmatchIndex(text)
		if match == nil {
			continue
		}

		mode := Mode(strings.ToLower(text[match[2]:match[3]]))
		cleaned := strings.TrimSpace(text[:match[0]] + " " + text[match[1]:])
		cleaned = strings.Trim(cleaned, " ,.;:")
		return &modeCommand{Mode: mode, Cleaned: cleaned}, true
	}

	return nil, false
}

func modeConfirmation(mode Mode) string {
	switch mode {
	case ModeDialogue:
		return "Switching to dialogue mode."
	case ModeCounsel:
		return "Entering counsel mode. Take your time."
	case ModeScribe:
		return "Scribe mode on. I'm listening and taking notes."
	}
	return ""
}
