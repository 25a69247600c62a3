package orchestration

import (
	"regexp"
	"strings"
	"time"
)

// ghostPhrases are stock phrases from background media the microphone tends
// to pick up. A transcript containing any of them is treated as ambient
// audio, not the speaker.
var ghostPhrases = []string{
	"thank you for watching",
	"thanks for watching",
	"subscribe",
	"like and subscribe",
	"hit the bell",
	"turn on notifications",
	"check out the link",
	"link in description",
	"patreon",
	"sponsor",
	"this video is sponsored",
	"before we begin",
	"let's get started",
	"welcome back",
	"today we're going to",
	"in today's video",
	"don't forget to",
	"make sure to",
	"if you enjoyed",
	"leave a comment",
	"smash that",
	"hit that like button",
}

const (
	duplicateWindow = 2000 * time.Millisecond

	echoContainmentThreshold = 0.8
	echoMinLength            = 10
)

type rejectReason string

const (
	rejectEmpty         rejectReason = "empty"
	rejectAgentSpeaking rejectReason = "agent speaking"
	rejectCooldown      rejectReason = "cooldown"
	rejectGhostPhrase   rejectReason = "ghost phrase"
	rejectEcho          rejectReason = "echo"
	rejectDuplicate     rejectReason = "duplicate"
)

// gateContext is the coordinator state snapshot a transcript is judged
// against. It must be read fresh at evaluation time.
type gateContext struct {
	AgentSpeaking      bool
	CooldownUntil      time.Time
	LastAgentUtterance string
}

type gateResult struct {
	// Text is the clean turn text, with any mode-switch command stripped.
	// Empty when the utterance was only a command.
	Text string

	ModeSwitch       *Mode
	ModeConfirmation string

	Rejected bool
	Reason   rejectReason
}

// transcriptGate decides whether a raw recognized utterance becomes a user
// turn. Rejection rules apply in order, first match wins, and a rejection
// has no side effects beyond a log line.
type transcriptGate struct {
	lastAccepted   string
	lastAcceptedAt time.Time
}

var punctuationOnly = regexp.MustCompile(`[.,!?;:\s]+`)

func (g *transcriptGate) Admit(text string, gctx gateContext) gateResult {
	now := time.Now()

	if punctuationOnly.ReplaceAllString(text, "") == "" {
		return gateResult{Rejected: true, Reason: rejectEmpty}
	}

	if gctx.AgentSpeaking {
		return gateResult{Rejected: true, Reason: rejectAgentSpeaking}
	}
	if now.Before(gctx.CooldownUntil) {
		return gateResult{Rejected: true, Reason: rejectCooldown}
	}

	lowered := strings.ToLower(text)
	for _, phrase := range ghostPhrases {
		if strings.Contains(lowered, phrase) {
			return gateResult{Rejected: true, Reason: rejectGhostPhrase}
		}
	}

	if isEcho(text, gctx.LastAgentUtterance) {
		return gateResult{Rejected: true, Reason: rejectEcho}
	}

	if text == g.lastAccepted && now.Sub(g.lastAcceptedAt) < duplicateWindow {
		return gateResult{Rejected: true, Reason: rejectDuplicate}
	}

	g.lastAccepted = text
	g.lastAcceptedAt = now

	result := gateResult{Text: strings.TrimSpace(text)}
	if command, ok := detectModeCommand(text); ok {
		result.ModeSwitch = &command.Mode
		result.ModeConfirmation = modeConfirmation(command.Mode)
		result.Text = command.Cleaned
	}

	return result
}

// isEcho reports whether the transcript looks like the agent's own voice
// picked up by the microphone. A transcript longer than echoMinLength
// characters is an echo when it is a direct substring of the last utterance
// or when at least 80% of its words appear as one contiguous run inside it.
func isEcho(transcript, lastUtterance string) bool {
	t := strings.ToLower(strings.TrimSpace(transcript))
	u := strings.ToLower(strings.TrimSpace(lastUtterance))
	if len(t) <= echoMinLength || u == "" {
		return false
	}

	if strings.Contains(u, t) {
		return true
	}

	transcriptWords := strings.Fields(t)
	utteranceWords := strings.Fields(u)
	if len(transcriptWords) == 0 {
		return false
	}

	longest := 0
	for start := range transcriptWords {
		run := longestRunAt(transcriptWords[start:], utteranceWords)
		if run > longest {
			longest = run
		}
	}

	return float64(longest)/float64(len(transcriptWords)) >= echoContainmentThreshold
}

// longestRunAt reports the longest prefix of words that appears contiguously
// anywhere in haystack.
func longestRunAt(words, haystack []string) int {
	longest := 0
	for offset := range haystack {
		run := 0
		for run < len(words) && offset+run < len(haystack) && haystack[offset+run] == words[run] {
			run++
		}
		if run > longest {
			longest = run
		}
	}
	return longest
}
