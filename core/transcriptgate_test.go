package orchestration

import (
	"testing"
	"time"
)

func TestGateRejectsEmptyTranscripts(t *testing.T) {
	gate := &transcriptGate{}

	for _, text := range []string{"", "   ", "...", "?!, ."} {
		result := gate.Admit(text, gateContext{})
		if !result.Rejected {
			t.Errorf("Expected %q to be rejected as empty", text)
		}
		if result.Reason != rejectEmpty {
			t.Errorf("Expected reject reason %q for %q, got %q", rejectEmpty, text, result.Reason)
		}
	}
}

func TestGateRejectsWhileAgentSpeaking(t *testing.T) {
	gate := &transcriptGate{}

	result := gate.Admit("hello there", gateContext{AgentSpeaking: true})
	if !result.Rejected || result.Reason != rejectAgentSpeaking {
		t.Errorf("Expected rejection while agent speaking, got %+v", result)
	}
}

func TestGateRejectsDuringCooldown(t *testing.T) {
	gate := &transcriptGate{}

	result := gate.Admit("hello there", gateContext{CooldownUntil: time.Now().Add(time.Second)})
	if !result.Rejected || result.Reason != rejectCooldown {
		t.Errorf("Expected rejection during cooldown, got %+v", result)
	}

	result = gate.Admit("hello there", gateContext{CooldownUntil: time.Now().Add(-time.Second)})
	if result.Rejected {
		t.Errorf("Expected acceptance after cooldown expiry, got %+v", result)
	}
}

func TestGateRejectsGhostPhrases(t *testing.T) {
	gate := &transcriptGate{}

	result := gate.Admit("Thanks for watching, subscribe!", gateContext{})
	if !result.Rejected || result.Reason != rejectGhostPhrase {
		t.Errorf("Expected ghost phrase rejection, got %+v", result)
	}

	result = gate.Admit("I watched a movie yesterday", gateContext{})
	if result.Rejected {
		t.Errorf("Expected ordinary mention of watching to pass, got %+v", result)
	}
}

func TestGateRejectsEchoes(t *testing.T) {
	gate := &transcriptGate{}
	gctx := gateContext{LastAgentUtterance: "I understand you're feeling tired after such a long day"}

	result := gate.Admit("feeling tired after", gctx)
	if !result.Rejected || result.Reason != rejectEcho {
		t.Errorf("Expected echo rejection for verbatim fragment, got %+v", result)
	}

	// Short fragments are never treated as echoes.
	result = gate.Admit("tired", gctx)
	if result.Rejected {
		t.Errorf("Expected short fragment to pass, got %+v", result)
	}

	result = gate.Admit("I slept really well actually", gctx)
	if result.Rejected {
		t.Errorf("Expected unrelated reply to pass, got %+v", result)
	}
}

func TestGateEchoByWordContainment(t *testing.T) {
	// Recognition noise on one word should not defeat echo detection when
	// the rest matches contiguously.
	gctx := gateContext{LastAgentUtterance: "Let's take a slow breath together before we continue"}

	if !isEcho("take a slow breath together", gctx.LastAgentUtterance) {
		t.Error("Expected contiguous fragment to be detected as echo")
	}
	if isEcho("take a completely different route home", gctx.LastAgentUtterance) {
		t.Error("Expected mostly different words to pass")
	}
}

func TestGateRejectsDuplicates(t *testing.T) {
	gate := &transcriptGate{}

	first := gate.Admit("hello there", gateContext{})
	if first.Rejected {
		t.Fatalf("Expected first submission to pass, got %+v", first)
	}

	second := gate.Admit("hello there", gateContext{})
	if !second.Rejected || second.Reason != rejectDuplicate {
		t.Errorf("Expected duplicate rejection within the window, got %+v", second)
	}

	gate.lastAcceptedAt = time.Now().Add(-3 * time.Second)
	third := gate.Admit("hello there", gateContext{})
	if third.Rejected {
		t.Errorf("Expected resubmission after the window to pass, got %+v", third)
	}
}

func TestGateDetectsModeCommands(t *testing.T) {
	gate := &transcriptGate{}

	result := gate.Admit("switch to scribe mode", gateContext{})
	if result.Rejected {
		t.Fatalf("Expected command to be accepted, got %+v", result)
	}
	if result.ModeSwitch == nil || *result.ModeSwitch != ModeScribe {
		t.Fatalf("Expected scribe mode switch, got %+v", result.ModeSwitch)
	}
	if result.Text != "" {
		t.Errorf("Expected command-only utterance to have no turn text, got %q", result.Text)
	}
	if result.ModeConfirmation == "" {
		t.Error("Expected a confirmation message for the mode switch")
	}
}

func TestGateStripsModeCommandFromTurnText(t *testing.T) {
	gate := &transcriptGate{}

	result := gate.Admit("go to counsel mode. I had a rough morning", gateContext{})
	if result.Rejected {
		t.Fatalf("Expected utterance to be accepted, got %+v", result)
	}
	if result.ModeSwitch == nil || *result.ModeSwitch != ModeCounsel {
		t.Fatalf("Expected counsel mode switch, got %+v", result.ModeSwitch)
	}
	if result.Text != "I had a rough morning" {
		t.Errorf("Expected remainder to survive as turn text, got %q", result.Text)
	}
}

func TestDetectModeCommandGrammar(t *testing.T) {
	for text, mode := range map[string]Mode{
		"switch to dialogue mode":    ModeDialogue,
		"Change to Counsel Mode":     ModeCounsel,
		"scribe mode please":         ModeScribe,
		"counsel mode, please":       ModeCounsel,
		"could you go to scribe mode": ModeScribe,
	} {
		command, ok := detectModeCommand(text)
		if !ok {
			t.Errorf("Expected %q to be detected as a mode command", text)
			continue
		}
		if command.Mode != mode {
			t.Errorf("Expected %q to switch to %s, got %s", text, mode, command.Mode)
		}
	}

	for _, text := range []string{
		"I like this mode of thinking",
		"switch to another topic",
		"the scribe wrote it down",
	} {
		if _, ok := detectModeCommand(text); ok {
			t.Errorf("Expected %q not to be detected as a mode command", text)
		}
	}
}
