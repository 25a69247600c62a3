// Package orchestration coordinates voice turn-taking between one human
// speaker and one synthetic voice: microphone capture, transcript gating,
// reply dispatch, sentence-streamed speech, echo suppression, and
// stuck-state recovery. One Coordinator owns one session.
package orchestration

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/voiceloop-ai/voiceloop-core/core/reply"
	"github.com/voiceloop-ai/voiceloop-core/core/speechtotext"
	"github.com/voiceloop-ai/voiceloop-core/core/texttospeech"
)

type Phase string

const (
	PhaseIdle        Phase = "idle"
	PhaseListening   Phase = "listening"
	PhaseDispatching Phase = "dispatching"
	PhaseSpeaking    Phase = "speaking"
	PhaseCooldown    Phase = "cooldown"
)

// State is an observable snapshot of the coordinator.
type State struct {
	Phase Phase
	Mode  Mode

	IsProcessing       bool
	IsResponding       bool
	IsAudioPlaying     bool
	IsMicrophonePaused bool

	CooldownUntil time.Time
}

const (
	defaultCooldown = 3000 * time.Millisecond
	// propagationDelay is the extra tick the microphone restart waits past
	// the flag flip, so the freshest state is re-read instead of a stale
	// snapshot.
	propagationDelay = 10 * time.Millisecond

	submissionQueueSize = 8
)

type submissionKind int

const (
	submitTurn submissionKind = iota
	submitSpeak
)

type submission struct {
	kind  submissionKind
	text  string
	voice bool
}

// Coordinator is the top-level turn-taking state machine. All turn handling
// runs on a single consumer goroutine; public methods only gate, cancel, and
// enqueue.
type Coordinator struct {
	userID     string
	userName   string
	sessionID  string
	memoryMode string

	dispatcher  dispatchService
	synthesizer texttospeech.Synthesizer
	sink        SpeechSink
	source      AudioSource
	transcriber speechtotext.Transcriber

	streamReplies bool
	synthOptions  []texttospeech.SynthesisOption

	cooldown        time.Duration
	watchdogTimeout time.Duration

	isProcessing       atomic.Bool
	isResponding       atomic.Bool
	isAudioPlaying     atomic.Bool
	isMicrophonePaused atomic.Bool
	// isStopped is set by EmergencyStop and cleared only by Resume. While
	// set, nothing may restart the microphone or leave the idle phase on its
	// own; the unwinding of a cancelled turn must not undo the stop.
	isStopped atomic.Bool

	mu                 sync.Mutex
	phase              Phase
	mode               Mode
	cooldownUntil      time.Time
	lastAgentUtterance string
	turns              []Turn
	gate               transcriptGate
	activeCancel       context.CancelFunc
	watchdog           *time.Timer

	queue   chan submission
	baseCtx context.Context

	callbacks coordinatorCallbacks
}

func NewCoordinator(opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		sessionID:       uuid.NewString(),
		mode:            ModeDialogue,
		phase:           PhaseIdle,
		cooldown:        defaultCooldown,
		watchdogTimeout: watchdogTimeout,
		queue:           make(chan submission, submissionQueueSize),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run starts capture and transcription and consumes submissions until the
// context is cancelled. It owns all turn handling; at most one turn is ever
// in flight.
func (c *Coordinator) Run(ctx context.Context) error {
	if c == nil {
		return nil
	}

	c.mu.Lock()
	c.baseCtx = ctx
	c.mu.Unlock()

	if c.transcriber != nil {
		transcriptionOpts := []speechtotext.TranscriptionOption{
			speechtotext.WithTranscriptionCallback(c.SubmitTranscript),
		}
		if c.callbacks.onInterimTranscript != nil {
			transcriptionOpts = append(transcriptionOpts,
				speechtotext.WithInterimTranscriptionCallback(c.callbacks.onInterimTranscript))
		}
		if err := c.transcriber.Transcribe(ctx, transcriptionOpts...); err != nil {
			return err
		}
		defer c.transcriber.Close()
	}

	if err := c.startMicrophone(ctx); err != nil {
		return err
	}
	defer close(withContextCancelHook(ctx, func() { c.pauseMicrophone() }))

	c.setPhase(PhaseListening)

	for {
		select {
		case <-ctx.Done():
			c.setPhase(PhaseIdle)
			return ctx.Err()
		case sub := <-c.queue:
			switch sub.kind {
			case submitTurn:
				c.handleTurn(ctx, sub.text, sub.voice)
			case submitSpeak:
				c.handleSpeak(ctx, sub.text)
			}
		}
	}
}

// SubmitTranscript feeds a raw recognized utterance through the transcript
// gate. Rejected transcripts are dropped with a log line and no side
// effects.
func (c *Coordinator) SubmitTranscript(text string) {
	if c == nil {
		return
	}

	c.mu.Lock()
	gctx := gateContext{
		AgentSpeaking: c.isAudioPlaying.Load() || c.isResponding.Load() ||
			c.isMicrophonePaused.Load(),
		CooldownUntil:      c.cooldownUntil,
		LastAgentUtterance: c.lastAgentUtterance,
	}
	result := c.gate.Admit(text, gctx)
	c.mu.Unlock()

	if result.Rejected {
		logger.Info("Transcript rejected", "reason", string(result.Reason), "text", text)
		return
	}

	if result.ModeSwitch != nil {
		c.applyModeSwitch(*result.ModeSwitch, result.ModeConfirmation)
		if result.Text == "" {
			return
		}
	}

	if c.isProcessing.Load() || c.isResponding.Load() {
		logger.Info("Transcript dropped", "error", ErrDispatchInFlight, "text", result.Text)
		return
	}

	c.enqueue(submission{kind: submitTurn, text: result.Text, voice: true})
}

// SubmitText submits typed input. Unlike a transcript, explicit text input
// may force past an in-flight dispatch: the active turn is cancelled and the
// new one takes its place.
func (c *Coordinator) SubmitText(text string) {
	if c == nil {
		return
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}

	if c.isProcessing.Load() || c.isResponding.Load() {
		logger.Info("Forcing reset for new text input")
		c.cancelActiveTurn()
	}

	c.enqueue(submission{kind: submitTurn, text: text, voice: false})
}

// Speak plays one utterance through the single-shot player without
// dispatching anything.
func (c *Coordinator) Speak(text string) {
	if c == nil || strings.TrimSpace(text) == "" {
		return
	}
	c.enqueue(submission{kind: submitSpeak, text: text})
}

// EmergencyStop is the one hard-cancellation primitive: it cancels any
// in-flight dispatch and playback, clears the speech buffer, mutes the
// microphone, and resets all flags. Safe to call from any state.
func (c *Coordinator) EmergencyStop() {
	if c == nil {
		return
	}

	c.isStopped.Store(true)
	c.cancelActiveTurn()
	if c.sink != nil {
		c.sink.ClearBuffer()
	}
	c.pauseMicrophone()
	c.stopWatchdog()

	c.isProcessing.Store(false)
	c.isResponding.Store(false)
	c.isAudioPlaying.Store(false)

	c.setPhase(PhaseIdle)
	logger.Info("Emergency stop executed")
}

// Resume restarts listening after an emergency stop.
func (c *Coordinator) Resume() {
	if c == nil {
		return
	}

	c.mu.Lock()
	ctx := c.baseCtx
	c.mu.Unlock()
	if ctx == nil {
		return
	}

	c.isStopped.Store(false)
	if err := c.startMicrophone(ctx); err != nil {
		logger.Error("Failed to restart microphone", "error", err)
		return
	}
	c.setPhase(PhaseListening)
}

func (c *Coordinator) Mode() Mode {
	if c == nil {
		return ModeDialogue
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

func (c *Coordinator) SetMode(mode Mode) {
	if c == nil || !mode.valid() {
		return
	}
	c.applyModeSwitch(mode, modeConfirmation(mode))
}

// Turns returns a copy of the transcript log.
func (c *Coordinator) Turns() []Turn {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Turn(nil), c.turns...)
}

func (c *Coordinator) CurrentState() State {
	if c == nil {
		return State{Phase: PhaseIdle}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Coordinator) enqueue(sub submission) {
	select {
	case c.queue <- sub:
	default:
		logger.Warn("Submission queue full, dropping input", "text", sub.text)
	}
}

// handleTurn runs one full conversational turn: append, dispatch, speak,
// cool down. It blocks the consumer loop so turns never overlap.
func (c *Coordinator) handleTurn(ctx context.Context, text string, voice bool) {
	ctx, span := tracer.Start(ctx, "conversation turn")
	defer span.End()
	span.SetAttributes(
		attribute.Bool("turn.voice", voice),
		attribute.String("turn.mode", string(c.Mode())),
	)

	turnCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	c.mu.Lock()
	c.activeCancel = cancel
	history := toHistory(c.turns)
	mode := c.mode
	c.mu.Unlock()

	c.appendTurn(newTurn(TurnRoleUser, text))

	// Scribe mode records the turn and keeps listening; no reply.
	if mode == ModeScribe {
		return
	}

	c.isProcessing.Store(true)
	c.setPhase(PhaseDispatching)
	c.startWatchdog()
	defer c.stopWatchdog()

	request := reply.Request{
		Message:   text,
		UserID:    c.userID,
		UserName:  c.userName,
		SessionID: c.sessionID,
		Mode:      string(mode),
		Meta: reply.Meta{
			ExplorerID: c.userID,
			SessionID:  c.sessionID,
			MemoryMode: c.memoryMode,
		},
		IsVoiceMode: voice,
	}
	if err := request.SnapshotHistory(history); err != nil {
		logger.Error("Failed to snapshot history", "error", err)
	}

	var playbackErr error
	if c.streamReplies && c.synthesizer != nil && c.sink != nil {
		playbackErr = c.dispatchStreaming(turnCtx, request)
	} else {
		playbackErr = c.dispatchWhole(turnCtx, request)
	}

	c.isProcessing.Store(false)
	c.isResponding.Store(false)
	c.isAudioPlaying.Store(false)

	if playbackErr != nil {
		// No cooldown after a failed playback; no audio tail to suppress.
		c.resumeListening(ctx)
		return
	}

	c.runCooldown(ctx)
}

// dispatchStreaming streams the reply and plays it sentence-by-sentence.
// Returns a non-nil error only for playback-level failures; dispatch errors
// are surfaced as system turns and consume the turn normally.
func (c *Coordinator) dispatchStreaming(ctx context.Context, request reply.Request) error {
	completed := make(chan error, 1)
	queue := newStreamingSpeechQueue(c.sink, c.audioStarted, func(err error) {
		completed <- err
	})

	queueCtx, stopQueue := context.WithCancel(ctx)
	defer stopQueue()
	go func() {
		if err := panicSafeNamedWorker("speech queue", queue.run)(queueCtx); err != nil &&
			queueCtx.Err() == nil {
			logger.Error("Speech queue stopped", "error", err)
		}
	}()

	fullText, dispatchErr := c.dispatcher.DispatchStream(ctx, request, func(sentence string) {
		if !c.isResponding.Load() {
			c.isResponding.Store(true)
			c.setPhase(PhaseSpeaking)
		}

		index := queue.expect(sentence)
		go func() {
			speech, err := c.synthesizer.Synthesize(ctx, sentence, c.synthOptions...)
			if err != nil {
				queue.skip(index, err)
				return
			}
			queue.enqueue(index, speech)
		}()
	})

	// Let whatever arrived finish playing even when the stream died midway.
	queue.markStreamingComplete()

	if fullText != "" {
		c.mu.Lock()
		c.lastAgentUtterance = fullText
		c.mu.Unlock()
		c.appendTurn(newTurn(TurnRoleAgent, fullText))
	}

	if dispatchErr != nil && ctx.Err() == nil {
		c.appendSystemErrorTurn(dispatchErr)
	}

	select {
	case err := <-completed:
		var playbackErr *PlaybackError
		if errors.As(err, &playbackErr) {
			logger.Error("Streaming playback failed", "error", err)
			return err
		}
		return nil
	case <-ctx.Done():
		c.sink.ClearBuffer()
		return ctx.Err()
	}
}

// dispatchWhole waits for the complete reply, then plays it in one shot.
func (c *Coordinator) dispatchWhole(ctx context.Context, request reply.Request) error {
	response, err := c.dispatcher.Dispatch(ctx, request)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.appendSystemErrorTurn(err)
		return nil
	}

	text := response.Text()
	if text == "" {
		return nil
	}

	c.mu.Lock()
	c.lastAgentUtterance = text
	c.mu.Unlock()
	c.appendTurn(newTurn(TurnRoleAgent, text))

	if c.synthesizer == nil || c.sink == nil {
		return nil
	}

	c.isResponding.Store(true)
	c.setPhase(PhaseSpeaking)

	player := newSpeechPlayer(c.synthesizer, c.sink)
	player.onAudioStarted = c.audioStarted
	player.onAmplitude = c.callbacks.onAmplitude

	if err := player.Play(ctx, text, c.synthOptions...); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		var playbackErr *PlaybackError
		if errors.As(err, &playbackErr) {
			logger.Error("Playback failed", "error", err)
			return err
		}
		// Synthesis failures mean nothing was spoken; the turn still
		// completed in text.
		logger.Error("Synthesis failed for reply", "error", err)
		return nil
	}

	return nil
}

// handleSpeak plays one on-demand utterance outside the turn cycle.
func (c *Coordinator) handleSpeak(ctx context.Context, text string) {
	if c.synthesizer == nil || c.sink == nil {
		return
	}

	turnCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	c.mu.Lock()
	c.activeCancel = cancel
	c.mu.Unlock()

	c.isResponding.Store(true)
	c.setPhase(PhaseSpeaking)

	player := newSpeechPlayer(c.synthesizer, c.sink)
	player.onAudioStarted = c.audioStarted
	player.onAmplitude = c.callbacks.onAmplitude

	err := player.Play(turnCtx, text, c.synthOptions...)

	c.isResponding.Store(false)
	c.isAudioPlaying.Store(false)

	if err != nil {
		logger.Error("On-demand speech failed", "error", err)
		c.resumeListening(ctx)
		return
	}

	c.runCooldown(ctx)
}

// audioStarted flips playback state and pauses the microphone so the agent
// never hears itself.
func (c *Coordinator) audioStarted() {
	c.isAudioPlaying.Store(true)
	c.pauseMicrophone()
	c.notifyState()
}

// runCooldown opens the post-speech cooldown window, then restarts listening
// after re-checking the freshest flags one tick past the flip.
func (c *Coordinator) runCooldown(ctx context.Context) {
	if c.isStopped.Load() {
		return
	}

	c.mu.Lock()
	c.cooldownUntil = time.Now().Add(c.cooldown)
	c.mu.Unlock()
	c.setPhase(PhaseCooldown)

	select {
	case <-time.After(c.cooldown):
	case <-ctx.Done():
		return
	}

	c.resumeListening(ctx)
}

// resumeListening unpauses the microphone, but only after confirming from
// fresh state that nothing is processing, responding, or playing. The extra
// tick guards against racing state propagation.
func (c *Coordinator) resumeListening(ctx context.Context) {
	select {
	case <-time.After(propagationDelay):
	case <-ctx.Done():
		return
	}

	if c.isStopped.Load() {
		logger.Info("Skipping microphone restart, coordinator is stopped")
		return
	}
	if c.isProcessing.Load() || c.isResponding.Load() || c.isAudioPlaying.Load() {
		logger.Info("Skipping microphone restart, coordinator became busy again")
		return
	}

	if err := c.startMicrophone(ctx); err != nil {
		logger.Error("Failed to restart microphone", "error", err)
	}
	c.setPhase(PhaseListening)
}

func (c *Coordinator) startMicrophone(ctx context.Context) error {
	if c.source == nil {
		c.isMicrophonePaused.Store(false)
		return nil
	}

	err := c.source.StartCapture(ctx, func(audio []byte) {
		if c.transcriber == nil {
			return
		}
		if err := c.transcriber.SendAudio(audio); err != nil {
			logger.Warn("Failed to forward captured audio", "error", err)
		}
	})
	if err != nil {
		return err
	}

	c.isMicrophonePaused.Store(false)
	c.notifyState()
	return nil
}

func (c *Coordinator) pauseMicrophone() {
	if c.isMicrophonePaused.Swap(true) {
		return
	}
	if c.source != nil {
		if err := c.source.StopCapture(); err != nil {
			logger.Warn("Failed to stop capture", "error", err)
		}
	}
	c.notifyState()
}

func (c *Coordinator) cancelActiveTurn() {
	c.mu.Lock()
	cancel := c.activeCancel
	c.activeCancel = nil
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (c *Coordinator) applyModeSwitch(mode Mode, confirmation string) {
	c.mu.Lock()
	c.mode = mode
	c.mu.Unlock()

	logger.Info("Conversation mode switched", "mode", string(mode))
	if c.callbacks.onModeSwitch != nil {
		c.callbacks.onModeSwitch(mode, confirmation)
	}
	if confirmation != "" {
		c.appendTurn(newTurn(TurnRoleSystem, confirmation))
		c.Speak(confirmation)
	}
	c.notifyState()
}

func (c *Coordinator) appendTurn(turn Turn) {
	c.mu.Lock()
	c.turns = append(c.turns, turn)
	c.mu.Unlock()

	if c.callbacks.onTurn != nil {
		c.callbacks.onTurn(turn)
	}
}

// appendSystemErrorTurn translates a dispatch failure into a user-actionable
// system turn. The processing flag is cleared by the caller unconditionally.
func (c *Coordinator) appendSystemErrorTurn(err error) {
	text := "I apologize, I'm having trouble connecting right now. Could you say that again?"
	switch {
	case errors.Is(err, reply.ErrRequestTimeout):
		text = "I'm having trouble responding - your connection might be slow. Try asking again in a moment."
	case errors.Is(err, reply.ErrNetworkUnreachable):
		text = "I can't connect right now. Check your internet connection and try again."
	}

	logger.Error("Dispatch failed", "error", err)
	c.appendTurn(newTurn(TurnRoleSystem, text))
}

func (c *Coordinator) setPhase(phase Phase) {
	c.mu.Lock()
	c.phase = phase
	c.mu.Unlock()
	c.notifyState()
}

func (c *Coordinator) notifyState() {
	if c.callbacks.onState == nil {
		return
	}
	c.mu.Lock()
	state := c.snapshotLocked()
	c.mu.Unlock()
	c.callbacks.onState(state)
}

func (c *Coordinator) snapshotLocked() State {
	return State{
		Phase:              c.phase,
		Mode:               c.mode,
		IsProcessing:       c.isProcessing.Load(),
		IsResponding:       c.isResponding.Load(),
		IsAudioPlaying:     c.isAudioPlaying.Load(),
		IsMicrophonePaused: c.isMicrophonePaused.Load(),
		CooldownUntil:      c.cooldownUntil,
	}
}
