package orchestration

import "time"

// watchdogTimeout must exceed the dispatch timeout so a legitimate slow
// network call never trips recovery.
const watchdogTimeout = 75000 * time.Millisecond

const stuckApology = "I apologize - I seem to have gotten stuck for a moment. I'm here now. What were you saying?"

// startWatchdog arms the stuck-state recovery timer. It is armed whenever a
// turn starts processing and disarmed when the turn completes; if it ever
// fires, some combination of failures left the flags inconsistently set.
func (c *Coordinator) startWatchdog() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.watchdog != nil {
		c.watchdog.Stop()
	}
	c.watchdog = time.AfterFunc(c.watchdogTimeout, c.recoverStuckState)
}

func (c *Coordinator) stopWatchdog() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.watchdog != nil {
		c.watchdog.Stop()
		c.watchdog = nil
	}
}

// recoverStuckState fires on the watchdog. It re-reads the freshest flags
// rather than anything captured when the timer was armed: if audio is still
// playing the coordinator is legitimately working and nothing happens; if
// the stuck condition cleared on its own, nothing happens; otherwise all
// flags are force-reset, an apology turn is appended, and listening is
// re-enabled.
func (c *Coordinator) recoverStuckState() {
	if c.isAudioPlaying.Load() {
		logger.Info("Watchdog fired while audio playing, leaving it alone")
		return
	}

	if !c.isProcessing.Load() && !c.isResponding.Load() {
		return
	}

	logger.Warn("Stuck state detected, forcing reset", "error", ErrStuckState)

	c.cancelActiveTurn()
	if c.sink != nil {
		c.sink.ClearBuffer()
	}

	c.isProcessing.Store(false)
	c.isResponding.Store(false)
	c.isAudioPlaying.Store(false)

	c.appendTurn(newTurn(TurnRoleSystem, stuckApology))

	c.mu.Lock()
	ctx := c.baseCtx
	c.mu.Unlock()
	if ctx != nil && ctx.Err() == nil {
		c.resumeListening(ctx)
	}
}
