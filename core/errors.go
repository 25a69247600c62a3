package orchestration

import (
	"errors"
	"fmt"
)

// ErrStuckState is reported when the recovery watchdog fires because the
// coordinator flags stayed set past the watchdog deadline with no audio
// playing.
var ErrStuckState = errors.New("coordinator stuck, forced reset")

// ErrDispatchInFlight is returned when a transcript arrives while a dispatch
// is already outstanding. Only an explicit text submission may force past it.
var ErrDispatchInFlight = errors.New("dispatch already in flight")

type playbackStage string

const (
	playbackStageStart    playbackStage = "start"
	playbackStagePlayback playbackStage = "playback"
)

// PlaybackError reports a failed playback attempt and the stage it failed in,
// so the coordinator can tell a start timeout from a mid-utterance stall.
type PlaybackError struct {
	Stage playbackStage
	Err   error
}

func (e *PlaybackError) Error() string {
	return fmt.Sprintf("playback failed during %s: %v", e.Stage, e.Err)
}

func (e *PlaybackError) Unwrap() error { return e.Err }
