// Package process launches media subprocesses and exposes them as Handles.
//
// A Handle is one spawned child: its stdout is the media payload, its
// stderr is logged through an engine-specific LogParser, and its exit is
// observable through Done. Every child runs in its own process group so a
// signal also reaches helpers it forks (yt-dlp runs ffmpeg, for example).
//
// Spawn never returns an error. A child that cannot be started is returned
// as a Handle that is already done with SpawnFailed set, so callers handle
// spawn failures and crashes on the same path.
//
// Slot holds the single current Handle of a playback session and is used
// to tell events of the current child from those of a superseded one.
package process
