// Package viz renders closed-loop runs in the terminal.
//
// [Model] is a Bubble Tea program that steps a [sim.Loop] on every tick
// and draws a top-down braille view around the vehicle: the track, the
// path driven so far and the controller's predicted path. A side panel
// shows the current errors and command, charts of cross-track error and
// steering, and the controller's tunable params.
//
// # Key Bindings
//
//	Space - Pause/Resume
//	N     - Single step while paused
//	R     - Restart the run
//	Tab   - Select a param, Up/Down to tune it
//	T     - Cycle color themes
//	?     - Show help overlay
//
// [Summary] and [Plot] produce static charts for finished runs.
package viz
