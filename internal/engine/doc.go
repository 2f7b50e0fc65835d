// Package engine holds the live-session timing and goal arithmetic: active
// duration net of pauses, H:MM:SS formatting and parsing, goal target
// normalization, goal progress and metric progress validation.
//
// Every function is pure and cheap enough to run on each one-second tick and
// on each keystroke of a goal edit. None of them mutate the session passed in.
package engine
