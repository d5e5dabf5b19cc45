// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package capture owns the capture/recording state machine.
//
// A Controller drives one FrameSource and at most one Writer at a time.
// Frames pushed by the source are routed on the producer goroutine:
//
//   - to the Dispatcher as preview frames (droppable, at most one in flight)
//   - to the active Writer while recording (never dropped, non-blocking Append)
//
// Lifecycle requests (StartRunning, StopRunning, StartRecording,
// StopRecording) are applied one at a time, in arrival order, by a single
// transition goroutine. Every client-visible notification is delivered as an
// Event on the Dispatcher goroutine, never on the producer goroutine.
//
// State diagram:
//
//	idle --StartRunning--> running --StartRecording--> recording
//	  ^                      |  ^                          |
//	  +-----StopRunning------+  +---finalized--- stopping <-+ StopRecording
package capture
