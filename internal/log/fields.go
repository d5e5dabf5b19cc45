// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldSessionID   = "session_id"
	FieldRecordingID = "recording_id"
	FieldRequestID   = "request_id"

	// Process / pipeline fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldBackend   = "backend"

	// Media / stream fields
	FieldResolution  = "resolution"
	FieldFPS         = "fps"
	FieldPixelFormat = "pixel_format"
	FieldOrientation = "orientation"
	FieldFrames      = "frames"
	FieldDropped     = "dropped"

	// State fields
	FieldOldState = "old_state"
	FieldNewState = "new_state"

	// Path fields
	FieldPath      = "path"
	FieldFinalPath = "final_path"
)
