// SPDX-License-Identifier: MIT

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Common attribute keys for consistent tracing across the application.
const (
	// HTTP attributes
	HTTPMethodKey     = "http.method"
	HTTPStatusCodeKey = "http.status_code"
	HTTPRouteKey      = "http.route"

	// Capture attributes
	CaptureOpKey        = "capture.op"
	CaptureFromStateKey = "capture.from_state"
	CaptureToStateKey   = "capture.to_state"
	CaptureSessionKey   = "capture.session_id"

	// Stream attributes
	StreamResolutionKey  = "stream.resolution"
	StreamFrameRateKey   = "stream.frame_rate"
	StreamPixelFormatKey = "stream.pixel_format"
	StreamOrientationKey = "stream.orientation"

	// Recording attributes
	RecordingIDKey      = "recording.id"
	RecordingBackendKey = "recording.backend"
	RecordingFramesKey  = "recording.frames"
	RecordingBytesKey   = "recording.bytes"

	// Error attributes
	ErrorKey     = "error"
	ErrorTypeKey = "error.type"
)

// HTTPAttributes creates common HTTP span attributes.
func HTTPAttributes(method, route string, statusCode int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(HTTPMethodKey, method),
		attribute.String(HTTPRouteKey, route),
		attribute.Int(HTTPStatusCodeKey, statusCode),
	}
}

// TransitionAttributes describes one applied controller transition.
func TransitionAttributes(op, from, to string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{attribute.String(CaptureOpKey, op)}
	if from != "" {
		attrs = append(attrs, attribute.String(CaptureFromStateKey, from))
	}
	if to != "" {
		attrs = append(attrs, attribute.String(CaptureToStateKey, to))
	}
	return attrs
}

// StreamAttributes creates stream-format span attributes.
func StreamAttributes(resolution string, fps float64, pixelFormat, orientation string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 4)
	if resolution != "" {
		attrs = append(attrs, attribute.String(StreamResolutionKey, resolution))
	}
	if fps > 0 {
		attrs = append(attrs, attribute.Float64(StreamFrameRateKey, fps))
	}
	if pixelFormat != "" {
		attrs = append(attrs, attribute.String(StreamPixelFormatKey, pixelFormat))
	}
	if orientation != "" {
		attrs = append(attrs, attribute.String(StreamOrientationKey, orientation))
	}
	return attrs
}

// RecordingAttributes creates recording-result span attributes.
func RecordingAttributes(id, backend string, frames uint64, bytes int64) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(RecordingIDKey, id),
		attribute.String(RecordingBackendKey, backend),
		attribute.Int64(RecordingFramesKey, int64(frames)),
		attribute.Int64(RecordingBytesKey, bytes),
	}
}

// ErrorAttributes creates error-related span attributes.
func ErrorAttributes(_ error, errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorTypeKey, errorType),
	}
}
