// Package device wraps PortAudio microphone capture and speaker playback.
// Initialize must be called once before any stream is opened and Terminate
// once on shutdown.
package device
