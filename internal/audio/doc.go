// Package audio handles PCM formats, audio containers and reply assembly.
// It encodes captured utterances to WAV for recognition, decodes streamed
// WAV/MP3 replies into playable PCM, reorders sequenced network frames and
// archives replies to disk.
package audio
