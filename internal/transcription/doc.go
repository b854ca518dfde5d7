// Package transcription turns captured utterances into text.
// The Whisper client uploads the utterance as a WAV file through the
// OpenAI audio API and classifies failures so the conversation loop can
// decide whether to log and keep listening.
package transcription
