// Package conversation implements the listen, transcribe, respond and play
// cycle. A Loop owns the conversation state and the session; it captures
// an utterance only while Listening, switches to Chatting when a turn is
// dispatched and returns to Listening on every exit path of the turn.
package conversation
