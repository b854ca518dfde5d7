// Package turn implements the client for the remote conversational
// service. One utterance transcript is posted per turn and the synthesized
// audio reply is exposed as a stream. Requests are never retried.
package turn
