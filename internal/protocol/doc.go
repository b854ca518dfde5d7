// Package protocol implements the framed audio packets sent by network
// microphones: a fixed 8-byte header followed by a hello, audio or bye
// payload. Multi-byte header fields are big-endian; PCM samples are
// little-endian.
package protocol
