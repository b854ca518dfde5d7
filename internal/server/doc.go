// Package server implements the HTTP API of the voice client: health and
// status endpoints, the sanitized configuration, Prometheus metrics and a
// websocket feed of conversation events.
package server
