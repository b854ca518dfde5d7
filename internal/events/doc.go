// Package events fans out conversation loop events to observers such as
// the websocket feed. Publishing never blocks the loop: a subscriber that
// falls behind loses events.
package events
