// Package dedupe suppresses inbound events the homeserver delivers more than once
// within a short window.
package dedupe
