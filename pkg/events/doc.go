// Package events streams keyboard and pointer events from an input source
// through a key-press gate, using either the macOS Quartz event tap (with
// Accessibility approval), newline-delimited JSON recordings, or a
// deterministic synthetic source for non-darwin platforms and automated tests.
package events
