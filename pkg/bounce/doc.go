// Package bounce implements the per-key debounce filter that suppresses
// spurious repeated key presses produced by chattering keyboard switches.
//
// A Filter only decides. Cancelling the input and routing block
// notifications to the rest of the system is left to the caller.
package bounce
