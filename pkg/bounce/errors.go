package bounce

import "errors"

// ErrInvalidSignal indicates Process received something that is not a key press.
var ErrInvalidSignal = errors.New("bounce filter can only process key press signals")

// ErrInvalidConfig indicates filter options that cannot produce well-defined decisions.
var ErrInvalidConfig = errors.New("invalid bounce filter configuration")
