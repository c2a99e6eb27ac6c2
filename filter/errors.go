package filter

import "errors"

// ErrDiverged flags a NaN or infinity detected in the covariance after an
// update. The run aborts; recovery is not attempted.
var ErrDiverged = errors.New("filter: covariance diverged")
