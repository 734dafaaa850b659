package warehouse

import "errors"

// ErrStartFailed wraps a warehouse Start error or panic.
var ErrStartFailed = errors.New("warehouse: start failed")
