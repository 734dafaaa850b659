package discovery

import "errors"

// ErrInvalidOverrides is returned for malformed override files.
var ErrInvalidOverrides = errors.New("discovery: invalid overrides")
