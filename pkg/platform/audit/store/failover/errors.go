package failover

import "errors"

var errNoReader = errors.New("fallback audit store does not support reads")
