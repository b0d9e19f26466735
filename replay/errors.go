package replay

import "errors"

var errDestroyed = errors.New("replay: guard destroyed")
