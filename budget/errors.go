package budget

import "errors"

var errDestroyed = errors.New("budget: enforcer destroyed")
