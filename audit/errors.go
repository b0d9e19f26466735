package audit

import "fmt"

type panicError struct{ v any }

func (p panicError) Error() string { return fmt.Sprintf("audit sink panicked: %v", p.v) }
