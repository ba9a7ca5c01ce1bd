package enums

import (
	"fmt"
	"slices"
)

// closed is the member list of a string-backed enum. kind appears in parse
// errors, e.g. "invalid order status".
type closed[T ~string] struct {
	kind    string
	members []T
}

func (c closed[T]) has(v T) bool {
	return slices.Contains(c.members, v)
}

func (c closed[T]) parse(raw string) (T, error) {
	if v := T(raw); c.has(v) {
		return v, nil
	}
	var zero T
	return zero, fmt.Errorf("invalid %s %q", c.kind, raw)
}
