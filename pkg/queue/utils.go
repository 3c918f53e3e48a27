package queue

import (
	"fmt"
	"strings"
)

// qualifiedStructName returns "pkg.Type" for v, ignoring pointer indirection.
func qualifiedStructName(v any) string {
	return strings.TrimLeft(fmt.Sprintf("%T", v), "*")
}
