// Package internal contains a placeholder to ensure test-only dependencies
// are tracked in go.mod. These imports are used by _test.go files across
// the internal packages.
package internal

import (
	_ "github.com/leanovate/gopter"
	_ "golang.org/x/net/html"
)
