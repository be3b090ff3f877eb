//go:build never

package sandtrap

// This file pins the tools used by this repository so `go mod tidy`
// keeps their modules in go.mod at a known version.

import (
	_ "golang.org/x/tools/cmd/goimports"
	_ "golang.org/x/tools/cmd/stringer"
	_ "mvdan.cc/gofumpt"
)
