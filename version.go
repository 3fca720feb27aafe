package nlock

import (
	_ "embed"
	"strings"
)

//go:embed VERSION
var versionFile string

// Version is the current version of this module.
var Version = strings.TrimSpace(versionFile)
