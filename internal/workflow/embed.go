package workflow

import (
	"embed"
	"io/fs"
)

// bundledWorkflows embeds the workflow documents shipped with phaseguide.
//
//go:embed workflows/*.yaml
var bundledWorkflows embed.FS

// BundledFS returns the embedded workflow documents with the "workflows/"
// prefix removed.
func BundledFS() fs.FS {
	sub, err := fs.Sub(bundledWorkflows, "workflows")
	if err != nil {
		// fs.Sub only fails on an invalid path, which is a constant here.
		panic(err)
	}
	return sub
}
