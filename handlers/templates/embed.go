package templates

import "embed"

// FS holds the HTML templates served by the handlers package.
//
//go:embed *.html
var FS embed.FS
