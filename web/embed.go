package web

import "embed"

// FS contains the browser control page served by the WebSocket transport.
//
//go:embed *.html *.css *.js
var FS embed.FS
