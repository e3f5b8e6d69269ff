package gamehub

import _ "embed"

//go:embed client/host.html
var hostHTML []byte

//go:embed client/play.html
var playHTML []byte

//go:embed client/app.css
var clientCSS []byte

//go:embed client/app.js
var clientJS []byte
