// Package mapnik adapts libmapnik, through go-mapnik, as the "mapnik" render
// engine. It needs cgo and the mapnik libraries, so the engine is only
// compiled with the mapnik build tag:
//
//	go build -tags mapnik ./...
//
// Input plugins are loaded from $MAPNIK_INPUT_PLUGINS, or
// /usr/lib/mapnik/3.1/input if unset. Fonts are loaded from $MAPNIK_FONTS
// if set.
package mapnik
