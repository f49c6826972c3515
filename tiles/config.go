package tiles

// DefaultEmptyTileSize is the byte size of a blank 256x256 tile as written by
// mapnik's png256 encoder. Other engines and encoders differ.
const DefaultEmptyTileSize int64 = 103

// MinBuffer is the smallest render buffer, in pixels, used around a tile
const MinBuffer = 128

// RenderConfig holds parameters used for rendering tiles
type RenderConfig struct {
	Buffer        int
	EmptyTileSize int64
	TMS           bool
}

func NewDefaultRenderConfig() *RenderConfig {
	return &RenderConfig{
		Buffer:        MinBuffer,
		EmptyTileSize: DefaultEmptyTileSize,
		TMS:           false,
	}
}

func NewRenderConfig(buffer int, emptyTileSize int64, tms bool) *RenderConfig {
	if buffer < MinBuffer {
		buffer = MinBuffer
	}
	return &RenderConfig{
		Buffer:        buffer,
		EmptyTileSize: emptyTileSize,
		TMS:           tms,
	}
}
