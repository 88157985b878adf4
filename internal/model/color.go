package model

// Color packs a palette index and a legacy colour into one 32-bit value.
//
// Layout (persisted, must stay bit-exact):
//
//	bits 31..28  palette index 0..11
//	bits 27..0   legacy ARGB value masked to 28 bits
//
// Older rows only stored the ARGB value, so renderers that ignore the top
// nibble keep working off the low 28 bits.
type Color uint32

const (
	paletteShift = 28
	legacyMask   = 1<<paletteShift - 1
)

// EncodeColor packs index and raw into a Color. Index is truncated to 4 bits.
func EncodeColor(index int, raw uint32) Color {
	return Color(uint32(index&0xF)<<paletteShift | raw&legacyMask)
}

// ColorFromInt32 reinterprets a persisted signed integer.
func ColorFromInt32(v int32) Color {
	return Color(uint32(v))
}

// Index returns the palette index stored in the top nibble.
func (c Color) Index() int {
	return int(uint32(c) >> paletteShift)
}

// Legacy returns the low 28 bits.
func (c Color) Legacy() uint32 {
	return uint32(c) & legacyMask
}

// ARGB rebuilds an opaque ARGB value from the legacy bits.
func (c Color) ARGB() uint32 {
	return 0xFF000000 | uint32(c)&0x00FFFFFF
}

// Int32 is the signed form stored by the persistence layer.
func (c Color) Int32() int32 {
	return int32(uint32(c))
}
