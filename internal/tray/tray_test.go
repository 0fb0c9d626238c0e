package tray

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIconLayout(t *testing.T) {
	icon := getIcon()
	assert.Equal(t, uint16(1), binary.LittleEndian.Uint16(icon[2:4]), "type icon")
	assert.Equal(t, uint16(1), binary.LittleEndian.Uint16(icon[4:6]), "one image")

	size := binary.LittleEndian.Uint32(icon[14:18])
	offset := binary.LittleEndian.Uint32(icon[18:22])
	assert.Equal(t, uint32(len(icon)), size+offset)
	assert.Equal(t, uint32(40), binary.LittleEndian.Uint32(icon[offset:offset+4]))
}
