package arch

import "fmt"

// Cursor reads guest memory sequentially starting at an address. The
// position wraps from 0xFFFF to 0x0000.
type Cursor struct {
	mem      Reader
	position uint16
}

// NewCursor returns a cursor positioned at address.
func NewCursor(mem Reader, address uint16) *Cursor {
	return &Cursor{
		mem:      mem,
		position: address,
	}
}

// Position returns the address of the next byte to read.
func (c *Cursor) Position() uint16 {
	return c.position
}

// Next reads the byte at the cursor position and advances the cursor.
func (c *Cursor) Next() (byte, error) {
	b, err := c.mem.Read(c.position)
	if err != nil {
		return 0, fmt.Errorf("reading memory at address %04x: %w", c.position, err)
	}
	c.position++
	return b, nil
}

// NextWord reads a little endian word and advances the cursor past it.
func (c *Cursor) NextWord() (uint16, error) {
	low, err := c.Next()
	if err != nil {
		return 0, err
	}
	high, err := c.Next()
	if err != nil {
		return 0, err
	}
	return uint16(high)<<8 | uint16(low), nil
}
