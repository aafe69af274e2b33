package mapper

import (
	"github.com/retroenv/retrogolib/arch/system/nes/codedatalog"
)

// CodeDataLogEntries returns the guest addresses of all subroutine entry
// points marked in a code/data log. Flag index 0 maps to base, flags at or
// beyond size are ignored.
func CodeDataLogEntries(prgFlags []codedatalog.PrgFlag, base uint16, size int) []uint16 {
	var entries []uint16
	for index, flags := range prgFlags {
		if index >= size || int(base)+index > 0xffff {
			break
		}
		if flags&codedatalog.SubEntryPoint != 0 {
			entries = append(entries, base+uint16(index))
		}
	}
	return entries
}
