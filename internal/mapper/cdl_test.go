package mapper

import (
	"testing"

	"github.com/retroenv/retrogolib/arch/system/nes/codedatalog"
	"github.com/retroenv/retrogolib/assert"
)

func TestCodeDataLogEntries(t *testing.T) {
	prgFlags := []codedatalog.PrgFlag{
		codedatalog.SubEntryPoint,
		codedatalog.Code,
		codedatalog.Code | codedatalog.SubEntryPoint,
		0,
		codedatalog.SubEntryPoint,
	}

	tests := []struct {
		name string
		base uint16
		size int
		want []uint16
	}{
		{name: "all flags", base: 0x8000, size: 0x100, want: []uint16{0x8000, 0x8002, 0x8004}},
		{name: "limited size", base: 0x8000, size: 4, want: []uint16{0x8000, 0x8002}},
		{name: "address space end", base: 0xfffe, size: 0x100, want: []uint16{0xfffe}},
		{name: "empty", base: 0x8000, size: 0, want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CodeDataLogEntries(prgFlags, tt.base, tt.size))
		})
	}
}
