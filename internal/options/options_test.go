package options

import (
	"testing"

	"github.com/retroenv/retrogolib/assert"
)

func TestEntryAddress(t *testing.T) {
	tests := []struct {
		entry    string
		address  uint16
		override bool
		wantErr  bool
	}{
		{entry: "", address: 0, override: false},
		{entry: "c000", address: 0xc000, override: true},
		{entry: "0xC000", address: 0xc000, override: true},
		{entry: "$8000", address: 0x8000, override: true},
		{entry: "10000", wantErr: true},
		{entry: "zz", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.entry, func(t *testing.T) {
			opts := Program{Flags: Flags{Entry: tt.entry}}
			address, override, err := opts.EntryAddress()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.address, address)
			assert.Equal(t, tt.override, override)
		})
	}
}

func TestBreakpoints(t *testing.T) {
	opts := Program{Parameters: Parameters{Break: "c000, $c010,0x8000"}}
	addresses, err := opts.Breakpoints()
	assert.NoError(t, err)
	assert.Equal(t, []uint16{0xc000, 0xc010, 0x8000}, addresses)

	addresses, err = Program{}.Breakpoints()
	assert.NoError(t, err)
	assert.Len(t, addresses, 0)

	_, err = Program{Parameters: Parameters{Break: "c000,,"}}.Breakpoints()
	assert.ErrorContains(t, err, "parsing breakpoint")
}
