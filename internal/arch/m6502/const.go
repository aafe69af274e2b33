package m6502

// Status flag bits.
const (
	FlagCarry     byte = 0
	FlagZero      byte = 1
	FlagInterrupt byte = 2
	FlagDecimal   byte = 3
	FlagBreak     byte = 4
	FlagUnused    byte = 5
	FlagOverflow  byte = 6
	FlagNegative  byte = 7
)

const (
	// StackPage is the address of the hardware stack page.
	StackPage = 0x0100

	// InitialSP is the stack pointer after power up.
	InitialSP = 0xfd
	// InitialStatus is the status byte after power up, interrupts are
	// disabled and the unused bit is set.
	InitialStatus = 1<<FlagUnused | 1<<FlagInterrupt
)
