package host

import "errors"

var (
	ErrArenaFull      = errors.New("code arena full")
	ErrInvalidRegion  = errors.New("invalid code region")
	ErrUnboundLabel   = errors.New("unbound label")
	ErrUnknownSymbol  = errors.New("unknown symbol")
	ErrTrap           = errors.New("trap executed")
	ErrInvalidOpcode  = errors.New("invalid host opcode")
	ErrFault          = errors.New("memory fault")
	ErrStackOverflow  = errors.New("host stack overflow")
	ErrStackUnderflow = errors.New("host stack underflow")
)
