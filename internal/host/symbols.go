package host

import "fmt"

// Helper is a host function callable from generated code. It receives the
// argument registers and returns the value placed into RegRet.
type Helper func(args [3]uint64) (uint64, error)

type namedHelper struct {
	name string
	fn   Helper
}

// Symbols interns the buffers and helper functions referenced by generated
// code. Code refers to them by index, so a compiled block stays valid for
// as long as the symbol table it was built against.
type Symbols struct {
	pointers    [][]byte
	pointerIDs  map[*byte]uint32
	helpers     []namedHelper
	helperIDs   map[string]uint32
	helperCalls []uint64
}

// NewSymbols returns an empty symbol table.
func NewSymbols() *Symbols {
	return &Symbols{
		pointerIDs: map[*byte]uint32{},
		helperIDs:  map[string]uint32{},
	}
}

// Pointer interns a memory buffer and returns its index. Interning the same
// backing array twice returns the same index.
func (s *Symbols) Pointer(buf []byte) uint32 {
	var key *byte
	if len(buf) > 0 {
		key = &buf[0]
	}
	if id, ok := s.pointerIDs[key]; ok && key != nil {
		return id
	}

	id := uint32(len(s.pointers))
	s.pointers = append(s.pointers, buf)
	if key != nil {
		s.pointerIDs[key] = id
	}
	return id
}

// Helper interns a helper function under a unique name and returns its
// index. The first function registered for a name wins.
func (s *Symbols) Helper(name string, fn Helper) uint32 {
	if id, ok := s.helperIDs[name]; ok {
		return id
	}

	id := uint32(len(s.helpers))
	s.helpers = append(s.helpers, namedHelper{name: name, fn: fn})
	s.helperCalls = append(s.helperCalls, 0)
	s.helperIDs[name] = id
	return id
}

// HelperName returns the name of an interned helper.
func (s *Symbols) HelperName(id uint32) string {
	if int(id) >= len(s.helpers) {
		return fmt.Sprintf("helper#%d", id)
	}
	return s.helpers[id].name
}

// HelperCalls returns how often the named helper was called by generated code.
func (s *Symbols) HelperCalls(name string) uint64 {
	id, ok := s.helperIDs[name]
	if !ok {
		return 0
	}
	return s.helperCalls[id]
}

func (s *Symbols) buffer(id uint32) ([]byte, error) {
	if int(id) >= len(s.pointers) {
		return nil, fmt.Errorf("%w: pointer %d", ErrUnknownSymbol, id)
	}
	return s.pointers[id], nil
}

func (s *Symbols) call(id uint32, args [3]uint64) (uint64, error) {
	if int(id) >= len(s.helpers) {
		return 0, fmt.Errorf("%w: helper %d", ErrUnknownSymbol, id)
	}
	s.helperCalls[id]++
	h := s.helpers[id]
	ret, err := h.fn(args)
	if err != nil {
		return 0, fmt.Errorf("calling helper %s: %w", h.name, err)
	}
	return ret, nil
}
