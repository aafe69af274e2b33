// Package loader handles cartridge file loading and maps the cartridge into
// the guest address space.
package loader

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	arch6502 "github.com/retroenv/nesjit/internal/arch/m6502"
	"github.com/retroenv/nesjit/internal/mapper"
	"github.com/retroenv/nesjit/internal/options"
	"github.com/retroenv/retrogolib/arch/system/nes/cartridge"
	"github.com/retroenv/retrogolib/arch/system/nes/codedatalog"
	"github.com/retroenv/retrogolib/log"
)

const (
	// RAMSize is the size of the internal RAM.
	RAMSize = 0x800
	// PRGStartPage is the page the program image is mapped at.
	PRGStartPage = 0x80
	// MaxPRGSize is the largest program image that fits without bank
	// switching.
	MaxPRGSize = 0x8000

	prgBankSize = 0x4000
)

// ramMirrorPages are the start pages of the internal RAM mirrors.
var ramMirrorPages = []uint8{0x08, 0x10, 0x18}

var ErrEmptyProgram = errors.New("cartridge contains no program data")

// Loader handles loading cartridge files from disk.
type Loader struct {
	logger *log.Logger
}

// New creates a new cartridge loader.
func New(logger *log.Logger) *Loader {
	return &Loader{
		logger: logger,
	}
}

// Load loads and parses a cartridge file. In binary mode the file is read
// as raw program data without a header.
func (l *Loader) Load(opts options.Program) (*cartridge.Cartridge, error) {
	file, err := os.Open(opts.Input)
	if err != nil {
		return nil, fmt.Errorf("opening file %s: %w", opts.Input, err)
	}
	defer func() { _ = file.Close() }()

	var cart *cartridge.Cartridge
	if opts.Binary {
		cart, err = cartridge.LoadBuffer(file)
	} else {
		cart, err = cartridge.LoadFile(file)
	}
	if err != nil {
		return nil, fmt.Errorf("loading cartridge: %w", err)
	}
	return cart, nil
}

// LoadFromBytes parses a cartridge from memory.
func (l *Loader) LoadFromBytes(data []byte, binary bool) (*cartridge.Cartridge, error) {
	reader := bytes.NewReader(data)

	var (
		cart *cartridge.Cartridge
		err  error
	)
	if binary {
		cart, err = cartridge.LoadBuffer(reader)
	} else {
		cart, err = cartridge.LoadFile(reader)
	}
	if err != nil {
		return nil, fmt.Errorf("loading cartridge: %w", err)
	}
	return cart, nil
}

// Map registers the internal RAM with its mirrors and the program image of
// the cartridge. A 16 KB program image is mirrored into the upper bank.
func (l *Loader) Map(m *mapper.Mapper, cart *cartridge.Cartridge) error {
	if len(cart.PRG) == 0 {
		return ErrEmptyProgram
	}

	ram, err := mapper.NewRAM(RAMSize)
	if err != nil {
		return fmt.Errorf("creating RAM: %w", err)
	}
	if _, err := m.Register(0x00, ram); err != nil {
		return fmt.Errorf("mapping RAM: %w", err)
	}

	for _, page := range ramMirrorPages {
		mirror, err := mapper.NewAlias(m, 0x0000, RAMSize)
		if err != nil {
			return fmt.Errorf("creating RAM mirror: %w", err)
		}
		if _, err := m.Register(page, mirror); err != nil {
			return fmt.Errorf("mapping RAM mirror at page %02x: %w", page, err)
		}
	}

	prg := cart.PRG
	if len(prg) > MaxPRGSize {
		l.logger.Warn("Program image is larger than the address window, only the first banks are mapped",
			log.Int("size", len(prg)))
		prg = prg[:MaxPRGSize]
	}
	if rem := len(prg) % mapper.PageSize; rem != 0 {
		prg = append(prg[:len(prg):len(prg)], make([]byte, mapper.PageSize-rem)...)
	}

	image, err := mapper.NewImage(bytes.NewReader(prg), len(prg))
	if err != nil {
		return fmt.Errorf("creating program image: %w", err)
	}
	if _, err := m.Register(PRGStartPage, image); err != nil {
		return fmt.Errorf("mapping program image: %w", err)
	}

	if len(prg) == prgBankSize {
		mirror, err := mapper.NewAlias(m, PRGStartPage<<8, prgBankSize)
		if err != nil {
			return fmt.Errorf("creating program mirror: %w", err)
		}
		if _, err := m.Register(PRGStartPage+prgBankSize>>8, mirror); err != nil {
			return fmt.Errorf("mapping program mirror: %w", err)
		}
	}

	regions := m.Regions()
	for _, region := range regions {
		l.logger.Debug("Mapped region",
			log.Hex("address", uint16(region.StartPage)<<8),
			log.Int("pages", region.Pages),
			log.Stringer("kind", region.Kind))
	}
	l.logger.Info("Mapped cartridge",
		log.Int("prg_size", len(cart.PRG)),
		log.Int("chr_size", len(cart.CHR)),
		log.Uint16("mapper", cart.Mapper),
		log.Int("regions", len(regions)))
	return nil
}

// LoadCodeDataLog loads the code/data log flags of the program image.
func (l *Loader) LoadCodeDataLog(cart *cartridge.Cartridge, path string) ([]codedatalog.PrgFlag, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening code/data log file %s: %w", path, err)
	}
	defer func() { _ = file.Close() }()

	prgFlags, err := codedatalog.LoadFile(cart, file)
	if err != nil {
		return nil, fmt.Errorf("loading code/data log file: %w", err)
	}
	return prgFlags, nil
}

// EntryAddress returns the address stored in the reset vector. The address
// must be mapped.
func (l *Loader) EntryAddress(m *mapper.Mapper) (uint16, error) {
	vectors, err := arch6502.ReadVectors(m)
	if err != nil {
		return 0, fmt.Errorf("reading interrupt vectors: %w", err)
	}

	l.logger.Debug("Interrupt vectors",
		log.Hex("nmi", vectors.NMI),
		log.Hex("reset", vectors.Reset),
		log.Hex("irq", vectors.IRQ))

	if !m.Mapped(vectors.Reset) {
		return 0, fmt.Errorf("%w: reset vector points to %04x", mapper.ErrUnmapped, vectors.Reset)
	}
	return vectors.Reset, nil
}
