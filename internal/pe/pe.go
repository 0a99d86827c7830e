// Package pe provides a read-only view of a loaded PE module's allocation
// base, export directory and import descriptors, for both the local process
// and a snapshot of a remote one. It exists because stdlib debug/pe only
// parses on-disk files: it has no notion of a module already relocated and
// mapped into a process's address space, which is what the hook engine and
// the injector both need to walk.
package pe

import (
	"bytes"
	"encoding/binary"
	"errors"
	"strings"
)

// ErrNotFound is returned when a name or address lookup does not resolve.
var ErrNotFound = errors.New("pe: not found")

// Reader abstracts reading a span of bytes starting at a virtual address.
// OpenLocal implements it by direct pointer dereference (via unsafe, in the
// windows-only file); OpenRemote implements it via ReadProcessMemory.
type Reader interface {
	ReadAt(addr uintptr, n int) ([]byte, error)
}

// Image is a parsed view of one loaded module.
type Image struct {
	Base    uintptr
	Size    uint32
	reader  Reader
	exports map[string]uint32 // name -> RVA
	ordExp  map[uint16]uint32 // ordinal -> RVA
	imports []Import
}

// Import is one DLL's import descriptor: parallel name/ordinal and
// pointer-slot arrays.
type Import struct {
	DLL     string
	Names   []string  // "" entries are ordinal-only imports
	Ords    []uint16  // valid only where the matching Names entry is ""
	Slots   []uintptr // in-memory function-pointer slot addresses (IAT entries)
	Targets []uintptr // current resolved value at each slot
}

const (
	peHeaderOffsetAt = 0x3c
	imageDirExport   = 0
	imageDirImport   = 1
)

// Parse walks the export and import directories of a module already mapped
// at base, using reader to fetch bytes. It supports both PE32 and PE32+.
func Parse(reader Reader, base uintptr) (*Image, error) {
	img := &Image{
		Base:    base,
		reader:  reader,
		exports: map[string]uint32{},
		ordExp:  map[uint16]uint32{},
	}

	dosHdr, err := reader.ReadAt(base, 0x40)
	if err != nil {
		return nil, err
	}
	peOff := uintptr(binary.LittleEndian.Uint32(dosHdr[peHeaderOffsetAt:]))

	peSig, err := reader.ReadAt(base+peOff, 4)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(peSig, []byte("PE\x00\x00")) {
		return nil, errors.New("pe: bad signature")
	}

	coffOff := base + peOff + 4
	coff, err := reader.ReadAt(coffOff, 20)
	if err != nil {
		return nil, err
	}
	numSections := binary.LittleEndian.Uint16(coff[2:])
	optHdrSize := binary.LittleEndian.Uint16(coff[16:])

	optOff := coffOff + 20
	opt, err := reader.ReadAt(optOff, int(optHdrSize))
	if err != nil {
		return nil, err
	}
	magic := binary.LittleEndian.Uint16(opt[0:])
	is64 := magic == 0x20b

	var dataDirOff int
	if is64 {
		dataDirOff = 112
	} else {
		dataDirOff = 96
	}
	if is64 {
		img.Size = binary.LittleEndian.Uint32(opt[56:]) // SizeOfImage
	} else {
		img.Size = binary.LittleEndian.Uint32(opt[56:])
	}

	dir := func(idx int) (rva, size uint32) {
		o := dataDirOff + idx*8
		if o+8 > len(opt) {
			return 0, 0
		}
		return binary.LittleEndian.Uint32(opt[o:]), binary.LittleEndian.Uint32(opt[o+4:])
	}

	_ = numSections

	if expRVA, expSize := dir(imageDirExport); expRVA != 0 {
		if err := img.parseExports(expRVA, expSize); err != nil {
			return nil, err
		}
	}
	if impRVA, impSize := dir(imageDirImport); impRVA != 0 {
		if err := img.parseImports(impRVA, impSize, is64); err != nil {
			return nil, err
		}
	}

	return img, nil
}

func (img *Image) parseExports(rva, size uint32) error {
	hdr, err := img.reader.ReadAt(img.Base+uintptr(rva), 40)
	if err != nil {
		return err
	}
	numFuncs := binary.LittleEndian.Uint32(hdr[20:])
	numNames := binary.LittleEndian.Uint32(hdr[24:])
	funcsRVA := binary.LittleEndian.Uint32(hdr[28:])
	namesRVA := binary.LittleEndian.Uint32(hdr[32:])
	ordsRVA := binary.LittleEndian.Uint32(hdr[36:])
	base := binary.LittleEndian.Uint32(hdr[16:])

	funcsBuf, err := img.reader.ReadAt(img.Base+uintptr(funcsRVA), int(numFuncs)*4)
	if err != nil {
		return err
	}
	for i := uint32(0); i < numNames; i++ {
		nameRVABuf, err := img.reader.ReadAt(img.Base+uintptr(namesRVA)+uintptr(i*4), 4)
		if err != nil {
			return err
		}
		nameRVA := binary.LittleEndian.Uint32(nameRVABuf)
		name, err := img.readCString(img.Base + uintptr(nameRVA))
		if err != nil {
			continue
		}
		ordBuf, err := img.reader.ReadAt(img.Base+uintptr(ordsRVA)+uintptr(i*2), 2)
		if err != nil {
			continue
		}
		ordIdx := binary.LittleEndian.Uint16(ordBuf)
		funcRVA := binary.LittleEndian.Uint32(funcsBuf[ordIdx*4:])
		img.exports[strings.ToLower(name)] = funcRVA
		img.ordExp[uint16(base)+ordIdx] = funcRVA
	}
	return nil
}

func (img *Image) parseImports(rva, size uint32, is64 bool) error {
	const descSize = 20
	ptrSize := 4
	if is64 {
		ptrSize = 8
	}
	for off := uint32(0); ; off += descSize {
		desc, err := img.reader.ReadAt(img.Base+uintptr(rva)+uintptr(off), descSize)
		if err != nil {
			break
		}
		origFirstThunk := binary.LittleEndian.Uint32(desc[0:])
		nameRVA := binary.LittleEndian.Uint32(desc[12:])
		firstThunk := binary.LittleEndian.Uint32(desc[16:])
		if nameRVA == 0 && firstThunk == 0 && origFirstThunk == 0 {
			break
		}
		dllName, err := img.readCString(img.Base + uintptr(nameRVA))
		if err != nil {
			continue
		}
		thunkRVA := origFirstThunk
		if thunkRVA == 0 {
			thunkRVA = firstThunk
		}

		imp := Import{DLL: dllName}
		for i := uint32(0); ; i++ {
			thunkAddr := img.Base + uintptr(thunkRVA) + uintptr(i)*uintptr(ptrSize)
			thunkBuf, err := img.reader.ReadAt(thunkAddr, ptrSize)
			if err != nil {
				break
			}
			var thunk uint64
			if is64 {
				thunk = binary.LittleEndian.Uint64(thunkBuf)
			} else {
				thunk = uint64(binary.LittleEndian.Uint32(thunkBuf))
			}
			if thunk == 0 {
				break
			}

			slot := img.Base + uintptr(firstThunk) + uintptr(i)*uintptr(ptrSize)
			slotBuf, err := img.reader.ReadAt(slot, ptrSize)
			if err != nil {
				break
			}
			var target uint64
			if is64 {
				target = binary.LittleEndian.Uint64(slotBuf)
			} else {
				target = uint64(binary.LittleEndian.Uint32(slotBuf))
			}

			ordFlag := uint64(1) << 63
			if !is64 {
				ordFlag = uint64(1) << 31
			}
			if thunk&ordFlag != 0 {
				imp.Names = append(imp.Names, "")
				imp.Ords = append(imp.Ords, uint16(thunk&0xffff))
			} else {
				name, err := img.readCString(img.Base + uintptr(thunk) + 2)
				if err != nil {
					name = ""
				}
				imp.Names = append(imp.Names, name)
				imp.Ords = append(imp.Ords, 0)
			}
			imp.Slots = append(imp.Slots, slot)
			imp.Targets = append(imp.Targets, uintptr(target))
		}
		img.imports = append(img.imports, imp)
	}
	return nil
}

func (img *Image) readCString(addr uintptr) (string, error) {
	const chunk = 64
	var buf bytes.Buffer
	for {
		b, err := img.reader.ReadAt(addr, chunk)
		if err != nil {
			if buf.Len() > 0 {
				return buf.String(), nil
			}
			return "", err
		}
		if idx := bytes.IndexByte(b, 0); idx >= 0 {
			buf.Write(b[:idx])
			return buf.String(), nil
		}
		buf.Write(b)
		addr += chunk
	}
}

// Export looks up an export by case-insensitive name, returning its RVA.
func (img *Image) Export(name string) (rva uint32, ok bool) {
	rva, ok = img.exports[strings.ToLower(name)]
	return
}

// ExportByOrdinal looks up an export by ordinal number.
func (img *Image) ExportByOrdinal(ord uint16) (rva uint32, ok bool) {
	rva, ok = img.ordExp[ord]
	return
}

// Imports returns all parsed import descriptors.
func (img *Image) Imports() []Import { return img.imports }

// FindImportSlot finds the IAT slot address importing dll!name (both
// case-insensitive).
func (img *Image) FindImportSlot(dll, name string) (slot uintptr, ok bool) {
	for _, imp := range img.imports {
		if dll != "" && !strings.EqualFold(imp.DLL, dll) {
			continue
		}
		for i, n := range imp.Names {
			if strings.EqualFold(n, name) {
				return imp.Slots[i], true
			}
		}
	}
	return 0, false
}

// FindImportSlotByAddress finds the IAT slot currently pointing at addr,
// used when the same symbol name is exported from more than one DLL and
// the caller resolved the real address already.
func (img *Image) FindImportSlotByAddress(addr uintptr) (slot uintptr, ok bool) {
	for _, imp := range img.imports {
		for i, t := range imp.Targets {
			if t == addr {
				return imp.Slots[i], true
			}
		}
	}
	return 0, false
}
