package pe

import "testing"

// bufReader serves Parse's Reader interface out of an in-memory image,
// letting the directory-walking logic be tested on any platform without a
// real loaded module.
type bufReader struct{ data []byte }

func (b bufReader) ReadAt(addr uintptr, n int) ([]byte, error) {
	if int(addr)+n > len(b.data) {
		n = len(b.data) - int(addr)
	}
	if n < 0 {
		n = 0
	}
	return b.data[addr : int(addr)+n], nil
}

// synthPE64 builds a minimal PE32+ image in memory with one export
// ("DoThing") and one import (KERNEL32.DLL!LoadLibraryA), enough to exercise
// parseExports/parseImports without needing a real Windows module.
func synthPE64(t *testing.T) []byte {
	t.Helper()
	buf := make([]byte, 4096)
	le32 := func(off int, v uint32) { for i := 0; i < 4; i++ { buf[off+i] = byte(v >> (8 * i)) } }
	le16 := func(off int, v uint16) { for i := 0; i < 2; i++ { buf[off+i] = byte(v >> (8 * i)) } }
	le64 := func(off int, v uint64) { for i := 0; i < 8; i++ { buf[off+i] = byte(v >> (8 * i)) } }
	str := func(off int, s string) { copy(buf[off:], s) }

	const peOff = 0x80
	le32(0x3c, peOff)
	str(peOff, "PE\x00\x00")
	le16(peOff+4+2, 0) // NumberOfSections (unused by parser beyond presence)
	le16(peOff+4+16, 240) // SizeOfOptionalHeader

	optOff := peOff + 4 + 20
	le16(optOff, 0x20b) // PE32+ magic
	le32(optOff+56, 0x3000) // SizeOfImage

	const dataDirOff = 112
	exportRVA, exportSize := uint32(0x500), uint32(0x100)
	importRVA := uint32(0x700)
	le32(optOff+dataDirOff+0*8, exportRVA)
	le32(optOff+dataDirOff+0*8+4, exportSize)
	le32(optOff+dataDirOff+1*8, importRVA)
	le32(optOff+dataDirOff+1*8+4, 0x100)

	// Export directory.
	namesRVA, ordsRVA, funcsRVA := uint32(0x560), uint32(0x570), uint32(0x580)
	nameStrRVA := uint32(0x590)
	le32(int(exportRVA)+16, 1)        // Base ordinal
	le32(int(exportRVA)+20, 1)        // NumberOfFunctions
	le32(int(exportRVA)+24, 1)        // NumberOfNames
	le32(int(exportRVA)+28, funcsRVA) // AddressOfFunctions
	le32(int(exportRVA)+32, namesRVA) // AddressOfNames
	le32(int(exportRVA)+36, ordsRVA)  // AddressOfNameOrdinals
	le32(int(funcsRVA), 0x1234)
	le32(int(namesRVA), nameStrRVA)
	le16(int(ordsRVA), 0)
	str(int(nameStrRVA), "DoThing\x00")

	// Import descriptor table: one descriptor + a null terminator.
	dllNameRVA := uint32(0x7a0)
	thunkRVA := uint32(0x7c0)
	iatRVA := uint32(0x7e0)
	hintNameRVA := uint32(0x800)
	le32(int(importRVA)+0, thunkRVA)  // OriginalFirstThunk
	le32(int(importRVA)+12, dllNameRVA)
	le32(int(importRVA)+16, iatRVA) // FirstThunk
	str(int(dllNameRVA), "KERNEL32.DLL\x00")
	le64(int(thunkRVA), uint64(hintNameRVA))
	le64(int(iatRVA), 0xdeadbeef)
	le16(int(hintNameRVA), 0) // hint
	str(int(hintNameRVA)+2, "LoadLibraryA\x00")

	return buf
}

func TestParseExportsAndImports(t *testing.T) {
	img, err := Parse(bufReader{synthPE64(t)}, 0)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	rva, ok := img.Export("dothing")
	if !ok || rva != 0x1234 {
		t.Fatalf("Export lookup = %#x, %v", rva, ok)
	}
	if _, ok := img.Export("nope"); ok {
		t.Fatal("expected miss for unknown export")
	}

	slot, ok := img.FindImportSlot("kernel32.dll", "LoadLibraryA")
	if !ok {
		t.Fatal("expected to find import slot")
	}
	if slot != uintptr(0x7e0) {
		t.Fatalf("slot = %#x, want %#x", slot, 0x7e0)
	}

	slot2, ok := img.FindImportSlotByAddress(0xdeadbeef)
	if !ok || slot2 != slot {
		t.Fatalf("FindImportSlotByAddress = %#x, %v", slot2, ok)
	}
}
