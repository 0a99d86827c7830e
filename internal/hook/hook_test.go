package hook

import "testing"

func TestMaskSize(t *testing.T) {
	cases := []struct {
		mask uint32
		want int
	}{
		{0xffffffff, 4},
		{0x0000ffff, 2},
		{0x000000ff, 1},
		{0x00ffffff, 3},
	}
	for _, c := range cases {
		if got := maskSize(c.mask); got != c.want {
			t.Errorf("maskSize(%#x) = %d, want %d", c.mask, got, c.want)
		}
	}
}

func TestInstructionLengthAMD64(t *testing.T) {
	cases := []struct {
		name   string
		prolog uint32
		want   int
	}{
		{"sub rsp,38h", 0x38ec8348, 4},
		{"push rbx (f3ff)", 0x1234f3ff, 2},
		{"mov r11,rsp", 0x00dc8b4c, 3},
		{"mov reg64,imm64", 0x0000b848, 10},
		{"jmp rel32", 0x000000e9, 5},
		{"unrecognized", 0xdeadbeef, 0},
	}
	for _, c := range cases {
		if got := instructionLength(c.prolog, amd64Tags); got != c.want {
			t.Errorf("%s: instructionLength(%#x) = %d, want %d", c.name, c.prolog, got, c.want)
		}
	}
}

func TestInstructionLengthX86(t *testing.T) {
	if got := instructionLength(0x1234ff8b, x86Tags); got != 2 {
		t.Errorf("mov edi,edi: got %d, want 2", got)
	}
}

func TestWriteRelJmp(t *testing.T) {
	buf := writeRelJmp(0x1000, 0x2000)
	if buf[0] != 0xe9 {
		t.Fatalf("opcode = %#x, want 0xe9", buf[0])
	}
	disp := int32(buf[1]) | int32(buf[2])<<8 | int32(buf[3])<<16 | int32(buf[4])<<24
	if want := int32(0x2000 - 0x1000 - 5); disp != want {
		t.Errorf("disp = %d, want %d", disp, want)
	}
}

func TestNopOrInt3Slide(t *testing.T) {
	if !nopOrInt3Slide([]byte{0x90, 0x90, 0x90, 0x90, 0x90}) {
		t.Error("nop slide should match")
	}
	if !nopOrInt3Slide([]byte{0xcc, 0xcc, 0x90, 0xcc, 0x90}) {
		t.Error("mixed nop/int3 should match")
	}
	if nopOrInt3Slide([]byte{0x90, 0x90, 0x41, 0x90, 0x90}) {
		t.Error("foreign byte should not match")
	}
	if nopOrInt3Slide([]byte{0x90, 0x90}) {
		t.Error("wrong length should not match")
	}
}

func TestFollowJumpIndirectStub(t *testing.T) {
	// FF 25 <rel32> is a RIP-relative indirect jump; modrm 0x25 = mod=00,
	// reg=100(/4), rm=101 -> extension 4, rm 5: matches clink's stub shape.
	dest, ok := followJump(0xff, 0x25, 0, 0x1000, func(effAddr uintptr) (uintptr, bool) {
		if effAddr != 0x1000 {
			t.Errorf("effAddr = %#x, want %#x", effAddr, 0x1000)
		}
		return 0x9999, true
	})
	if !ok || dest != 0x9999 {
		t.Fatalf("followJump = %#x, %v", dest, ok)
	}
}

func TestFollowJumpNonStub(t *testing.T) {
	if _, ok := followJump(0x90, 0x00, 0, 0, func(uintptr) (uintptr, bool) { return 0, true }); ok {
		t.Error("nop opcode should not be treated as a jump stub")
	}
}
