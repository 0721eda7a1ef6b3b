package kfmt

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
)

func TestPrintf(t *testing.T) {
	defer func() {
		outputSink = nil
	}()

	// mute vet warnings about malformed printf formatting strings
	printfn := Printf

	specs := []struct {
		fn        func()
		expOutput string
	}{
		{
			func() { printfn("page frame table ready") },
			"page frame table ready",
		},
		{
			func() { printfn("recursive: %t", true) },
			"recursive: true",
		},
		{
			func() { printfn("masked: %8t", false) },
			"masked: false",
		},
		{
			func() { printfn("found %s table", "APIC") },
			"found APIC table",
		},
		{
			func() { printfn("oem %s", []byte("LEARNOS")) },
			"oem LEARNOS",
		},
		{
			func() { printfn("[%6s]", "XSDT") },
			"[  XSDT]",
		},
		{
			func() { printfn("[%2s]", "FACP") },
			"[FACP]",
		},
		{
			func() { printfn("cpu %d", uint8(3)) },
			"cpu 3",
		},
		{
			func() { printfn("mode %o", uint16(0755)) },
			"mode 755",
		},
		{
			func() { printfn("lapic at 0x%x", uint32(0xfee00000)) },
			"lapic at 0xfee00000",
		},
		{
			func() { printfn("frames: '%8d'", uint64(1024)) },
			"frames: '    1024'",
		},
		{
			func() { printfn("mode '%5o'", uint64(0644)) },
			"mode '00644'",
		},
		{
			func() { printfn("phys 0x%16x", uint64(0x9fc00)) },
			"phys 0x000000000009fc00",
		},
		{
			func() { printfn("gsi base '0x%2x'", int64(0xfec00000)) },
			"gsi base '0xfec00000'",
		},
		{
			func() { printfn("rsdp at 0x%x", uintptr(0xe0000)) },
			"rsdp at 0xe0000",
		},
		{
			func() { printfn("delta: %d", int8(-4)) },
			"delta: -4",
		},
		{
			func() { printfn("signed octal: %o", int16(-010)) },
			"signed octal: -10",
		},
		{
			func() { printfn("signed hex: %x", int32(-0x1000)) },
			"signed hex: -1000",
		},
		{
			func() { printfn("padded: '%8d'", int64(-4096)) },
			"padded: '   -4096'",
		},
		{
			func() { printfn("exact fit: '%6d'", int64(-65536)) },
			"exact fit: '-65536'",
		},
		{
			func() { printfn("overflow: '%4d'", int64(-1048576)) },
			"overflow: '-1048576'",
		},
		{
			func() { printfn("short pad: '%3x'", int(-0xfee00000)) },
			"short pad: '-fee00000'",
		},
		{
			func() { printfn("padding longer than maxBufSize '%128x'", int(-0xfee00000)) },
			fmt.Sprintf("padding longer than maxBufSize '-%sfee00000'", strings.Repeat("0", maxBufSize-9)),
		},
		{
			func() { printfn("pages: %d", uint(4096)) },
			"pages: 4096",
		},
		{
			func() { printfn("trailing percent %") },
			"trailing percent ",
		},
		// multiple arguments
		{
			func() { printfn("%%%s%d%t", "foo", 123, true) },
			`%foo123true`,
		},
		// errors
		{
			func() { printfn("more args", "foo", "bar", "baz") },
			`more args%!(EXTRA)%!(EXTRA)%!(EXTRA)`,
		},
		{
			func() { printfn("missing args %s") },
			`missing args (MISSING)`,
		},
		{
			func() { printfn("bad verb %Q") },
			`bad verb %!(NOVERB)`,
		},
		{
			func() { printfn("not bool %t", "foo") },
			`not bool %!(WRONGTYPE)`,
		},
		{
			func() { printfn("not int %d", "foo") },
			`not int %!(WRONGTYPE)`,
		},
		{
			func() { printfn("not string %s", 123) },
			`not string %!(WRONGTYPE)`,
		},
	}

	var buf bytes.Buffer
	SetOutputSink(&buf)

	for specIndex, spec := range specs {
		buf.Reset()
		spec.fn()

		if got := buf.String(); got != spec.expOutput {
			t.Errorf("[spec %d] expected to get\n%q\ngot:\n%q", specIndex, spec.expOutput, got)
		}
	}
}

func TestPrintfToRingBuffer(t *testing.T) {
	defer func() {
		outputSink = nil
	}()

	outputSink = nil
	earlyPrintBuffer.rIndex, earlyPrintBuffer.wIndex = 0, 0

	exp := "early output 0x2a"
	Printf("early output 0x%x", 42)

	var buf bytes.Buffer
	SetOutputSink(&buf)

	if got := buf.String(); got != exp {
		t.Fatalf("expected to get:\n%q\ngot:\n%q", exp, got)
	}
}

func TestFprintf(t *testing.T) {
	var buf bytes.Buffer

	exp := "hello world"
	Fprintf(&buf, exp)

	if got := buf.String(); got != exp {
		t.Fatalf("expected to get:\n%q\ngot:\n%q", exp, got)
	}
}
