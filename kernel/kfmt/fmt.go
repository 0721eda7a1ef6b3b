// Package kfmt implements formatted output for code that runs before (or
// without) the Go allocator. None of the functions in this package allocate
// memory.
package kfmt

import (
	"io"
	"unsafe"
)

// maxBufSize defines the buffer size for formatting numbers.
const maxBufSize = 32

var (
	errMissingArg   = []byte("(MISSING)")
	errWrongArgType = []byte("%!(WRONGTYPE)")
	errNoVerb       = []byte("%!(NOVERB)")
	errExtraArg     = []byte("%!(EXTRA)")
	trueValue       = []byte("true")
	falseValue      = []byte("false")

	digits = [16]byte{'0', '1', '2', '3', '4', '5', '6', '7', '8', '9', 'a', 'b', 'c', 'd', 'e', 'f'}

	// numFmtBuf holds the digits of the number being formatted plus an
	// optional sign.
	numFmtBuf [maxBufSize + 1]byte

	// singleByte is used as a shared buffer for passing single characters
	// to doWrite.
	singleByte = []byte(" ")

	// earlyPrintBuffer captures Printf output until an output sink is
	// attached.
	earlyPrintBuffer ringBuffer

	// outputSink is the io.Writer that receives Printf output. While nil,
	// output is redirected to earlyPrintBuffer.
	outputSink io.Writer
)

// SetOutputSink sets the default target for calls to Printf to w and replays
// any output accumulated in the early print buffer.
func SetOutputSink(w io.Writer) {
	outputSink = w
	if w != nil {
		io.Copy(w, &earlyPrintBuffer)
	}
}

// Printf provides a minimal Printf implementation that can be used before the
// Go runtime has been initialized. It supports the following verbs:
//
//	%s strings and byte slices
//	%d, %o, %x integers in base 10, 8 and 16 (lower-case)
//	%t booleans
//	%% a literal percent sign
//
// An optional decimal width may precede the verb. Strings and base-10 values
// are left-padded with spaces; base-8 and base-16 values are left-padded with
// zeroes.
//
// Only built-in integer, string and bool types are recognized. Named types
// (for example mm.PhysAddr) must be converted by the caller; Printf does not
// look for fmt.Stringer since the itables may not have been initialized yet.
//
// Output goes to the sink registered via SetOutputSink or to an internal ring
// buffer when no sink is registered.
func Printf(format string, args ...interface{}) {
	Fprintf(outputSink, format, args...)
}

// Fprintf behaves exactly like Printf but it writes the formatted output to
// the specified io.Writer.
func Fprintf(w io.Writer, format string, args ...interface{}) {
	var (
		argIndex   int
		padLen     int
		litStart   int
		index      int
		formatSize = len(format)
	)

	for index < formatSize {
		if format[index] != '%' {
			index++
			continue
		}

		writeLiteral(w, format, litStart, index)

		// Parse optional width followed by the verb.
		padLen = 0
		for index++; index < formatSize; index++ {
			ch := format[index]
			if ch >= '0' && ch <= '9' {
				padLen = padLen*10 + int(ch-'0')
				continue
			}

			switch ch {
			case '%':
				singleByte[0] = '%'
				doWrite(w, singleByte)
			case 'd', 'o', 'x', 's', 't':
				if argIndex >= len(args) {
					doWrite(w, errMissingArg)
					break
				}

				fmtArg(w, ch, args[argIndex], padLen)
				argIndex++
			default:
				doWrite(w, errNoVerb)
			}
			break
		}

		index++
		litStart = index
	}

	writeLiteral(w, format, litStart, index)

	for ; argIndex < len(args); argIndex++ {
		doWrite(w, errExtraArg)
	}
}

// writeLiteral copies format[from:to] to w. Slicing the string and passing it
// to doWrite would trigger an allocation so the bytes are copied one at a
// time.
func writeLiteral(w io.Writer, format string, from, to int) {
	if to > len(format) {
		to = len(format)
	}

	for i := from; i < to; i++ {
		singleByte[0] = format[i]
		doWrite(w, singleByte)
	}
}

func fmtArg(w io.Writer, verb byte, arg interface{}, padLen int) {
	switch verb {
	case 'o':
		fmtInt(w, arg, 8, padLen)
	case 'd':
		fmtInt(w, arg, 10, padLen)
	case 'x':
		fmtInt(w, arg, 16, padLen)
	case 's':
		fmtString(w, arg, padLen)
	case 't':
		fmtBool(w, arg)
	}
}

// fmtBool prints a formatted version of boolean value v.
func fmtBool(w io.Writer, v interface{}) {
	b, ok := v.(bool)
	switch {
	case !ok:
		doWrite(w, errWrongArgType)
	case b:
		doWrite(w, trueValue)
	default:
		doWrite(w, falseValue)
	}
}

// fmtString prints a formatted version of string or []byte value v, applying
// the padding specified by padLen.
func fmtString(w io.Writer, v interface{}, padLen int) {
	switch castedVal := v.(type) {
	case string:
		fmtRepeat(w, ' ', padLen-len(castedVal))
		writeLiteral(w, castedVal, 0, len(castedVal))
	case []byte:
		fmtRepeat(w, ' ', padLen-len(castedVal))
		doWrite(w, castedVal)
	default:
		doWrite(w, errWrongArgType)
	}
}

// fmtRepeat writes count bytes with value ch.
func fmtRepeat(w io.Writer, ch byte, count int) {
	singleByte[0] = ch
	for i := 0; i < count; i++ {
		doWrite(w, singleByte)
	}
}

// magnitude returns the absolute value of an integer argument and whether it
// was negative.
func magnitude(v interface{}) (uint64, bool, bool) {
	var sval int64
	switch n := v.(type) {
	case uint8:
		return uint64(n), false, true
	case uint16:
		return uint64(n), false, true
	case uint32:
		return uint64(n), false, true
	case uint64:
		return n, false, true
	case uint:
		return uint64(n), false, true
	case uintptr:
		return uint64(n), false, true
	case int8:
		sval = int64(n)
	case int16:
		sval = int64(n)
	case int32:
		sval = int64(n)
	case int64:
		sval = n
	case int:
		sval = int64(n)
	default:
		return 0, false, false
	}

	if sval < 0 {
		return uint64(-sval), true, true
	}
	return uint64(sval), false, true
}

// fmtInt prints out a formatted version of v in the requested base, applying
// the padding specified by padLen.
func fmtInt(w io.Writer, v interface{}, base, padLen int) {
	uval, negative, ok := magnitude(v)
	if !ok {
		doWrite(w, errWrongArgType)
		return
	}

	if padLen >= maxBufSize {
		padLen = maxBufSize - 1
	}

	padCh := byte('0')
	if base == 10 {
		padCh = ' '
	}

	// Digits are generated least-significant first and reversed at the end.
	count := 0
	for {
		numFmtBuf[count] = digits[uval%uint64(base)]
		count++
		if uval /= uint64(base); uval == 0 || count == maxBufSize {
			break
		}
	}

	digitCount := count
	for ; count < padLen; count++ {
		numFmtBuf[count] = padCh
	}

	// The sign replaces the first space-padding character; with zero
	// padding (or no room left) it is prepended.
	if negative {
		if count > digitCount && numFmtBuf[digitCount] == ' ' {
			numFmtBuf[digitCount] = '-'
		} else {
			numFmtBuf[count] = '-'
			count++
		}
	}

	for left, right := 0, count-1; left < right; left, right = left+1, right-1 {
		numFmtBuf[left], numFmtBuf[right] = numFmtBuf[right], numFmtBuf[left]
	}

	doWrite(w, numFmtBuf[:count])
}

// doWrite hides p from the compiler's escape analysis. Without this, passing
// p to the (unknown at compile time) io.Writer flags it as escaping and every
// Printf call would trigger a heap allocation.
func doWrite(w io.Writer, p []byte) {
	doRealWrite(w, noEscape(unsafe.Pointer(&p)))
}

func doRealWrite(w io.Writer, bufPtr unsafe.Pointer) {
	p := *(*[]byte)(bufPtr)
	if w != nil {
		w.Write(p)
	} else {
		earlyPrintBuffer.Write(p)
	}
}

// noEscape hides a pointer from escape analysis. This function is copied over
// from runtime/stubs.go
//
//go:nosplit
func noEscape(p unsafe.Pointer) unsafe.Pointer {
	x := uintptr(p)
	return unsafe.Pointer(x ^ 0)
}
