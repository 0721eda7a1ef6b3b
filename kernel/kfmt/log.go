package kfmt

import "io"

// Logger prefixes each message with the name of the emitting kernel module,
// producing lines such as "[pmm] frame table: 32768 frames".
type Logger struct {
	// Module is the name printed between brackets before each message.
	Module string

	// Sink receives the output. If nil, output goes to the same
	// destination as Printf.
	Sink io.Writer
}

func (l Logger) sink() io.Writer {
	if l.Sink != nil {
		return l.Sink
	}
	return outputSink
}

// Printf writes the module prefix followed by the formatted message.
func (l Logger) Printf(format string, args ...interface{}) {
	w := l.sink()
	Fprintf(w, "[%s] ", l.Module)
	Fprintf(w, format, args...)
}

// Writer returns an io.Writer that injects the module prefix at the
// beginning of every line written to it. It is used for multi-line dumps.
func (l Logger) Writer() *PrefixWriter {
	return &PrefixWriter{Sink: sinkOrBuffer(l.sink()), Prefix: modulePrefix(l.Module)}
}

// modulePrefix builds "[module] " into a fresh byte slice. It is only used
// by Writer which runs once the allocator is available.
func modulePrefix(module string) []byte {
	prefix := make([]byte, 0, len(module)+3)
	prefix = append(prefix, '[')
	prefix = append(prefix, module...)
	return append(prefix, ']', ' ')
}

// sinkOrBuffer returns w or, if w is nil, the early print buffer.
func sinkOrBuffer(w io.Writer) io.Writer {
	if w == nil {
		return &earlyPrintBuffer
	}
	return w
}
