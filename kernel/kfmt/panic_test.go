package kfmt

import (
	"bytes"
	"errors"
	"learnos/kernel"
	"learnos/kernel/cpu"
	"testing"
)

func TestPanic(t *testing.T) {
	defer func() {
		cpuHaltFn = cpu.Halt
		outputSink = nil
	}()

	var (
		buf           bytes.Buffer
		cpuHaltCalled bool
	)
	cpuHaltFn = func() {
		cpuHaltCalled = true
	}
	SetOutputSink(&buf)

	specs := []struct {
		descr string
		arg   interface{}
		exp   string
	}{
		{
			"with *kernel.Error",
			&kernel.Error{Module: "pmm", Message: "cannot free a frame that is not allocated"},
			"\n-----------------------------------\n[pmm] unrecoverable error: cannot free a frame that is not allocated\n*** kernel panic: system halted ***\n-----------------------------------\n",
		},
		{
			"with error",
			errors.New("go error"),
			"\n-----------------------------------\n[rt] unrecoverable error: go error\n*** kernel panic: system halted ***\n-----------------------------------\n",
		},
		{
			"with string",
			"string error",
			"\n-----------------------------------\n[rt] unrecoverable error: string error\n*** kernel panic: system halted ***\n-----------------------------------\n",
		},
		{
			"without error",
			nil,
			"\n-----------------------------------\n*** kernel panic: system halted ***\n-----------------------------------\n",
		},
	}

	for specIndex, spec := range specs {
		buf.Reset()
		cpuHaltCalled = false

		Panic(spec.arg)

		if got := buf.String(); got != spec.exp {
			t.Errorf("[spec %d] %s: expected to get:\n%q\ngot:\n%q", specIndex, spec.descr, spec.exp, got)
		}

		if !cpuHaltCalled {
			t.Errorf("[spec %d] %s: expected cpu.Halt() to be called by Panic", specIndex, spec.descr)
		}
	}
}
