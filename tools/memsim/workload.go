package main

import (
	"encoding/binary"
	"fmt"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/sync/errgroup"

	"learnos/kernel/mm"
	"learnos/kernel/mm/vmm"
)

// workloadBase is the start of the virtual range used to map workload
// frames.
const workloadBase = mm.VirtAddr(0x0000_4000_0000_0000)

// report summarizes a workload run.
type report struct {
	Workers    int
	Allocated  uint64
	Mapped     uint64
	PageTables uint64
	FreeBefore uint64
	FreeAfter  uint64
}

// marker identifies the owner of a frame. It is written into the first
// bytes of every allocated frame so that a frame handed out twice is caught
// when the first owner's marker has been overwritten.
func marker(worker int, index uint64) uint64 {
	return uint64(worker+1)<<48 | index
}

// runWorkload allocates w.Frames frames from w.Workers concurrent workers,
// checks that no frame was handed out twice, maps w.Mappings of them into
// the kernel address space, resolves each mapping back and finally returns
// every frame to the allocator.
func (m *machine) runWorkload(w Workload, bar *progressbar.ProgressBar) (report, error) {
	frames := m.kctx.Frames
	before, _ := frames.Stats()
	rep := report{Workers: w.Workers, FreeBefore: before.Free()}

	owned := make([][]mm.Frame, w.Workers)
	var g errgroup.Group
	for worker := 0; worker < w.Workers; worker++ {
		count := w.Frames / uint64(w.Workers)
		if uint64(worker) < w.Frames%uint64(w.Workers) {
			count++
		}

		g.Go(func() error {
			owned[worker] = make([]mm.Frame, 0, count)
			for i := uint64(0); i < count; i++ {
				f, err := frames.AllocFrame()
				if err != nil {
					return fmt.Errorf("worker %d: frame %d: %w", worker, i, err)
				}
				owned[worker] = append(owned[worker], f)
				binary.LittleEndian.PutUint64(m.frameBytes(f), marker(worker, i))
				_ = bar.Add(1)
			}
			return nil
		})
	}
	err := g.Wait()
	defer m.release(owned)
	if err != nil {
		return rep, err
	}

	seen := make(map[mm.Frame]int, w.Frames)
	for worker, list := range owned {
		for i, f := range list {
			if other, dup := seen[f]; dup {
				return rep, fmt.Errorf("frame %d handed out to workers %d and %d", uint64(f), other, worker)
			}
			seen[f] = worker

			if got := binary.LittleEndian.Uint64(m.frameBytes(f)); got != marker(worker, uint64(i)) {
				return rep, fmt.Errorf("frame %d of worker %d was overwritten (marker 0x%x)", uint64(f), worker, got)
			}
		}
		rep.Allocated += uint64(len(list))
	}

	if rep.Mapped, err = m.mapFrames(owned, w.Mappings); err != nil {
		return rep, err
	}

	mid, _ := frames.Stats()
	rep.PageTables = mid.Allocated - before.Allocated - rep.Allocated

	m.release(owned)
	after, _ := frames.Stats()
	rep.FreeAfter = after.Free()
	if after.Allocated != before.Allocated+rep.PageTables {
		return rep, fmt.Errorf("%d frames still allocated after the workload; expected %d", after.Allocated, before.Allocated+rep.PageTables)
	}

	return rep, nil
}

// mapFrames maps up to count of the owned frames at consecutive pages from
// workloadBase, checks that each page resolves to its frame and that the
// frame marker reads back through the mapping, then unmaps the pages.
func (m *machine) mapFrames(owned [][]mm.Frame, count uint64) (uint64, error) {
	as := m.kctx.AddressSpace

	var mapped uint64
	for worker, list := range owned {
		for i, f := range list {
			if mapped == count {
				return mapped, nil
			}

			v := workloadBase.Add(uintptr(mapped) * mm.PageSize)
			if err := as.Map(v, f.Address(), vmm.PT); err != nil {
				return mapped, fmt.Errorf("map 0x%x: %w", uintptr(v), err)
			}

			p, err := as.Resolve(v.Add(8))
			if err != nil {
				return mapped, fmt.Errorf("resolve 0x%x: %w", uintptr(v), err)
			}
			if p != f.Address().Add(8) {
				return mapped, fmt.Errorf("0x%x resolves to 0x%x; expected 0x%x", uintptr(v)+8, uintptr(p), uintptr(f.Address())+8)
			}

			if got := binary.LittleEndian.Uint64(m.physBytes(p.Sub(8), 8)); got != marker(worker, uint64(i)) {
				return mapped, fmt.Errorf("0x%x reads marker 0x%x through its mapping", uintptr(v), got)
			}

			if err = as.Unmap(v); err != nil {
				return mapped, fmt.Errorf("unmap 0x%x: %w", uintptr(v), err)
			}
			mapped++
		}
	}

	return mapped, nil
}

// release returns every owned frame to the allocator. It is safe to call
// more than once.
func (m *machine) release(owned [][]mm.Frame) {
	for i, list := range owned {
		for _, f := range list {
			m.kctx.Frames.FreeFrame(f)
		}
		owned[i] = nil
	}
}

func (m *machine) frameBytes(f mm.Frame) []byte {
	return m.physBytes(f.Address(), mm.PageSize)
}

func (m *machine) physBytes(p mm.PhysAddr, size uintptr) []byte {
	return m.arena.Phys(mm.PhysRange{Start: p, Size: size})
}
