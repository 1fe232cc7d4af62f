// Package device picks the compute target for the numeric kernels and
// fans batch work out over its workers.
package device

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/klauspost/cpuid/v2"
)

// Device describes where batch kernels run.
type Device struct {
	Name    string
	SIMD    string
	Workers int
}

// Select inspects the host CPU and returns a device using at most maxWorkers
// goroutines. maxWorkers <= 0 means one worker per logical core.
// There is no accelerator backend, so the CPU path is always the fallback.
func Select(maxWorkers int) Device {
	d := Device{
		Name:    cpuid.CPU.BrandName,
		SIMD:    simdLevel(),
		Workers: cpuid.CPU.LogicalCores,
	}
	if d.Name == "" {
		d.Name = runtime.GOARCH
	}
	// cpuid reports zero cores on architectures it cannot probe
	if d.Workers <= 0 {
		d.Workers = runtime.NumCPU()
	}
	if maxWorkers > 0 && d.Workers > maxWorkers {
		d.Workers = maxWorkers
	}
	return d
}

// CPU returns a device with a fixed worker count, without probing.
func CPU(workers int) Device {
	if workers <= 0 {
		workers = 1
	}
	return Device{Name: "cpu", SIMD: "generic", Workers: workers}
}

func simdLevel() string {
	switch {
	case cpuid.CPU.Supports(cpuid.AVX512F, cpuid.AVX512DQ):
		return "avx512"
	case cpuid.CPU.Supports(cpuid.AVX2, cpuid.FMA3):
		return "avx2"
	case cpuid.CPU.Supports(cpuid.SSE2):
		return "sse2"
	case cpuid.CPU.Supports(cpuid.ASIMD):
		return "asimd"
	}
	return "generic"
}

func (d Device) String() string {
	return fmt.Sprintf("cpu(%s, simd=%s, workers=%d)", d.Name, d.SIMD, d.Workers)
}

// Chunks reports how many contiguous ranges For splits n items into.
func (d Device) Chunks(n int) int {
	w := d.Workers
	if w <= 0 {
		w = 1
	}
	if n < w {
		w = n
	}
	return w
}

// For splits [0, n) into Chunks(n) contiguous ranges and runs body on each
// range in its own goroutine. chunk is in [0, Chunks(n)) and can index
// per-worker scratch buffers.
func (d Device) For(n int, body func(chunk, lo, hi int)) {
	if n <= 0 {
		return
	}
	chunks := d.Chunks(n)
	if chunks == 1 {
		body(0, 0, n)
		return
	}

	var wg sync.WaitGroup
	wg.Add(chunks)
	for c := 0; c < chunks; c++ {
		lo := c * n / chunks
		hi := (c + 1) * n / chunks
		go func(c, lo, hi int) {
			defer wg.Done()
			body(c, lo, hi)
		}(c, lo, hi)
	}
	wg.Wait()
}
