package telemetry

import (
	"runtime"

	"github.com/dustin/go-humanize"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// MemorySample is one memory reading.
type MemorySample struct {
	// FreeBytes is host free memory where the platform exposes it, and the
	// reserved-but-unused Go heap otherwise.
	FreeBytes  uint64
	TotalBytes uint64
	HeapAlloc  uint64
	Goroutines int
	// Source names where FreeBytes came from: "sysinfo" or "runtime".
	Source string
}

// FreeMemory samples memory now.
func FreeMemory() (MemorySample, error) {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	sample := MemorySample{
		HeapAlloc:  ms.HeapAlloc,
		Goroutines: runtime.NumGoroutine(),
	}
	free, total, err := hostMemory()
	if err != nil {
		return sample, err
	}
	if total == 0 {
		sample.FreeBytes = ms.HeapIdle - ms.HeapReleased
		sample.TotalBytes = ms.Sys
		sample.Source = "runtime"
		return sample, nil
	}
	sample.FreeBytes = free
	sample.TotalBytes = total
	sample.Source = "sysinfo"
	return sample, nil
}

var printer = message.NewPrinter(language.English)

// FormatBytes renders n as a binary-prefixed size, e.g. "1.5 GiB".
func FormatBytes(n uint64) string {
	return humanize.IBytes(n)
}

// FormatCount renders n with thousands separators, e.g. "1,234,567".
func FormatCount(n uint64) string {
	return printer.Sprintf("%d", n)
}
