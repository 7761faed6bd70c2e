package utils

import (
	"fmt"
	"runtime"
)

// GetMemUsage summarizes the heap and goroutine count, ranks run as goroutines
// so the count grows with the rank layout
func GetMemUsage() string {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	bToMb := func(b uint64) uint64 {
		return b / 1024 / 1024
	}
	return fmt.Sprintf("Alloc = %v MiB HeapInuse = %v MiB Sys = %v MiB NumGC = %v Goroutines = %v",
		bToMb(m.Alloc), bToMb(m.HeapInuse), bToMb(m.Sys), m.NumGC, runtime.NumGoroutine())
}
