package health

import "runtime"

// ExportCheck reports sink health from the number of records dropped after
// retry. Any drop degrades the run; its output is incomplete but it goes on.
func ExportCheck(failures func() int) CheckFunc {
	return func() Check {
		n := failures()
		check := Check{Details: map[string]any{"dropped_records": n}}
		if n > 0 {
			check.Status = StatusDegraded
			check.Message = "Some records were not exported"
		} else {
			check.Status = StatusHealthy
			check.Message = "All records exported"
		}
		return check
	}
}

// ProgressCheck reports seeds finished out of total. A failed batch is
// unhealthy.
func ProgressCheck(progress func() (finished, total int, failed bool)) CheckFunc {
	return func() Check {
		finished, total, failed := progress()
		check := Check{Details: map[string]any{
			"finished_seeds": finished,
			"total_seeds":    total,
		}}
		switch {
		case failed:
			check.Status = StatusUnhealthy
			check.Message = "Batch aborted"
		case finished >= total:
			check.Status = StatusHealthy
			check.Message = "Batch complete"
		default:
			check.Status = StatusHealthy
			check.Message = "Batch running"
		}
		return check
	}
}

// MemoryCheck reports heap usage against memory obtained from the OS.
func MemoryCheck() CheckFunc {
	return func() Check {
		var ms runtime.MemStats
		runtime.ReadMemStats(&ms)
		check := Check{Details: map[string]any{
			"alloc_bytes": ms.Alloc,
			"sys_bytes":   ms.Sys,
		}}
		if ms.Sys > 0 && float64(ms.Alloc)/float64(ms.Sys) > 0.9 {
			check.Status = StatusDegraded
			check.Message = "High memory usage"
		} else {
			check.Status = StatusHealthy
			check.Message = "Memory usage normal"
		}
		return check
	}
}
