package server

import (
	"net/http"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// handleSystemStatus returns process and host health for the status screen.
// Host metrics are best effort: a gopsutil failure leaves the field empty
// rather than failing the request.
func (s *Server) handleSystemStatus(w http.ResponseWriter, r *http.Request) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	response := map[string]interface{}{
		"uptime_seconds": int64(time.Since(s.startedAt).Seconds()),
		"go_version":     runtime.Version(),
		"goroutines":     runtime.NumGoroutine(),
		"heap_alloc_mb":  float64(m.HeapAlloc) / 1024 / 1024,
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		response["memory"] = map[string]interface{}{
			"total_mb":     vm.Total / 1024 / 1024,
			"used_mb":      vm.Used / 1024 / 1024,
			"used_percent": vm.UsedPercent,
		}
	} else {
		s.log.Debug().Err(err).Msg("Failed to read host memory stats")
	}

	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		response["cpu_percent"] = percents[0]
	} else if err != nil {
		s.log.Debug().Err(err).Msg("Failed to read host CPU stats")
	}

	if err := s.db.HealthCheck(r.Context()); err != nil {
		response["database"] = "degraded"
	} else {
		response["database"] = "ok"
	}

	s.writeJSON(w, http.StatusOK, response)
}
