// Copyright (C) 2025 Josh Simonot
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package sysmon reports the health of the controller host. Kiln rooms
// run hot, so the board temperature is included.
package sysmon

import (
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"os"
	"runtime"
	"strings"

	"kilnctl/pkg/logger"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

type Service struct {
	diskPath string
	log      *logger.Logger
}

type Metrics struct {
	GoVersion      string  `json:"go_version"`
	CPUPercent     float64 `json:"cpu_system_percent"`
	ProcessPercent float64 `json:"cpu_process_percent"`
	CPUTempC       float64 `json:"cpu_temp_c"`
	MemTotal       uint64  `json:"mem_total"`
	MemUsed        uint64  `json:"mem_used"`
	MemFree        uint64  `json:"mem_free"`
	ProcessRSS     uint64  `json:"process_rss"`
	DiskTotal      uint64  `json:"disk_total"`
	DiskUsed       uint64  `json:"disk_used"`
	DiskFree       uint64  `json:"disk_free"`
}

// New watches the disk holding diskPath, the log and config directory.
func New(diskPath string) *Service {
	return &Service{
		diskPath: diskPath,
		log:      logger.New("System Monitor"),
	}
}

type diskStats struct {
	Total, Free, Used uint64
}

// Snapshot collects the current metrics. Missing sensors read as zero.
func (s *Service) Snapshot() Metrics {
	m := Metrics{GoVersion: runtime.Version()}

	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		m.CPUPercent = pct[0]
	}
	if vmem, err := mem.VirtualMemory(); err == nil {
		m.MemTotal, m.MemUsed, m.MemFree = vmem.Total, vmem.Used, vmem.Available
	}
	if d, err := diskUsage(s.diskPath); err == nil {
		m.DiskTotal, m.DiskFree, m.DiskUsed = d.Total, d.Free, d.Used
	} else {
		s.log.Debug("disk usage %s: %v", s.diskPath, err)
	}
	if p, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if memInfo, err := p.MemoryInfo(); err == nil {
			m.ProcessRSS = memInfo.RSS
		}
		if pct, err := p.CPUPercent(); err == nil {
			m.ProcessPercent = pct
		}
	}
	m.CPUTempC = cpuTemperature()
	return m
}

// cpuTemperature returns the hottest CPU/SoC sensor.
func cpuTemperature() float64 {
	temps, _ := host.SensorsTemperatures()
	var hottest float64
	for _, t := range temps {
		key := strings.ToLower(t.SensorKey)
		if strings.Contains(key, "cpu") || strings.Contains(key, "soc") || strings.Contains(key, "core") {
			hottest = max(hottest, t.Temperature)
		}
	}
	return hottest
}

// GetData feeds the data logger.
func (s *Service) GetData() map[string]float64 {
	m := s.Snapshot()
	return map[string]float64{
		"host_cpu_percent":  m.CPUPercent,
		"host_cpu_temp":     m.CPUTempC,
		"host_mem_used_mb":  float64(m.MemUsed) / (1024 * 1024),
		"host_disk_free_gb": float64(m.DiskFree) / (1024 * 1024 * 1024),
	}
}

var page = template.Must(template.New("sysmon").Funcs(template.FuncMap{
	"gb": func(v uint64) string { return fmt.Sprintf("%.2f GB", float64(v)/(1024*1024*1024)) },
	"mb": func(v uint64) string { return fmt.Sprintf("%.2f MB", float64(v)/(1024*1024)) },
}).Parse(`<!DOCTYPE html>
<html>
<head>
	<title>System Monitor</title>
	<style>
		body { font-family: sans-serif; margin: 2em; background: #f9f9f9; }
		h1 { color: #333; }
		table { border-collapse: collapse; width: 60%; margin-top: 1em; }
		th, td { border: 1px solid #ccc; padding: 0.6em 1em; text-align: left; }
		th { background: #eee; }
	</style>
</head>
<body>
	<h1>Kiln Controller Host</h1>
	<p>Go {{.GoVersion}}</p>
	<h2>CPU</h2>
	<table>
		<tr><th>System %</th><th>Process %</th><th>Temperature</th></tr>
		<tr><td>{{printf "%.2f" .CPUPercent}}%</td><td>{{printf "%.2f" .ProcessPercent}}%</td><td>{{printf "%.1f" .CPUTempC}}°C</td></tr>
	</table>
	<h2>Memory</h2>
	<table>
		<tr><th>System Total</th><th>System Used</th><th>System Free</th><th>Process RSS</th></tr>
		<tr><td>{{gb .MemTotal}}</td><td>{{gb .MemUsed}}</td><td>{{gb .MemFree}}</td><td>{{mb .ProcessRSS}}</td></tr>
	</table>
	<h2>Disk</h2>
	<table>
		<tr><th>Total</th><th>Used</th><th>Free</th></tr>
		<tr><td>{{gb .DiskTotal}}</td><td>{{gb .DiskUsed}}</td><td>{{gb .DiskFree}}</td></tr>
	</table>
</body>
</html>
`))

func (s *Service) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	m := s.Snapshot()

	// JSON API
	if r.Header.Get("Accept") == "application/json" {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(m)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := page.Execute(w, m); err != nil {
		s.log.Error("render: %v", err)
	}
}
