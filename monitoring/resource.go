package monitoring

import (
	"bytes"
	"fmt"
	"net/http"
	"os"
	"runtime"
	"runtime/pprof"
	"sort"
	"strconv"
	"time"

	"github.com/google/pprof/profile"
	"github.com/shirou/gopsutil/process"
)

type resourceRsp struct {
	CPUPercent float64 `json:"cpu_percent"`
	RSS        uint64  `json:"rss"`
	Goroutines int     `json:"goroutines"`
	Uptime     float64 `json:"uptime"`
}

func (m *Monitor) listResources(w http.ResponseWriter, _ *http.Request) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		httpError(w, http.StatusInternalServerError, err)
		return
	}

	cpu, err := proc.CPUPercent()
	if err != nil {
		httpError(w, http.StatusInternalServerError, err)
		return
	}

	mem, err := proc.MemoryInfo()
	if err != nil {
		httpError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, resourceRsp{
		CPUPercent: cpu,
		RSS:        mem.RSS,
		Goroutines: runtime.NumGoroutine(),
		Uptime:     time.Since(m.startTime).Seconds(),
	})
}

const (
	defaultProfileDuration = time.Second
	maxProfileDuration     = 10 * time.Second
	numHotspots            = 20
)

// A hotspot is the CPU time spent in one function. Flat counts the samples
// taken in the function itself, Cum also those taken in its callees.
type hotspot struct {
	Function string `json:"function"`
	Flat     int64  `json:"flat"`
	Cum      int64  `json:"cum"`
}

type profileRsp struct {
	Duration   float64   `json:"duration"`
	SampleType string    `json:"sample_type"`
	Total      int64     `json:"total"`
	Hotspots   []hotspot `json:"hotspots"`
}

func profileDuration(r *http.Request) (time.Duration, error) {
	s := r.URL.Query().Get("seconds")
	if s == "" {
		return defaultProfileDuration, nil
	}

	secs, err := strconv.ParseFloat(s, 64)
	if err != nil || secs <= 0 {
		return 0, fmt.Errorf("invalid profile duration %q", s)
	}

	return min(time.Duration(secs*float64(time.Second)), maxProfileDuration),
		nil
}

// collectProfile samples the CPU for a while and reports the functions that
// used it the most.
func (m *Monitor) collectProfile(w http.ResponseWriter, r *http.Request) {
	d, err := profileDuration(r)
	if err != nil {
		httpError(w, http.StatusBadRequest, err)
		return
	}

	var buf bytes.Buffer

	if err := pprof.StartCPUProfile(&buf); err != nil {
		httpError(w, http.StatusConflict, err)
		return
	}

	time.Sleep(d)
	pprof.StopCPUProfile()

	prof, err := profile.ParseData(buf.Bytes())
	if err != nil {
		httpError(w, http.StatusInternalServerError, err)
		return
	}

	rsp := summarizeProfile(prof)
	rsp.Duration = d.Seconds()

	writeJSON(w, rsp)
}

// summarizeProfile ranks functions by the last sample value of prof, which is
// the CPU time for CPU profiles.
func summarizeProfile(prof *profile.Profile) profileRsp {
	rsp := profileRsp{Hotspots: []hotspot{}}

	vi := len(prof.SampleType) - 1
	if vi < 0 {
		return rsp
	}

	rsp.SampleType = prof.SampleType[vi].Type + "/" + prof.SampleType[vi].Unit

	byName := make(map[string]*hotspot)
	get := func(name string) *hotspot {
		h, ok := byName[name]
		if !ok {
			h = &hotspot{Function: name}
			byName[name] = h
		}

		return h
	}

	for _, s := range prof.Sample {
		if vi >= len(s.Value) {
			continue
		}

		v := s.Value[vi]
		rsp.Total += v

		frames := stackFunctions(s)
		if len(frames) == 0 {
			continue
		}

		get(frames[0]).Flat += v

		seen := make(map[string]bool, len(frames))
		for _, f := range frames {
			if !seen[f] {
				seen[f] = true
				get(f).Cum += v
			}
		}
	}

	for _, h := range byName {
		rsp.Hotspots = append(rsp.Hotspots, *h)
	}

	sort.Slice(rsp.Hotspots, func(i, j int) bool {
		a, b := rsp.Hotspots[i], rsp.Hotspots[j]
		if a.Flat != b.Flat {
			return a.Flat > b.Flat
		}

		if a.Cum != b.Cum {
			return a.Cum > b.Cum
		}

		return a.Function < b.Function
	})

	if len(rsp.Hotspots) > numHotspots {
		rsp.Hotspots = rsp.Hotspots[:numHotspots]
	}

	return rsp
}

// stackFunctions lists the functions of a sample from the innermost frame out,
// inlined frames included.
func stackFunctions(s *profile.Sample) []string {
	var names []string

	for _, loc := range s.Location {
		for _, line := range loc.Line {
			if line.Function != nil {
				names = append(names, line.Function.Name)
			}
		}
	}

	return names
}
