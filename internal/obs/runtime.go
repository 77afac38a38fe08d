package obs

import (
	"runtime"
	"strconv"
	"time"
)

// RuntimeStats is the process memory and GC activity between two samples.
type RuntimeStats struct {
	Interval   time.Duration
	Goroutines int
	HeapAlloc  uint64
	HeapInuse  uint64
	AllocDelta uint64
	AllocRate  float64 // bytes per second
	GCCount    uint32
	GCPause    time.Duration
	GCCPU      float64
}

// RuntimeSampler diffs runtime.MemStats between calls to Sample. It is not
// safe for concurrent use.
type RuntimeSampler struct {
	prev, curr     runtime.MemStats
	prevAt, currAt time.Time
	buf            [512]byte
}

// Sample reads the current memory stats and returns the delta since the
// previous sample. The first sample reports totals over a zero interval.
func (s *RuntimeSampler) Sample() RuntimeStats {
	s.prev, s.curr = s.curr, s.prev
	s.prevAt = s.currAt
	s.currAt = time.Now()
	runtime.ReadMemStats(&s.curr)
	if s.prevAt.IsZero() {
		s.prevAt = s.currAt
	}

	st := RuntimeStats{
		Interval:   s.currAt.Sub(s.prevAt),
		Goroutines: runtime.NumGoroutine(),
		HeapAlloc:  s.curr.HeapAlloc,
		HeapInuse:  s.curr.HeapInuse,
		AllocDelta: s.curr.TotalAlloc - s.prev.TotalAlloc,
		GCCount:    s.curr.NumGC - s.prev.NumGC,
		GCPause:    time.Duration(s.curr.PauseTotalNs - s.prev.PauseTotalNs),
		GCCPU:      s.curr.GCCPUFraction,
	}
	dt := st.Interval.Seconds()
	if dt <= 0 {
		dt = 1
	}
	st.AllocRate = float64(st.AllocDelta) / dt
	return st
}

// Line renders st as a single log line, reusing the sampler's buffer.
func (s *RuntimeSampler) Line(st RuntimeStats) string {
	line := s.buf[:0]
	line = append(line, "heap="...)
	line = appendBytes(line, st.HeapAlloc)
	line = append(line, " inuse="...)
	line = appendBytes(line, st.HeapInuse)
	line = append(line, " alloc="...)
	line = appendBytes(line, st.AllocDelta)
	line = append(line, " alloc_rate="...)
	line = appendBytes(line, uint64(st.AllocRate))
	line = append(line, "/s gc="...)
	line = strconv.AppendUint(line, uint64(st.GCCount), 10)
	line = append(line, " stw="...)
	line = append(line, st.GCPause.String()...)
	line = append(line, " gc_cpu="...)
	line = strconv.AppendFloat(line, st.GCCPU, 'f', 6, 64)
	line = append(line, " goroutines="...)
	line = strconv.AppendInt(line, int64(st.Goroutines), 10)
	return string(line)
}

const carryThreshold = 1 << 15

func appendBytes(dst []byte, v uint64) []byte {
	units := [...]string{"B", "KB", "MB", "GB"}
	i := 0
	for v >= carryThreshold && i < len(units)-1 {
		v >>= 10
		i++
	}
	dst = strconv.AppendUint(dst, v, 10)
	return append(dst, units[i]...)
}
