package runner

import (
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// Stats are resource figures sampled while the process ran. They are best effort: a process
// that exits before the first sample reports zeros.
type Stats struct {
	PeakRSSMB  float64
	UserCPU    time.Duration
	SystemCPU  time.Duration
	MaxThreads int32
	Samples    int
}

type sampler struct {
	proc     *process.Process
	interval time.Duration

	mu    sync.Mutex
	stats Stats

	stopCh chan struct{}
	done   chan struct{}
}

func newSampler(pid int, interval time.Duration) *sampler {
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}
	s := &sampler{
		interval: interval,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
	// NewProcess fails if the process is already gone.
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		close(s.done)
		return s
	}
	s.proc = p
	go s.loop()
	return s
}

func (s *sampler) loop() {
	defer close(s.done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.sample()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.sample()
		}
	}
}

func (s *sampler) sample() {
	memInfo, memErr := s.proc.MemoryInfo()
	times, timesErr := s.proc.Times()
	threads, threadsErr := s.proc.NumThreads()
	if memErr != nil && timesErr != nil && threadsErr != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.Samples++
	if memErr == nil {
		if rss := float64(memInfo.RSS) / 1024 / 1024; rss > s.stats.PeakRSSMB {
			s.stats.PeakRSSMB = rss
		}
	}
	// CPU times are cumulative; the latest sample wins.
	if timesErr == nil {
		s.stats.UserCPU = seconds(times.User)
		s.stats.SystemCPU = seconds(times.System)
	}
	if threadsErr == nil && threads > s.stats.MaxThreads {
		s.stats.MaxThreads = threads
	}
}

// stop takes a final sample while the process is still unreaped and returns the totals.
func (s *sampler) stop() Stats {
	if s.proc != nil {
		close(s.stopCh)
		<-s.done
		s.sample()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

func seconds(f float64) time.Duration {
	return time.Duration(f * float64(time.Second))
}
