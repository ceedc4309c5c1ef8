package vm

import (
	"sort"
	"sync"
	"sync/atomic"
)

// Profiler counts how often each compiled method is invoked. Counting
// happens on every send that reaches a method, before its primitive is
// tried, so methods answered by primitives are counted too.
//
// The interpreter records from its own goroutine; reports may be taken
// from any goroutine while it runs.

// MethodProfile holds the counters for one method.
type MethodProfile struct {
	Method   Value
	Selector Value
	// Receiver is the class of the first receiver seen.
	Receiver Value

	Invocations uint64
	// PrimitiveHits counts invocations answered by the method's primitive.
	PrimitiveHits uint64
	IsHot         bool
}

// Profiler manages method profiles for one interpreter.
type Profiler struct {
	methods sync.Map // Value -> *MethodProfile

	// HotThreshold is the invocation count at which a method is reported
	// through OnHot. Zero disables hot tracking.
	HotThreshold uint64
	OnHot        func(*MethodProfile)

	hotCount uint64
}

// DefaultHotThreshold is the threshold set by NewProfiler.
const DefaultHotThreshold = 1000

// NewProfiler creates a profiler with the default hot threshold.
func NewProfiler() *Profiler {
	return &Profiler{HotThreshold: DefaultHotThreshold}
}

func (p *Profiler) profile(method, selector, receiver Value) *MethodProfile {
	if val, ok := p.methods.Load(method); ok {
		return val.(*MethodProfile)
	}
	val, _ := p.methods.LoadOrStore(method, &MethodProfile{
		Method:   method,
		Selector: selector,
		Receiver: receiver,
	})
	return val.(*MethodProfile)
}

// RecordInvocation counts one invocation of method. It returns true if
// this invocation made the method hot.
func (p *Profiler) RecordInvocation(method, selector, receiver Value) bool {
	mp := p.profile(method, selector, receiver)
	count := atomic.AddUint64(&mp.Invocations, 1)
	if mp.IsHot || p.HotThreshold == 0 || count < p.HotThreshold {
		return false
	}
	mp.IsHot = true
	atomic.AddUint64(&p.hotCount, 1)
	if p.OnHot != nil {
		p.OnHot(mp)
	}
	return true
}

// RecordPrimitiveHit notes that method's primitive succeeded.
func (p *Profiler) RecordPrimitiveHit(method Value) {
	if val, ok := p.methods.Load(method); ok {
		atomic.AddUint64(&val.(*MethodProfile).PrimitiveHits, 1)
	}
}

// MethodProfile returns the profile for method, or nil if it never ran.
func (p *Profiler) MethodProfile(method Value) *MethodProfile {
	if val, ok := p.methods.Load(method); ok {
		return val.(*MethodProfile)
	}
	return nil
}

// ProfilerStats holds aggregate profiling statistics.
type ProfilerStats struct {
	Methods       int
	HotMethods    int
	Invocations   uint64
	PrimitiveHits uint64
}

// Stats returns aggregate profiling statistics.
func (p *Profiler) Stats() ProfilerStats {
	var stats ProfilerStats
	p.methods.Range(func(_, value interface{}) bool {
		mp := value.(*MethodProfile)
		stats.Methods++
		stats.Invocations += atomic.LoadUint64(&mp.Invocations)
		stats.PrimitiveHits += atomic.LoadUint64(&mp.PrimitiveHits)
		if mp.IsHot {
			stats.HotMethods++
		}
		return true
	})
	return stats
}

// TopMethods returns copies of the n most invoked profiles, most invoked
// first. A negative n returns all of them.
func (p *Profiler) TopMethods(n int) []MethodProfile {
	var all []MethodProfile
	p.methods.Range(func(_, value interface{}) bool {
		mp := value.(*MethodProfile)
		all = append(all, MethodProfile{
			Method:        mp.Method,
			Selector:      mp.Selector,
			Receiver:      mp.Receiver,
			Invocations:   atomic.LoadUint64(&mp.Invocations),
			PrimitiveHits: atomic.LoadUint64(&mp.PrimitiveHits),
			IsHot:         mp.IsHot,
		})
		return true
	})
	sort.Slice(all, func(i, j int) bool {
		if all[i].Invocations != all[j].Invocations {
			return all[i].Invocations > all[j].Invocations
		}
		return all[i].Method < all[j].Method
	})
	if n >= 0 && n < len(all) {
		all = all[:n]
	}
	return all
}

// Reset clears all profiling data.
func (p *Profiler) Reset() {
	p.methods.Range(func(key, _ interface{}) bool {
		p.methods.Delete(key)
		return true
	})
	atomic.StoreUint64(&p.hotCount, 0)
}

// Forget drops the profiles of methods that are no longer live. Called
// after reclamation, since freed handles may be reused by new methods.
func (p *Profiler) Forget(live func(Value) bool) {
	p.methods.Range(func(key, _ interface{}) bool {
		if !live(key.(Value)) {
			p.methods.Delete(key)
		}
		return true
	})
}
