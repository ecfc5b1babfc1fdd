package stats

import (
	"encoding/json"
	"expvar"
	"net/http"
	"sync"
	"time"
)

const (
	RoomsCreated        = "RoomsCreated"
	MatchesStarted      = "MatchesStarted"
	ChatMessages        = "ChatMessages"
	ActiveSubscriptions = "ActiveSubscriptions"
	ActiveConnections   = "ActiveConnections"
)

// Metrics lists the counters the lobby server reports.
var Metrics = []string{
	RoomsCreated,
	MatchesStarted,
	ChatMessages,
	ActiveSubscriptions,
	ActiveConnections,
}

type StatsProvider interface {
	Incr(name string)
	Decr(name string)
}

type StatsUpdater struct {
	vars       *expvar.Map
	updateChan chan *metricsUpdateReq
	stopOnce   sync.Once
	stop       chan struct{}
	done       chan struct{}
}

type metricsUpdateReq struct {
	name  string
	value int
}

func (su *StatsUpdater) expvarHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	expvarData := make(map[string]any)
	su.vars.Do(func(kv expvar.KeyValue) {
		var value any
		json.Unmarshal([]byte(kv.Value.String()), &value)
		expvarData[kv.Key] = value
	})

	json.NewEncoder(w).Encode(expvarData)
}

// NewStatsUpdater creates a stats updater with every lobby metric
// registered and serves them on GET /debug/vars.
func NewStatsUpdater(mux *http.ServeMux) *StatsUpdater {
	su := &StatsUpdater{
		vars:       new(expvar.Map).Init(),
		updateChan: make(chan *metricsUpdateReq, 512),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	mux.Handle("GET /debug/vars", http.HandlerFunc(su.expvarHandler))
	su.initializeMetrics()

	return su
}

func (su *StatsUpdater) initializeMetrics() {
	startTime := time.Now()
	su.vars.Set("Uptime", expvar.Func(func() any {
		return time.Since(startTime).Milliseconds()
	}))

	for _, name := range Metrics {
		su.vars.Set(name, new(expvar.Int))
	}
}

func (su *StatsUpdater) updateMetrics() {
	defer close(su.done)
	for {
		select {
		case req := <-su.updateChan:
			su.apply(req)
		case <-su.stop:
			for {
				select {
				case req := <-su.updateChan:
					su.apply(req)
				default:
					return
				}
			}
		}
	}
}

func (su *StatsUpdater) apply(req *metricsUpdateReq) {
	metric, ok := su.vars.Get(req.name).(*expvar.Int)
	if !ok {
		panic("metric not found: " + req.name)
	}

	metric.Add(int64(req.value))
}

// Value returns the current value of a counter.
func (su *StatsUpdater) Value(name string) int64 {
	if metric, ok := su.vars.Get(name).(*expvar.Int); ok {
		return metric.Value()
	}
	return 0
}

func (su *StatsUpdater) Incr(name string) {
	su.update(&metricsUpdateReq{name: name, value: 1})
}

func (su *StatsUpdater) Decr(name string) {
	su.update(&metricsUpdateReq{name: name, value: -1})
}

// update drops the request once the updater is stopped.
func (su *StatsUpdater) update(req *metricsUpdateReq) {
	select {
	case <-su.stop:
		return
	default:
	}

	select {
	case su.updateChan <- req:
	case <-su.stop:
	}
}

func (su *StatsUpdater) Run() {
	go su.updateMetrics()
}

// Stop applies pending updates and stops the updater. Run must have been
// called first. Later updates are discarded.
func (su *StatsUpdater) Stop() {
	su.stopOnce.Do(func() {
		close(su.stop)
		<-su.done
	})
}

// Nop discards every update.
type Nop struct{}

func (Nop) Incr(string) {}
func (Nop) Decr(string) {}
