package observability

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"gorm.io/gorm"

	types "github.com/yungbote/classr/internal/domain"
	"github.com/yungbote/classr/internal/platform/logger"
)

// Metrics is a small Prometheus text-format registry. A nil *Metrics is a
// valid no-op so callers never branch on whether metrics are enabled.
type Metrics struct {
	apiRequests *Vec
	apiLatency  *HistogramVec
	apiInflight *Vec
	apiBytes    *Vec

	jobsFinished *Vec
	jobsByStatus *Vec
	pool         *Vec

	syncedClassifiers *Vec
	syncFailures      *Vec
	sweptJobs         *Vec
}

func NewMetrics() *Metrics {
	return &Metrics{
		apiRequests:       NewCounterVec("classr_api_requests_total", "API requests by method, route and status.", []string{"method", "route", "status"}),
		apiLatency:        NewHistogramVec("classr_api_request_seconds", "API request latency.", []string{"method", "route"}, nil),
		apiInflight:       NewGaugeVec("classr_api_inflight", "API requests in flight.", nil),
		apiBytes:          NewCounterVec("classr_api_transfer_bytes_total", "Upload and download payload bytes by route.", []string{"route", "direction"}),
		jobsFinished:      NewCounterVec("classr_jobs_finished_total", "Jobs reaching a terminal status in this process.", []string{"status"}),
		jobsByStatus:      NewGaugeVec("classr_jobs", "Stored jobs by status.", []string{"status"}),
		pool:              NewGaugeVec("classr_dispatcher_units", "Dispatcher work units by state.", []string{"state"}),
		syncedClassifiers: NewCounterVec("classr_autosync_classifiers_total", "Classifiers replicated from peers.", []string{"peer"}),
		syncFailures:      NewCounterVec("classr_autosync_failures_total", "Failed autosync candidates.", []string{"peer"}),
		sweptJobs:         NewCounterVec("classr_autoclean_removed_total", "Jobs removed by autoclean.", nil),
	}
}

func (m *Metrics) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if m == nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		_ = m.WritePrometheus(w)
	})
}

func (m *Metrics) WritePrometheus(w io.Writer) error {
	if m == nil {
		return nil
	}
	for _, wr := range []interface{ WritePrometheus(io.Writer) error }{
		m.apiRequests, m.apiLatency, m.apiInflight, m.apiBytes,
		m.jobsFinished, m.jobsByStatus, m.pool,
		m.syncedClassifiers, m.syncFailures, m.sweptJobs,
	} {
		if err := wr.WritePrometheus(w); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) ObserveAPI(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.apiRequests.Add(1, method, route, status)
	m.apiLatency.Observe(dur.Seconds(), method, route)
}

// ObserveTransfer counts request ("in") and response ("out") body bytes.
func (m *Metrics) ObserveTransfer(route string, in, out int64) {
	if m == nil {
		return
	}
	if in > 0 {
		m.apiBytes.Add(float64(in), route, "in")
	}
	if out > 0 {
		m.apiBytes.Add(float64(out), route, "out")
	}
}

func (m *Metrics) APIInflight(delta float64) {
	if m == nil {
		return
	}
	m.apiInflight.Add(delta)
}

func (m *Metrics) JobFinished(status types.JobStatus) {
	if m == nil {
		return
	}
	m.jobsFinished.Add(1, string(status))
}

func (m *Metrics) ClassifiersSynced(peer string, synced, failed int) {
	if m == nil {
		return
	}
	m.syncedClassifiers.Add(float64(synced), peer)
	m.syncFailures.Add(float64(failed), peer)
}

func (m *Metrics) JobsSwept(n int) {
	if m == nil {
		return
	}
	m.sweptJobs.Add(float64(n))
}

// PoolStats is satisfied by the dispatcher.
type PoolStats interface {
	Counts() (running, queued int64)
}

// StartCollector refreshes the stored job counts and pool gauges every interval until ctx ends.
func (m *Metrics) StartCollector(ctx context.Context, log *logger.Logger, db *gorm.DB, pool PoolStats, interval time.Duration) {
	if m == nil {
		return
	}
	if interval <= 0 {
		interval = 15 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.collect(ctx, log, db, pool)
			}
		}
	}()
}

func (m *Metrics) collect(ctx context.Context, log *logger.Logger, db *gorm.DB, pool PoolStats) {
	if pool != nil {
		running, queued := pool.Counts()
		m.pool.Set(float64(running), "running")
		m.pool.Set(float64(queued), "queued")
	}
	if db == nil {
		return
	}
	for _, s := range []types.JobStatus{types.JobScheduled, types.JobRunning, types.JobDone, types.JobError} {
		m.jobsByStatus.Set(0, string(s))
	}
	var rows []struct {
		Status string
		Count  int64
	}
	if err := db.WithContext(ctx).
		Model(&types.Job{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&rows).Error; err != nil {
		if log != nil {
			log.Warn("metrics: job status query failed", "error", err)
		}
		return
	}
	for _, row := range rows {
		m.jobsByStatus.Set(float64(row.Count), row.Status)
	}
}

// ---- exposition primitives ----

// Vec is a labelled counter or gauge.
type Vec struct {
	name       string
	help       string
	kind       string
	labelNames []string
	mu         sync.RWMutex
	values     map[string]float64
}

func NewCounterVec(name, help string, labels []string) *Vec {
	return &Vec{name: name, help: help, kind: "counter", labelNames: labels, values: map[string]float64{}}
}

func NewGaugeVec(name, help string, labels []string) *Vec {
	return &Vec{name: name, help: help, kind: "gauge", labelNames: labels, values: map[string]float64{}}
}

func (v *Vec) Add(delta float64, values ...string) {
	lbl := labelString(v.labelNames, values)
	v.mu.Lock()
	v.values[lbl] += delta
	v.mu.Unlock()
}

func (v *Vec) Set(val float64, values ...string) {
	lbl := labelString(v.labelNames, values)
	v.mu.Lock()
	v.values[lbl] = val
	v.mu.Unlock()
}

func (v *Vec) Value(values ...string) float64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.values[labelString(v.labelNames, values)]
}

func (v *Vec) WritePrometheus(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s %s\n", v.name, v.help, v.name, v.kind); err != nil {
		return err
	}
	v.mu.RLock()
	defer v.mu.RUnlock()
	for _, k := range sortedKeys(v.values) {
		if _, err := fmt.Fprintf(w, "%s%s %g\n", v.name, k, v.values[k]); err != nil {
			return err
		}
	}
	return nil
}

type HistogramVec struct {
	name       string
	help       string
	labelNames []string
	buckets    []float64
	mu         sync.RWMutex
	values     map[string]*histogram
}

type histogram struct {
	counts []uint64
	sum    float64
	total  uint64
}

func NewHistogramVec(name, help string, labels []string, buckets []float64) *HistogramVec {
	if len(buckets) == 0 {
		buckets = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 30}
	}
	return &HistogramVec{name: name, help: help, labelNames: labels, buckets: buckets, values: map[string]*histogram{}}
}

func (h *HistogramVec) Observe(v float64, values ...string) {
	lbl := labelString(h.labelNames, values)
	h.mu.Lock()
	defer h.mu.Unlock()
	hist, ok := h.values[lbl]
	if !ok {
		hist = &histogram{counts: make([]uint64, len(h.buckets))}
		h.values[lbl] = hist
	}
	hist.sum += v
	hist.total++
	for i, b := range h.buckets {
		if v <= b {
			hist.counts[i]++
		}
	}
}

func (h *HistogramVec) WritePrometheus(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s histogram\n", h.name, h.help, h.name); err != nil {
		return err
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	keys := make([]string, 0, len(h.values))
	for k := range h.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := h.values[k]
		for i, b := range h.buckets {
			if _, err := fmt.Fprintf(w, "%s_bucket%s %d\n", h.name, withLe(k, fmt.Sprintf("%g", b)), v.counts[i]); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintf(w, "%s_bucket%s %d\n%s_sum%s %g\n%s_count%s %d\n",
			h.name, withLe(k, "+Inf"), v.total, h.name, k, v.sum, h.name, k, v.total); err != nil {
			return err
		}
	}
	return nil
}

func sortedKeys(m map[string]float64) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func labelString(names []string, values []string) string {
	if len(names) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("{")
	for i, name := range names {
		if i > 0 {
			b.WriteString(",")
		}
		val := "unknown"
		if i < len(values) && values[i] != "" {
			val = values[i]
		}
		b.WriteString(name)
		b.WriteString(`="`)
		b.WriteString(escapeLabel(val))
		b.WriteString(`"`)
	}
	b.WriteString("}")
	return b.String()
}

func escapeLabel(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `"`, `\"`)
	return strings.ReplaceAll(v, "\n", `\n`)
}

func withLe(labels, le string) string {
	if labels == "" {
		return `{le="` + le + `"}`
	}
	return strings.TrimSuffix(labels, "}") + `,le="` + le + `"}`
}
