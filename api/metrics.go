package api

import (
	"regexp"
	"sync"
	"time"
)

// RouteMetrics aggregates request metrics for a single method+path pair
type RouteMetrics struct {
	Method      string        `json:"method"`
	Path        string        `json:"path"`
	Count       int64         `json:"count"`
	ErrorCount  int64         `json:"errorCount"`
	TotalTime   time.Duration `json:"totalTime"`
	AvgTime     time.Duration `json:"avgTime"`
	MaxTime     time.Duration `json:"maxTime"`
	LastRequest time.Time     `json:"lastRequest"`
}

// MetricsCollector collects and aggregates request metrics
type MetricsCollector struct {
	mu            sync.RWMutex
	routeMetrics  map[string]*RouteMetrics
	totalRequests int64
	totalErrors   int64
	startedAt     time.Time
}

var globalMetrics *MetricsCollector
var metricsOnce sync.Once

// GetMetrics returns the global metrics collector
func GetMetrics() *MetricsCollector {
	metricsOnce.Do(func() {
		globalMetrics = &MetricsCollector{
			routeMetrics: make(map[string]*RouteMetrics),
			startedAt:    time.Now(),
		}
	})
	return globalMetrics
}

// objectIDPattern matches 24-char hex path segments so per-document routes
// aggregate under one key
var objectIDPattern = regexp.MustCompile(`/[0-9a-fA-F]{24}(/|$)`)

func normalizePath(path string) string {
	return objectIDPattern.ReplaceAllString(path, "/:id$1")
}

// Record folds one completed request into the per-route aggregates
func (mc *MetricsCollector) Record(method, path string, status int, duration time.Duration) {
	key := method + " " + normalizePath(path)

	mc.mu.Lock()
	defer mc.mu.Unlock()

	rm, ok := mc.routeMetrics[key]
	if !ok {
		rm = &RouteMetrics{Method: method, Path: normalizePath(path)}
		mc.routeMetrics[key] = rm
	}

	rm.Count++
	rm.TotalTime += duration
	rm.AvgTime = time.Duration(int64(rm.TotalTime) / rm.Count)
	if duration > rm.MaxTime {
		rm.MaxTime = duration
	}
	rm.LastRequest = time.Now()

	mc.totalRequests++
	if status >= 400 {
		rm.ErrorCount++
		mc.totalErrors++
	}
}

// Summary returns an overview suitable for the metrics endpoint
func (mc *MetricsCollector) Summary() map[string]interface{} {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	routes := make([]*RouteMetrics, 0, len(mc.routeMetrics))
	for _, rm := range mc.routeMetrics {
		copied := *rm
		routes = append(routes, &copied)
	}

	return map[string]interface{}{
		"totalRequests": mc.totalRequests,
		"totalErrors":   mc.totalErrors,
		"uptimeSeconds": int64(time.Since(mc.startedAt).Seconds()),
		"routes":        routes,
	}
}
