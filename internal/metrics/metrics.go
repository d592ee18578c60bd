package metrics

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Simple Prometheus-style metrics for HTTP requests and conversion
// jobs. This is intentionally minimal and in-memory only.

var (
	mu             sync.RWMutex
	requestsTotal  = make(map[reqKey]int64)
	latencyMsSum   = make(map[latKey]int64)
	latencyMsCount = make(map[latKey]int64)

	conversionsTotal = make(map[convKey]int64)
	uploadBytesTotal int64

	retentionJobsDeleted      = make(map[string]int64)
	retentionArtifactsDeleted int64
)

type reqKey struct {
	Method string
	Path   string
	Status int
}

type latKey struct {
	Method string
	Path   string
}

type convKey struct {
	Quality string
	Status  string
}

// RecordRequest increments request counter and records latency.
func RecordRequest(method, path string, status int, latencyMs int64) {
	mu.Lock()
	defer mu.Unlock()

	rk := reqKey{Method: method, Path: path, Status: status}
	requestsTotal[rk]++

	lk := latKey{Method: method, Path: path}
	latencyMsSum[lk] += latencyMs
	latencyMsCount[lk]++
}

// RecordConversion counts a terminal conversion transition by quality
// setting and resulting status (completed or failed).
func RecordConversion(quality, status string) {
	if quality == "" {
		quality = "default"
	}
	mu.Lock()
	defer mu.Unlock()
	conversionsTotal[convKey{Quality: quality, Status: status}]++
}

// RecordUploadBytes adds to the total bytes accepted by the upload intake.
func RecordUploadBytes(n int64) {
	if n <= 0 {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	uploadBytesTotal += n
}

// RecordRetentionJobs increments the counter of jobs deleted by TTL for
// a given terminal status.
func RecordRetentionJobs(status string, deleted int64) {
	if deleted <= 0 {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	retentionJobsDeleted[status] += deleted
}

// RecordRetentionArtifacts increments the counter of artifact files
// removed from disk by TTL cleanup.
func RecordRetentionArtifacts(deleted int64) {
	if deleted <= 0 {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	retentionArtifactsDeleted += deleted
}

// Export returns Prometheus-style metrics text.
func Export() string {
	mu.RLock()
	defer mu.RUnlock()

	var b strings.Builder

	b.WriteString("# HELP morpho_http_requests_total Total HTTP requests\n")
	b.WriteString("# TYPE morpho_http_requests_total counter\n")

	// Sort keys for stable output
	var reqKeys []reqKey
	for k := range requestsTotal {
		reqKeys = append(reqKeys, k)
	}
	sort.Slice(reqKeys, func(i, j int) bool {
		if reqKeys[i].Method != reqKeys[j].Method {
			return reqKeys[i].Method < reqKeys[j].Method
		}
		if reqKeys[i].Path != reqKeys[j].Path {
			return reqKeys[i].Path < reqKeys[j].Path
		}
		return reqKeys[i].Status < reqKeys[j].Status
	})

	for _, k := range reqKeys {
		v := requestsTotal[k]
		fmt.Fprintf(&b, "morpho_http_requests_total{method=\"%s\",path=\"%s\",status=\"%d\"} %d\n",
			k.Method, k.Path, k.Status, v)
	}

	b.WriteString("# HELP morpho_http_request_duration_ms_sum Total request duration in milliseconds\n")
	b.WriteString("# TYPE morpho_http_request_duration_ms_sum counter\n")
	b.WriteString("# HELP morpho_http_request_duration_ms_count Request count for latency metric\n")
	b.WriteString("# TYPE morpho_http_request_duration_ms_count counter\n")

	var latKeys []latKey
	for k := range latencyMsSum {
		latKeys = append(latKeys, k)
	}
	sort.Slice(latKeys, func(i, j int) bool {
		if latKeys[i].Method != latKeys[j].Method {
			return latKeys[i].Method < latKeys[j].Method
		}
		return latKeys[i].Path < latKeys[j].Path
	})

	for _, k := range latKeys {
		sum := latencyMsSum[k]
		cnt := latencyMsCount[k]
		fmt.Fprintf(&b, "morpho_http_request_duration_ms_sum{method=\"%s\",path=\"%s\"} %d\n",
			k.Method, k.Path, sum)
		fmt.Fprintf(&b, "morpho_http_request_duration_ms_count{method=\"%s\",path=\"%s\"} %d\n",
			k.Method, k.Path, cnt)
	}

	b.WriteString("# HELP morpho_conversions_total Terminal conversion transitions by quality and status\n")
	b.WriteString("# TYPE morpho_conversions_total counter\n")

	var convKeys []convKey
	for k := range conversionsTotal {
		convKeys = append(convKeys, k)
	}
	sort.Slice(convKeys, func(i, j int) bool {
		if convKeys[i].Quality != convKeys[j].Quality {
			return convKeys[i].Quality < convKeys[j].Quality
		}
		return convKeys[i].Status < convKeys[j].Status
	})

	for _, k := range convKeys {
		fmt.Fprintf(&b, "morpho_conversions_total{quality=\"%s\",status=\"%s\"} %d\n",
			k.Quality, k.Status, conversionsTotal[k])
	}

	b.WriteString("# HELP morpho_upload_bytes_total Total bytes accepted by upload intake\n")
	b.WriteString("# TYPE morpho_upload_bytes_total counter\n")
	fmt.Fprintf(&b, "morpho_upload_bytes_total %d\n", uploadBytesTotal)

	b.WriteString("# HELP morpho_retention_jobs_deleted_total Jobs deleted by retention cleanup\n")
	b.WriteString("# TYPE morpho_retention_jobs_deleted_total counter\n")

	var retKeys []string
	for k := range retentionJobsDeleted {
		retKeys = append(retKeys, k)
	}
	sort.Strings(retKeys)
	for _, k := range retKeys {
		fmt.Fprintf(&b, "morpho_retention_jobs_deleted_total{status=\"%s\"} %d\n", k, retentionJobsDeleted[k])
	}

	b.WriteString("# HELP morpho_retention_artifacts_deleted_total Artifact files deleted by retention cleanup\n")
	b.WriteString("# TYPE morpho_retention_artifacts_deleted_total counter\n")
	fmt.Fprintf(&b, "morpho_retention_artifacts_deleted_total %d\n", retentionArtifactsDeleted)

	return b.String()
}
