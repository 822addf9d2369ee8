package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordHTTPRequest(t *testing.T) {
	HTTPRequestsTotal.Reset()
	HTTPRequestDuration.Reset()

	RecordHTTPRequest("GET", "/api/v1/exports", "200", 0.123)

	counter := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", "/api/v1/exports", "200"))
	if counter != 1.0 {
		t.Errorf("Expected counter to be 1.0, got %f", counter)
	}
}

func TestRecordExportCreated(t *testing.T) {
	ExportsCreatedTotal.Reset()

	RecordExportCreated("declarative")
	RecordExportCreated("capture")
	RecordExportCreated("declarative")

	declarative := testutil.ToFloat64(ExportsCreatedTotal.WithLabelValues("declarative"))
	if declarative != 2.0 {
		t.Errorf("Expected declarative counter to be 2.0, got %f", declarative)
	}

	capture := testutil.ToFloat64(ExportsCreatedTotal.WithLabelValues("capture"))
	if capture != 1.0 {
		t.Errorf("Expected capture counter to be 1.0, got %f", capture)
	}
}

func TestRecordExportCompleted(t *testing.T) {
	ExportsCompletedTotal.Reset()

	RecordExportCompleted("declarative", "completed", "mp4", 120.5)
	RecordExportCompleted("capture", "failed", "webm", 30.2)

	completed := testutil.ToFloat64(ExportsCompletedTotal.WithLabelValues("declarative", "completed"))
	if completed != 1.0 {
		t.Errorf("Expected completed counter to be 1.0, got %f", completed)
	}

	failed := testutil.ToFloat64(ExportsCompletedTotal.WithLabelValues("capture", "failed"))
	if failed != 1.0 {
		t.Errorf("Expected failed counter to be 1.0, got %f", failed)
	}
}

func TestUpdateExportMetrics(t *testing.T) {
	UpdateExportMetrics(5, 10)

	inProgress := testutil.ToFloat64(ExportsInProgress)
	if inProgress != 5.0 {
		t.Errorf("Expected exports in progress to be 5.0, got %f", inProgress)
	}

	queueDepth := testutil.ToFloat64(ExportQueueDepth)
	if queueDepth != 10.0 {
		t.Errorf("Expected queue depth to be 10.0, got %f", queueDepth)
	}
}

func TestRecordFrameRendered(t *testing.T) {
	FramesRenderedTotal.Reset()

	RecordFrameRendered("declarative", 0.004)
	RecordFrameRendered("declarative", 0.006)

	frames := testutil.ToFloat64(FramesRenderedTotal.WithLabelValues("declarative"))
	if frames != 2.0 {
		t.Errorf("Expected rendered frames to be 2.0, got %f", frames)
	}
}

func TestRecordFrameCacheAccess(t *testing.T) {
	FrameCacheHitsTotal.Reset()

	RecordFrameCacheAccess(true)
	RecordFrameCacheAccess(true)
	RecordFrameCacheAccess(false)

	hits := testutil.ToFloat64(FrameCacheHitsTotal.WithLabelValues("hit"))
	if hits != 2.0 {
		t.Errorf("Expected cache hits to be 2.0, got %f", hits)
	}

	misses := testutil.ToFloat64(FrameCacheHitsTotal.WithLabelValues("miss"))
	if misses != 1.0 {
		t.Errorf("Expected cache misses to be 1.0, got %f", misses)
	}
}

func TestRecordStorageOperation(t *testing.T) {
	StorageOperationsTotal.Reset()
	StorageBytesTransferred.Reset()

	RecordStorageOperation("upload", "success", 1.234, 1048576)

	counter := testutil.ToFloat64(StorageOperationsTotal.WithLabelValues("upload", "success"))
	if counter != 1.0 {
		t.Errorf("Expected storage operation counter to be 1.0, got %f", counter)
	}

	bytes := testutil.ToFloat64(StorageBytesTransferred.WithLabelValues("upload"))
	if bytes != 1048576.0 {
		t.Errorf("Expected bytes transferred to be 1048576.0, got %f", bytes)
	}
}

func TestRecordDatabaseOperation(t *testing.T) {
	DatabaseOperationsTotal.Reset()

	RecordDatabaseOperation("select", "success", 0.05)
	RecordDatabaseOperation("insert", "error", 0.02)

	success := testutil.ToFloat64(DatabaseOperationsTotal.WithLabelValues("select", "success"))
	if success != 1.0 {
		t.Errorf("Expected select success counter to be 1.0, got %f", success)
	}

	failure := testutil.ToFloat64(DatabaseOperationsTotal.WithLabelValues("insert", "error"))
	if failure != 1.0 {
		t.Errorf("Expected insert error counter to be 1.0, got %f", failure)
	}
}

func TestRecordError(t *testing.T) {
	ErrorsTotal.Reset()

	RecordError("api", "validation")
	RecordError("worker", "ffmpeg")
	RecordError("api", "validation")

	apiErrors := testutil.ToFloat64(ErrorsTotal.WithLabelValues("api", "validation"))
	if apiErrors != 2.0 {
		t.Errorf("Expected API validation errors to be 2.0, got %f", apiErrors)
	}

	workerErrors := testutil.ToFloat64(ErrorsTotal.WithLabelValues("worker", "ffmpeg"))
	if workerErrors != 1.0 {
		t.Errorf("Expected worker FFmpeg errors to be 1.0, got %f", workerErrors)
	}
}

func BenchmarkRecordHTTPRequest(b *testing.B) {
	for i := 0; i < b.N; i++ {
		RecordHTTPRequest("GET", "/api/v1/exports", "200", 0.123)
	}
}
