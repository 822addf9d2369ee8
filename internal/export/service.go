package export

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/clipforge/clipforge/internal/cache"
	"github.com/clipforge/clipforge/internal/compositor"
	"github.com/clipforge/clipforge/internal/config"
	"github.com/clipforge/clipforge/internal/database"
	"github.com/clipforge/clipforge/internal/decoder"
	"github.com/clipforge/clipforge/internal/metrics"
	"github.com/clipforge/clipforge/internal/renderer"
	"github.com/clipforge/clipforge/internal/storage"
	"github.com/clipforge/clipforge/internal/tracing"
	"github.com/clipforge/clipforge/internal/transcoder"
	"github.com/clipforge/clipforge/pkg/models"
)

const (
	// cancelPollInterval is how often the worker checks the cancellation
	// flag while rendering.
	cancelPollInterval = time.Second

	// progressTTL bounds how long cached progress outlives its last update.
	progressTTL = time.Hour

	// jobLockTTL bounds the per-job worker lock; long enough for any
	// realistic render, short enough to self-heal after a worker crash.
	jobLockTTL = 4 * time.Hour

	// dbProgressStep is the minimum progress delta persisted to the
	// database; the cache gets every update.
	dbProgressStep = 5
)

// Service runs export jobs end to end on a worker: stage media from object
// storage, render with the requested driver, upload the deliverable, and
// keep job state in the database and cache current throughout.
type Service struct {
	repo     *database.Repository
	cache    *cache.Cache
	store    *storage.Storage
	cfg      config.RenderConfig
	workerID string
}

// NewService wires an export service
func NewService(repo *database.Repository, c *cache.Cache, store *storage.Storage, cfg config.RenderConfig, workerID string) *Service {
	return &Service{
		repo:     repo,
		cache:    c,
		store:    store,
		cfg:      cfg,
		workerID: workerID,
	}
}

// ProcessJob executes one export job. A cancelled job is not an error from
// the queue's point of view: it is acked, not requeued.
func (s *Service) ProcessJob(ctx context.Context, job *models.ExportJob) error {
	logger := log.With().Str("job_id", job.ID).Str("driver", job.Driver).Logger()
	started := time.Now()

	span, ctx := tracing.StartSpan(ctx, "export.process")
	defer tracing.FinishSpan(span)
	tracing.SetTag(span, "job_id", job.ID)
	tracing.SetTag(span, "driver", job.Driver)

	// Keeps a redelivered or duplicated message from racing a running render.
	locked, err := s.cache.AcquireLock(ctx, "export-job:"+job.ID, jobLockTTL)
	if err != nil {
		return fmt.Errorf("failed to acquire job lock: %w", err)
	}
	if !locked {
		logger.Warn().Msg("Export job already locked by another worker, skipping")
		return nil
	}
	defer s.cache.ReleaseLock(context.WithoutCancel(ctx), "export-job:"+job.ID)

	if err := s.repo.MarkExportJobStarted(ctx, job.ID, s.workerID); err != nil {
		return err
	}
	metrics.ExportsInProgress.Inc()
	defer metrics.ExportsInProgress.Dec()

	scratch, err := os.MkdirTemp(s.cfg.TempDir, "export-*")
	if err != nil {
		return s.fail(ctx, job, fmt.Errorf("failed to create scratch dir: %w", err))
	}
	defer func() {
		if err := os.RemoveAll(scratch); err != nil {
			logger.Warn().Err(err).Str("dir", scratch).Msg("failed to remove export scratch dir")
		}
	}()

	// The cancellation flag raised through the API cancels the render
	// context; the drivers translate that into ErrAborted.
	jobCtx, cancelJob := context.WithCancel(ctx)
	defer cancelJob()
	go s.watchCancellation(jobCtx, job.ID, cancelJob)

	paths, err := s.stageMedia(jobCtx, &job.Timeline, scratch)
	if err != nil {
		return s.fail(ctx, job, err)
	}

	progress := s.progressSink(jobCtx, job, &logger)

	var result *models.ExportResult
	switch job.Driver {
	case models.DriverCapture:
		result, err = s.runCapture(jobCtx, job, paths, scratch, progress)
	case models.DriverDeclarative:
		result, err = s.runDeclarative(jobCtx, job, paths, scratch, progress)
	default:
		err = fmt.Errorf("unknown export driver %q", job.Driver)
	}

	if err != nil {
		if errors.Is(err, ErrAborted) {
			logger.Info().Msg("Export cancelled")
			bg := context.WithoutCancel(ctx)
			if dbErr := s.repo.UpdateExportJobStatus(bg, job.ID, models.ExportStatusCancelled, ""); dbErr != nil {
				logger.Error().Err(dbErr).Msg("failed to mark job cancelled")
			}
			s.cache.ClearCancel(bg, job.ID)
			metrics.RecordExportCompleted(job.Driver, "cancelled", job.Config.Format, time.Since(started).Seconds())
			return nil
		}
		tracing.LogError(span, err)
		return s.fail(ctx, job, err)
	}

	key := fmt.Sprintf("exports/%s%s", job.ID, extForMime(result.MimeType))
	if err := s.store.UploadBytes(jobCtx, key, result.Data, result.MimeType); err != nil {
		return s.fail(ctx, job, fmt.Errorf("failed to upload deliverable: %w", err))
	}

	if err := s.repo.MarkExportJobCompleted(ctx, job.ID, key, result.MimeType); err != nil {
		return err
	}
	s.cache.SetJobProgress(ctx, job.ID, 100, progressTTL)

	metrics.RecordExportCompleted(job.Driver, "completed", job.Config.Format, time.Since(started).Seconds())
	metrics.TimelineDurationExported.Add(job.Timeline.TotalDuration())

	logger.Info().
		Str("output_key", key).
		Str("mime_type", result.MimeType).
		Int("size_bytes", len(result.Data)).
		Dur("elapsed", time.Since(started)).
		Msg("Export completed")
	return nil
}

// fail records the failure and returns the original error for requeueing
func (s *Service) fail(ctx context.Context, job *models.ExportJob, err error) error {
	log.Error().Err(err).Str("job_id", job.ID).Msg("Export failed")
	metrics.RecordError("worker", "export")

	bg := context.WithoutCancel(ctx)
	if dbErr := s.repo.UpdateExportJobStatus(bg, job.ID, models.ExportStatusFailed, err.Error()); dbErr != nil {
		log.Error().Err(dbErr).Str("job_id", job.ID).Msg("failed to mark job failed")
	}
	return err
}

// watchCancellation polls the cancellation flag until the job context ends
func (s *Service) watchCancellation(ctx context.Context, jobID string, cancel context.CancelFunc) {
	ticker := time.NewTicker(cancelPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			requested, err := s.cache.CancelRequested(ctx, jobID)
			if err != nil {
				log.Warn().Err(err).Str("job_id", jobID).Msg("failed to poll cancel flag")
				continue
			}
			if requested {
				cancel()
				return
			}
		}
	}
}

// progressSink fans one progress update out to the cache, the database
// (stepped), and the log.
func (s *Service) progressSink(ctx context.Context, job *models.ExportJob, logger *zerolog.Logger) func(int) {
	lastPersisted := -dbProgressStep
	return func(p int) {
		s.cache.SetJobProgress(ctx, job.ID, p, progressTTL)
		if p-lastPersisted >= dbProgressStep || p == 100 {
			if err := s.repo.UpdateExportJobProgress(ctx, job.ID, p); err != nil {
				logger.Warn().Err(err).Msg("failed to persist progress")
			} else {
				lastPersisted = p
			}
		}
		logger.Debug().Int("progress", p).Msg("Export progress")
	}
}

// stageMedia downloads every referenced media object into the scratch dir
// and returns mediaID -> local path.
func (s *Service) stageMedia(ctx context.Context, tl *models.Timeline, scratch string) (map[string]string, error) {
	paths := make(map[string]string, len(tl.MediaFiles))

	for i := range tl.MediaFiles {
		media := &tl.MediaFiles[i]
		if media.Locator == "" {
			continue
		}

		local := filepath.Join(scratch, media.ID+filepath.Ext(media.Locator))
		start := time.Now()
		if err := s.store.DownloadFileParallel(ctx, media.Locator, local); err != nil {
			metrics.RecordStorageOperation("download", "error", time.Since(start).Seconds(), 0)
			return nil, fmt.Errorf("failed to stage media %s: %w", media.ID, err)
		}
		metrics.RecordStorageOperation("download", "success", time.Since(start).Seconds(), media.Size)
		paths[media.ID] = local
	}

	return paths, nil
}

// runDeclarative renders through the frame-exact renderer
func (s *Service) runDeclarative(ctx context.Context, job *models.ExportJob, paths map[string]string, scratch string, progress func(int)) (*models.ExportResult, error) {
	entries, closers, err := s.openSources(ctx, &job.Timeline, paths)
	if err != nil {
		return nil, err
	}
	defer func() {
		for _, c := range closers {
			c.Close()
		}
	}()

	r := renderer.New(renderer.NewFFmpegSink(renderer.FFmpegSinkConfig{
		FFmpegPath: s.cfg.FFmpegPath,
		TempDir:    scratch,
	}))
	driver := NewDeclarativeDriver(r)

	return driver.Export(ctx, &job.Timeline, entries, DeclarativeOptions{
		Width:        job.Config.Width,
		Height:       job.Config.Height,
		FPS:          job.Config.FPS,
		Format:       job.Config.Format,
		CRF:          job.Config.CRF(),
		Progress:     progress,
		ResolveAudio: stagedAudioResolver(paths),
	})
}

// stagedAudioResolver serves clip audio straight from the staged media files
func stagedAudioResolver(paths map[string]string) AudioResolver {
	return func(ctx context.Context, clip *models.Clip, media *models.MediaFile) (string, error) {
		path, ok := paths[media.ID]
		if !ok {
			return "", fmt.Errorf("audio media %s not staged", media.ID)
		}
		return path, nil
	}
}

// runCapture renders through the wall-clock capture driver
func (s *Service) runCapture(ctx context.Context, job *models.ExportJob, paths map[string]string, scratch string, progress func(int)) (*models.ExportResult, error) {
	opener := &stagedOpener{
		paths:      paths,
		ffmpegPath: s.cfg.FFmpegPath,
		opts: decoder.Options{
			CacheCapacity: s.cfg.FrameCacheCap,
			Timeout:       s.cfg.DecodeTimeout,
		},
	}

	recorder := NewStreamRecorder(s.cfg.FFmpegPath, scratch)
	remuxer := transcoder.NewRemuxer(transcoder.NewFFmpeg(s.cfg.FFmpegPath, s.cfg.FFprobePath), scratch)
	driver := NewCaptureDriver(recorder, remuxer, recorder)

	return driver.Export(ctx, &job.Timeline, opener, CaptureOptions{
		Width:        job.Config.Width,
		Height:       job.Config.Height,
		FPS:          job.Config.FPS,
		Quality:      job.Config.Quality,
		Progress:     progress,
		ResolveAudio: stagedAudioResolver(paths),
	})
}

// openSources opens a frame source per video-bearing clip for the
// declarative path. Decoders are per clip: each clip keeps its own
// sequential playhead through the source.
func (s *Service) openSources(ctx context.Context, tl *models.Timeline, paths map[string]string) (compositor.Entries, []io.Closer, error) {
	entries := make(compositor.Entries)
	var closers []io.Closer

	closeAll := func() {
		for _, c := range closers {
			c.Close()
		}
	}

	for i := range tl.Tracks {
		track := &tl.Tracks[i]
		if track.Type != models.TrackTypeVideo && track.Type != models.TrackTypeOverlay {
			continue
		}
		for j := range track.Clips {
			clip := &track.Clips[j]
			if clip.MediaID == "" {
				continue
			}
			media := tl.MediaFileByID(clip.MediaID)
			if media == nil {
				continue
			}
			path, ok := paths[media.ID]
			if !ok {
				closeAll()
				return nil, nil, fmt.Errorf("media %s not staged", media.ID)
			}

			if media.Type == models.MediaTypeImage {
				img, err := loadImage(path)
				if err != nil {
					closeAll()
					return nil, nil, fmt.Errorf("failed to load image %s: %w", media.ID, err)
				}
				entries[clip.ID] = compositor.StillSource{Img: img}
				continue
			}

			f, err := os.Open(path)
			if err != nil {
				closeAll()
				return nil, nil, fmt.Errorf("failed to open staged media %s: %w", media.ID, err)
			}
			dec, err := decoder.New(f, decoder.NewFFmpegPipeline(s.cfg.FFmpegPath), decoder.Options{
				CacheCapacity: s.cfg.FrameCacheCap,
				Timeout:       s.cfg.DecodeTimeout,
			})
			if err != nil {
				f.Close()
				closeAll()
				return nil, nil, fmt.Errorf("failed to open decoder for media %s: %w", media.ID, err)
			}

			entries[clip.ID] = DecoderSource{Dec: dec}
			closers = append(closers, decoderCloser{dec: dec, f: f})
		}
	}

	return entries, closers, nil
}

type decoderCloser struct {
	dec *decoder.FrameDecoder
	f   *os.File
}

func (c decoderCloser) Close() error {
	c.dec.Close()
	return c.f.Close()
}

// stagedOpener opens media elements for the capture driver from staged
// local files.
type stagedOpener struct {
	paths      map[string]string
	ffmpegPath string
	opts       decoder.Options
}

func (o *stagedOpener) Open(ctx context.Context, clip *models.Clip, media *models.MediaFile) (MediaElement, error) {
	path, ok := o.paths[media.ID]
	if !ok {
		return nil, fmt.Errorf("media %s not staged", media.ID)
	}

	if media.Type == models.MediaTypeImage {
		img, err := loadImage(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load image %s: %w", media.ID, err)
		}
		return &StillElement{Img: img}, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open staged media %s: %w", media.ID, err)
	}
	dec, err := decoder.New(f, decoder.NewFFmpegPipeline(o.ffmpegPath), o.opts)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to open decoder for media %s: %w", media.ID, err)
	}

	return &fileElement{MediaElement: NewDecoderElement(dec), f: f}, nil
}

// fileElement ties the staged file's lifetime to the element's
type fileElement struct {
	MediaElement
	f *os.File
}

func (e *fileElement) Close() error {
	err := e.MediaElement.Close()
	if ferr := e.f.Close(); err == nil {
		err = ferr
	}
	return err
}

func loadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	return img, err
}

func extForMime(mime string) string {
	if strings.HasPrefix(mime, "video/mp4") {
		return ".mp4"
	}
	return ".webm"
}
