package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/clipforge/clipforge/internal/database"
	"github.com/clipforge/clipforge/internal/metrics"
	"github.com/clipforge/clipforge/pkg/models"
)

const (
	jobCacheTTL  = time.Hour
	cancelTTL    = time.Hour
	downloadTTL  = 15 * time.Minute
	defaultLimit = 20
	maxListLimit = 100
)

// Upload media endpoint
func (api *API) uploadMedia(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No media file provided"})
		return
	}

	if file.Size > api.cfg.Render.MaxUploadSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{
			"error": fmt.Sprintf("File exceeds the %d byte upload limit", api.cfg.Render.MaxUploadSize),
		})
		return
	}

	tempPath := filepath.Join(os.TempDir(), uuid.New().String()+filepath.Ext(file.Filename))
	if err := c.SaveUploadedFile(file, tempPath); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save file"})
		return
	}
	defer os.Remove(tempPath)

	contentType := file.Header.Get("Content-Type")
	mediaType := mediaTypeFor(contentType, file.Filename)

	asset := &models.MediaAsset{
		ID:          uuid.New().String(),
		Filename:    file.Filename,
		Type:        mediaType,
		ContentType: contentType,
		Size:        file.Size,
	}

	// Images carry no stream metadata worth probing.
	if mediaType != models.MediaTypeImage {
		info, err := api.ffmpeg.ProbeMediaInfo(c.Request.Context(), tempPath)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Failed to probe media: %v", err)})
			return
		}
		asset.Duration = info.Duration
		asset.Width = info.Width
		asset.Height = info.Height
		asset.Codec = info.Codec
		asset.FrameRate = info.FrameRate
		asset.HasAudio = info.HasAudio
	}

	objectKey := fmt.Sprintf("media/%s/%s", asset.ID, file.Filename)
	if err := api.storage.UploadFileParallel(c.Request.Context(), objectKey, tempPath); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to upload: %v", err)})
		return
	}
	asset.ObjectKey = objectKey

	if err := api.repo.CreateMediaAsset(c.Request.Context(), asset); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to create media asset: %v", err)})
		return
	}

	// Library thumbnail, best effort.
	if mediaType == models.MediaTypeVideo {
		if err := api.uploadThumbnail(c.Request.Context(), asset, tempPath); err != nil {
			log.Warn().Err(err).Str("media_id", asset.ID).Msg("Failed to generate thumbnail")
		}
	}

	api.cache.SetMediaInfo(c.Request.Context(), asset.ID, asset, jobCacheTTL)

	metrics.MediaUploadsTotal.Inc()
	metrics.MediaUploadSizeBytes.Observe(float64(file.Size))

	c.JSON(http.StatusCreated, asset)
}

// uploadThumbnail extracts a frame from early in the video and stores it
// alongside the media object.
func (api *API) uploadThumbnail(ctx context.Context, asset *models.MediaAsset, videoPath string) error {
	thumbPath := filepath.Join(os.TempDir(), asset.ID+"-thumb.jpg")
	defer os.Remove(thumbPath)

	at := asset.Duration * 0.1
	if err := api.ffmpeg.ExtractThumbnail(ctx, videoPath, thumbPath, at); err != nil {
		return err
	}

	return api.storage.UploadFile(ctx, fmt.Sprintf("media/%s/thumbnail.jpg", asset.ID), thumbPath)
}

// Get media endpoint
func (api *API) getMedia(c *gin.Context) {
	mediaID := c.Param("id")

	var cached models.MediaAsset
	if found, err := api.cache.GetMediaInfo(c.Request.Context(), mediaID, &cached); err == nil && found {
		c.JSON(http.StatusOK, &cached)
		return
	}

	asset, err := api.repo.GetMediaAsset(c.Request.Context(), mediaID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Media not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, asset)
}

// List media endpoint
func (api *API) listMedia(c *gin.Context) {
	limit, offset := paginationParams(c)

	assets, err := api.repo.ListMediaAssets(c.Request.Context(), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"media":  assets,
		"limit":  limit,
		"offset": offset,
	})
}

// Delete media endpoint
func (api *API) deleteMedia(c *gin.Context) {
	mediaID := c.Param("id")

	asset, err := api.repo.GetMediaAsset(c.Request.Context(), mediaID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Media not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if asset.ObjectKey != "" {
		if err := api.storage.Delete(c.Request.Context(), asset.ObjectKey); err != nil {
			log.Warn().Err(err).Str("object_key", asset.ObjectKey).Msg("Failed to delete media object")
		}
	}

	if err := api.repo.DeleteMediaAsset(c.Request.Context(), mediaID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to delete media: %v", err)})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Media deleted successfully", "media_id": mediaID})
}

// Create export endpoint
func (api *API) createExport(c *gin.Context) {
	var req struct {
		Driver   string              `json:"driver"`
		Timeline models.Timeline     `json:"timeline" binding:"required"`
		Config   models.ExportConfig `json:"config"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.Driver == "" {
		req.Driver = models.DriverDeclarative
	}
	if req.Driver != models.DriverCapture && req.Driver != models.DriverDeclarative {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Unknown export driver %q", req.Driver)})
		return
	}
	if req.Timeline.TotalDuration() <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Timeline is empty"})
		return
	}

	// Fill unset output parameters with the configured defaults.
	if req.Config.Width <= 0 {
		req.Config.Width = api.cfg.Render.DefaultWidth
	}
	if req.Config.Height <= 0 {
		req.Config.Height = api.cfg.Render.DefaultHeight
	}
	if req.Config.FPS <= 0 {
		req.Config.FPS = api.cfg.Render.DefaultFPS
	}
	if req.Config.Quality == "" {
		req.Config.Quality = models.QualityMedium
	}
	if req.Config.Format == "" {
		req.Config.Format = "mp4"
	}

	job := &models.ExportJob{
		ID:       uuid.New().String(),
		Status:   models.ExportStatusQueued,
		Driver:   req.Driver,
		Timeline: req.Timeline,
		Config:   req.Config,
	}

	if err := api.repo.CreateExportJob(c.Request.Context(), job); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to create export job: %v", err)})
		return
	}

	if err := api.queue.PublishJob(c.Request.Context(), job); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to queue export job: %v", err)})
		return
	}

	api.cache.SetJob(c.Request.Context(), job, jobCacheTTL)
	metrics.RecordExportCreated(job.Driver)

	c.JSON(http.StatusCreated, job)
}

// List exports endpoint
func (api *API) listExports(c *gin.Context) {
	limit, offset := paginationParams(c)

	jobs, err := api.repo.ListExportJobs(c.Request.Context(), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"exports": jobs,
		"limit":   limit,
		"offset":  offset,
	})
}

// Get export endpoint. Reads are cache-first: the worker refreshes the
// cached snapshot as the job advances.
func (api *API) getExport(c *gin.Context) {
	jobID := c.Param("id")

	job, err := api.cache.GetJob(c.Request.Context(), jobID)
	if err != nil || job == nil {
		job, err = api.repo.GetExportJob(c.Request.Context(), jobID)
		if err != nil {
			if errors.Is(err, database.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "Export not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
	}

	// The hot progress counter may be fresher than either snapshot.
	if progress, err := api.cache.GetJobProgress(c.Request.Context(), jobID); err == nil && progress > job.Progress {
		job.Progress = progress
	}

	c.JSON(http.StatusOK, job)
}

// Get export progress endpoint
func (api *API) getExportProgress(c *gin.Context) {
	jobID := c.Param("id")

	progress, err := api.cache.GetJobProgress(c.Request.Context(), jobID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if progress < 0 {
		job, err := api.repo.GetExportJob(c.Request.Context(), jobID)
		if err != nil {
			if errors.Is(err, database.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "Export not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		progress = job.Progress
	}

	c.JSON(http.StatusOK, gin.H{"id": jobID, "progress": progress})
}

// Cancel export endpoint. Queued jobs are cancelled in place; running jobs
// get a flag the worker polls mid-render.
func (api *API) cancelExport(c *gin.Context) {
	jobID := c.Param("id")

	job, err := api.repo.GetExportJob(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Export not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	switch job.Status {
	case models.ExportStatusCompleted, models.ExportStatusFailed, models.ExportStatusCancelled:
		c.JSON(http.StatusConflict, gin.H{"error": fmt.Sprintf("Export is already %s", job.Status)})
		return
	case models.ExportStatusPending, models.ExportStatusQueued:
		if err := api.repo.UpdateExportJobStatus(c.Request.Context(), jobID, models.ExportStatusCancelled, ""); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to cancel export: %v", err)})
			return
		}
	}

	// Raised unconditionally: the worker may have picked the job up between
	// the read above and now.
	if err := api.cache.RequestCancel(c.Request.Context(), jobID, cancelTTL); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to request cancellation: %v", err)})
		return
	}
	api.cache.DeleteJob(c.Request.Context(), jobID)

	c.JSON(http.StatusOK, gin.H{"message": "Cancellation requested", "export_id": jobID})
}

// Download export endpoint
func (api *API) downloadExport(c *gin.Context) {
	jobID := c.Param("id")

	job, err := api.repo.GetExportJob(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Export not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if job.Status != models.ExportStatusCompleted || job.OutputKey == "" {
		c.JSON(http.StatusConflict, gin.H{"error": fmt.Sprintf("Export is %s, not completed", job.Status)})
		return
	}

	url, err := api.storage.GetURL(c.Request.Context(), job.OutputKey, downloadTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to generate download URL: %v", err)})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"url":        url,
		"mime_type":  job.MimeType,
		"expires_in": int(downloadTTL.Seconds()),
	})
}

func paginationParams(c *gin.Context) (limit, offset int) {
	limit = defaultLimit
	if v, err := strconv.Atoi(c.Query("limit")); err == nil && v > 0 {
		limit = v
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if v, err := strconv.Atoi(c.Query("offset")); err == nil && v > 0 {
		offset = v
	}
	return limit, offset
}

func mediaTypeFor(contentType, filename string) models.MediaType {
	switch {
	case strings.HasPrefix(contentType, "image/"):
		return models.MediaTypeImage
	case strings.HasPrefix(contentType, "audio/"):
		return models.MediaTypeAudio
	case strings.HasPrefix(contentType, "video/"):
		return models.MediaTypeVideo
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".png", ".jpg", ".jpeg", ".gif":
		return models.MediaTypeImage
	case ".mp3", ".aac", ".wav":
		return models.MediaTypeAudio
	default:
		return models.MediaTypeVideo
	}
}
