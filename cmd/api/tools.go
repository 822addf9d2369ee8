package main

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/clipforge/clipforge/internal/captions"
	"github.com/clipforge/clipforge/pkg/models"
)

// Editing-assist endpoints. The AI backends themselves live elsewhere; these
// validate and normalize their raw payloads so clients always work with
// well-formed records.

// Parse transcription endpoint: normalizes a raw captioning payload into
// sorted, non-overlapping segments.
func (api *API) parseTranscription(c *gin.Context) {
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read payload"})
		return
	}

	result, err := captions.ParseTranscription(payload)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, result)
}

// Parse b-roll suggestions endpoint: filters malformed entries so the client
// never sees a partially-valid suggestion.
func (api *API) parseBrollSuggestions(c *gin.Context) {
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read payload"})
		return
	}

	suggestions, err := captions.ParseSuggestions(payload)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"suggestions": suggestions})
}

// Speech regions endpoint: inverts detected silences into the speech spans a
// silence-trim edit keeps.
func (api *API) speechRegions(c *gin.Context) {
	var req struct {
		Silences []models.Region `json:"silences"`
		Start    float64         `json:"start"`
		End      float64         `json:"end" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.End <= req.Start {
		c.JSON(http.StatusBadRequest, gin.H{"error": "End must be greater than start"})
		return
	}

	speech := captions.InvertToSpeech(req.Silences, req.Start, req.End)

	c.JSON(http.StatusOK, gin.H{"regions": speech})
}
