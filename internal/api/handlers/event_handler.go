// internal/api/handlers/event_handler.go
package handlers

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/andresuchdata/manifest-ingest/internal/event"
	"github.com/andresuchdata/manifest-ingest/internal/pipeline"
)

const maxNotificationSize = 1 << 20

type ManifestProcessor interface {
	ProcessManifest(ctx context.Context, bucket, key string) (*pipeline.Result, error)
}

type EventHandler struct {
	processor ManifestProcessor
}

func NewEventHandler(processor ManifestProcessor) *EventHandler {
	return &EventHandler{processor: processor}
}

// HandleNotification processes every manifest referenced by a storage
// notification, one after the other, and stops at the first failure.
func (h *EventHandler) HandleNotification(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxNotificationSize))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not read request body"})
		return
	}

	refs, err := event.ParseNotification(payload)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	processed := make([]*pipeline.Result, 0, len(refs))
	skipped := make([]event.ObjectRef, 0)
	for _, ref := range refs {
		result, err := h.processor.ProcessManifest(c.Request.Context(), ref.Bucket, ref.Key)
		if err != nil {
			zerolog.Ctx(c.Request.Context()).Error().Err(err).Str("bucket", ref.Bucket).Str("key", ref.Key).Msg("failed to process manifest")
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":     err.Error(),
				"bucket":    ref.Bucket,
				"key":       ref.Key,
				"processed": processed,
			})
			return
		}
		if result.Skipped {
			skipped = append(skipped, ref)
			continue
		}
		processed = append(processed, result)
	}

	c.JSON(http.StatusOK, gin.H{
		"processed": processed,
		"skipped":   skipped,
	})
}
