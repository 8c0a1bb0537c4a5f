package dmssync

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"strings"

	"cloud.google.com/go/pubsub"
	"github.com/gin-gonic/gin"
	"github.com/vhclabs/vhc_backend/config"
	"github.com/vhclabs/vhc_backend/models"
)

func importTopicName() string {
	if topic := strings.TrimSpace(os.Getenv("DMS_IMPORT_TOPIC")); topic != "" {
		return topic
	}
	return "dms-import"
}

func envBoolDefault(key string, def bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if v == "" {
		return def
	}
	return v == "1" || v == "true" || v == "yes"
}

// PublishImportRun queues one import for asynchronous execution. Scheduled
// imports for many organizations fan out through the topic instead of
// blocking the scheduler on each DMS call.
func PublishImportRun(ctx context.Context, payload ImportPubSubPayload) (string, error) {
	client, err := config.GetClient(ctx)
	if err != nil {
		return "", err
	}
	topic, err := config.CreateTopicIfNotExists(client, importTopicName())
	if err != nil {
		return "", err
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	result := topic.Publish(ctx, &pubsub.Message{Data: data})
	return result.Get(ctx)
}

// PubSubPushHandler handles the push subscription for the import topic.
// It always returns 204: a non-2xx makes pub/sub redeliver, and a run that
// failed for configuration reasons will fail identically on every retry.
func PubSubPushHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := config.GetLogger()

		if !envBoolDefault("ENABLE_DMS_PUBSUB_PUSH_ENDPOINT", true) {
			c.Status(http.StatusNoContent)
			return
		}

		var envelope PubSubPushEnvelope
		if err := c.ShouldBindJSON(&envelope); err != nil {
			logger.WithError(err).Error("invalid pubsub push envelope")
			c.Status(http.StatusNoContent)
			return
		}

		var payload ImportPubSubPayload
		if err := json.Unmarshal(envelope.Message.Data, &payload); err != nil {
			logger.WithError(err).WithField("message_id", envelope.Message.ID).Error("invalid import payload")
			c.Status(http.StatusNoContent)
			return
		}

		engine := newEngineFromGlobals()
		if payload.ImportType == "" {
			payload.ImportType = models.ImportTypeScheduled
		}
		result, err := engine.RunImport(c.Request.Context(), ImportParams{
			OrganizationId: payload.OrganizationId,
			SiteId:         payload.SiteId,
			Date:           payload.Date,
			ImportType:     payload.ImportType,
			TriggeredBy:    payload.TriggeredBy,
		})
		if err != nil {
			logger.WithError(err).WithField("organization_id", payload.OrganizationId).Error("pubsub import failed to start")
			c.Status(http.StatusNoContent)
			return
		}

		logger.WithFields(map[string]interface{}{
			"module":          "dmssync",
			"organization_id": payload.OrganizationId,
			"run_id":          result.RunId,
			"status":          result.Status,
		}).Info("pubsub import finished")
		c.Status(http.StatusNoContent)
	}
}
