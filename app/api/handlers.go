package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/lysyi3m/feed-relay/app/feed"
	"github.com/lysyi3m/feed-relay/app/tasks"
)

func NewHandler(controller ControllerInterface, configCache *feed.ConfigCache, gatherer prometheus.Gatherer, version string) *Handler {
	return &Handler{
		controller:  controller,
		configCache: configCache,
		gatherer:    gatherer,
		version:     version,
	}
}

func (h *Handler) StartCrawler(c *gin.Context) {
	var req taskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, taskResponse{Status: statusError, Message: "taskName is required"})
		return
	}

	result := h.controller.Start(req.TaskName)
	slog.Info("Crawler start requested", "task", req.TaskName, "result", result.String())

	switch result {
	case tasks.ResultStarted:
		c.JSON(http.StatusOK, taskResponse{Status: statusSuccess, Message: fmt.Sprintf("Crawler %s started", req.TaskName)})
	case tasks.ResultAlreadyStarted:
		c.JSON(http.StatusBadRequest, taskResponse{Status: statusError, Message: fmt.Sprintf("Crawler %s is already started", req.TaskName)})
	default:
		c.JSON(http.StatusBadRequest, taskResponse{Status: statusError, Message: fmt.Sprintf("Crawler %s does not exist", req.TaskName)})
	}
}

func (h *Handler) StopCrawler(c *gin.Context) {
	var req taskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, taskResponse{Status: statusError, Message: "taskName is required"})
		return
	}

	result := h.controller.Stop(req.TaskName)
	slog.Info("Crawler stop requested", "task", req.TaskName, "result", result.String())

	switch result {
	case tasks.ResultStopped:
		c.JSON(http.StatusOK, taskResponse{Status: statusSuccess, Message: fmt.Sprintf("Crawler %s stopped", req.TaskName)})
	case tasks.ResultAlreadyStopped:
		c.JSON(http.StatusBadRequest, taskResponse{Status: statusError, Message: fmt.Sprintf("Crawler %s is already stopped", req.TaskName)})
	default:
		c.JSON(http.StatusBadRequest, taskResponse{Status: statusError, Message: fmt.Sprintf("Crawler %s does not exist", req.TaskName)})
	}
}

func (h *Handler) RunCrawler(c *gin.Context) {
	name := c.Param("name")

	switch h.controller.RunNow(name) {
	case tasks.ResultTriggered:
		c.JSON(http.StatusAccepted, taskResponse{Status: statusSuccess, Message: fmt.Sprintf("Crawler %s triggered", name)})
	case tasks.ResultBusy:
		c.JSON(http.StatusConflict, taskResponse{Status: statusError, Message: "Another run is in progress"})
	default:
		c.JSON(http.StatusNotFound, taskResponse{Status: statusError, Message: fmt.Sprintf("Crawler %s does not exist", name)})
	}
}

func (h *Handler) ListCrawlers(c *gin.Context) {
	status := h.controller.Status()

	crawlers := make([]map[string]interface{}, 0, len(status.Tasks))
	for _, task := range status.Tasks {
		info := map[string]interface{}{
			"name":   task.Name,
			"type":   string(task.Type),
			"active": task.Active,
		}

		if source, err := h.configCache.GetConfig(task.Name); err == nil {
			info["url"] = source.URL
			info["enabled"] = source.Settings.Enabled
			info["max_items"] = source.Settings.MaxItems
			info["extract_content"] = source.Settings.ExtractContent
			info["filters"] = len(source.Filters)
		}

		crawlers = append(crawlers, info)
	}

	scheduler := map[string]interface{}{
		"armed": status.Armed,
	}
	if !status.NextRun.IsZero() {
		scheduler["next_run"] = status.NextRun.Format(time.RFC3339)
	}

	c.JSON(http.StatusOK, map[string]interface{}{
		"crawlers":  crawlers,
		"total":     len(crawlers),
		"scheduler": scheduler,
	})
}

func (h *Handler) GetHealth(c *gin.Context) {
	status := h.controller.Status()

	active := 0
	for _, task := range status.Tasks {
		if task.Active {
			active++
		}
	}

	c.JSON(http.StatusOK, map[string]interface{}{
		"timestamp":             time.Now().In(time.Local).Format(time.RFC3339),
		"version":               h.version,
		"loaded_configurations": h.configCache.GetConfigCount(),
		"active_crawlers":       active,
		"armed":                 status.Armed,
	})
}
