package api

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/lysyi3m/feed-relay/app/feed"
	"github.com/lysyi3m/feed-relay/app/tasks"
)

const (
	statusSuccess = "success"
	statusError   = "error"
)

type ControllerInterface interface {
	Start(name string) tasks.Result
	Stop(name string) tasks.Result
	RunNow(name string) tasks.Result
	Status() tasks.Status
}

var _ ControllerInterface = (*tasks.Controller)(nil)

type Handler struct {
	controller  ControllerInterface
	configCache *feed.ConfigCache
	gatherer    prometheus.Gatherer
	version     string
}

type taskRequest struct {
	TaskName string `json:"taskName" binding:"required"`
}

type taskResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}
