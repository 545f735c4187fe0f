package models

import (
	"github.com/JSFTI/bg-removal/internal/observer"
	"github.com/JSFTI/bg-removal/internal/service"
)

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error     string `json:"error"`
	Type      string `json:"type"`
	Message   string `json:"message,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// HealthResponse reports service readiness
type HealthResponse struct {
	Status     string             `json:"status"`
	Version    string             `json:"version"`
	Time       string             `json:"time"`
	ModelReady bool               `json:"model_ready"`
	Requests   *observer.Metrics  `json:"requests,omitempty"`
	Workers    *service.PoolStats `json:"workers,omitempty"`
}
