package httpapi

import (
	"errors"
	"net/http"

	"callgate/internal/calls"
	"callgate/internal/diag"
	"callgate/internal/lifecycle"
	"callgate/internal/routing"
	"callgate/internal/telephony"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.

type Handlers struct {
	Coordinator *lifecycle.Coordinator

	// Diag is optional; unparseable switch events are flagged there.
	Diag *diag.Service
}

// --- Calls ---

type createCallRequest struct {
	To   string `json:"to"`
	From string `json:"from"`

	VoiceURL    string `json:"voice_url"`
	VoiceMethod string `json:"voice_method"`

	StatusCallbackURL    string `json:"status_callback_url"`
	StatusCallbackMethod string `json:"status_callback_method"`

	SID              string `json:"sid"`
	AccountSID       string `json:"account_sid"`
	AccountAuthToken string `json:"account_auth_token"`
	APIVersion       string `json:"api_version"`

	// Direction is accepted for wire compatibility but ignored; every
	// call this core originates is outbound-api.
	Direction string `json:"direction"`

	RoutingInstructions struct {
		DialString string `json:"dial_string"`
	} `json:"routing_instructions"`
}

// CreateCall originates an outbound call. The response is the queued
// snapshot; the dial outcome arrives later via the status callback.
func (h Handlers) CreateCall(c *gin.Context) {
	var req createCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.To == "" || req.From == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "to and from required"})
		return
	}

	snap, err := h.Coordinator.Originate(c.Request.Context(), lifecycle.OriginateRequest{
		To:                   req.To,
		From:                 req.From,
		VoiceURL:             req.VoiceURL,
		VoiceMethod:          req.VoiceMethod,
		StatusCallbackURL:    req.StatusCallbackURL,
		StatusCallbackMethod: req.StatusCallbackMethod,
		SID:                  req.SID,
		AccountSID:           req.AccountSID,
		AccountAuthToken:     req.AccountAuthToken,
		APIVersion:           req.APIVersion,
		RoutingHints:         routing.Hints{DialString: req.RoutingInstructions.DialString},
	})
	if err != nil {
		switch {
		case errors.Is(err, routing.ErrInvalidRoute):
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, calls.ErrDuplicateID):
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "call already exists"})
		case errors.Is(err, lifecycle.ErrCapacityExhausted):
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "account call capacity exhausted"})
		default:
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "call creation failed"})
		}
		return
	}
	c.JSON(http.StatusCreated, snap)
}

func (h Handlers) GetCall(c *gin.Context) {
	id := c.Param("call_id")
	snap, err := h.Coordinator.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, calls.ErrNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "call not found"})
			return
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "call lookup failed"})
		return
	}
	c.JSON(http.StatusOK, snap)
}

// CancelCall cancels a call that is still queued. A call already
// progressing or finished answers 409 with its current status.
func (h Handlers) CancelCall(c *gin.Context) {
	id := c.Param("call_id")
	snap, err := h.Coordinator.Cancel(c.Request.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, calls.ErrNotFound):
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "call not found"})
		case errors.Is(err, calls.ErrInvalidTransition), errors.Is(err, calls.ErrStaleTransition):
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "call is no longer cancelable"})
		default:
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "cancel failed"})
		}
		return
	}
	c.JSON(http.StatusOK, snap)
}

// --- Switch event hook ---

// SwitchEvent accepts one switch-posted lifecycle event. 204 means
// accepted for processing, not applied; the switch retries on 503.
func (h Handlers) SwitchEvent(c *gin.Context) {
	ev, err := telephony.ParseSwitchEvent(c.Request)
	if err != nil {
		_ = h.Diag.Append(c.Request.Context(), diag.Record{
			Kind:   diag.KindMalformedEvent,
			Detail: err.Error(),
		})
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !h.Coordinator.Publish(ev) {
		c.Header("Retry-After", "1")
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "event queue full"})
		return
	}
	c.Status(http.StatusNoContent)
}
