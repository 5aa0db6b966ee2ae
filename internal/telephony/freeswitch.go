package telephony

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// FreeswitchGateway drives a FreeSWITCH-fronting control service over its
// HTTP originate hook. Event delivery runs the other way: the switch posts
// lifecycle events to this process's /switch/events hook (see hook.go).
//
// Keep this adapter free of business logic; it only translates DialRequest
// into the wire call and the wire response into DialResult.
type FreeswitchGateway struct {
	baseURL  string
	username string
	password string
	client   *http.Client
}

type FreeswitchConfig struct {
	BaseURL  string
	Username string
	Password string
	Timeout  time.Duration
}

func NewFreeswitchGateway(cfg FreeswitchConfig) (*FreeswitchGateway, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("telephony: switch base url is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &FreeswitchGateway{
		baseURL:  cfg.BaseURL,
		username: cfg.Username,
		password: cfg.Password,
		client:   &http.Client{Timeout: timeout},
	}, nil
}

func (g *FreeswitchGateway) Name() string { return "freeswitch" }

type originateResponse struct {
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason,omitempty"`
}

func (g *FreeswitchGateway) Dial(ctx context.Context, req DialRequest) (DialResult, error) {
	if req.CallID == "" || req.DialString == "" {
		return DialResult{}, fmt.Errorf("telephony: call_id and dial_string are required")
	}

	body, err := json.Marshal(req)
	if err != nil {
		return DialResult{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/originate", bytes.NewReader(body))
	if err != nil {
		return DialResult{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if g.username != "" {
		httpReq.SetBasicAuth(g.username, g.password)
	}

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return DialResult{}, err
	}
	defer resp.Body.Close()

	// 4xx means the switch looked at the dial and refused it; that is a
	// rejection, not a transport error. 5xx is a transport-level failure.
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		var out originateResponse
		if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&out); err != nil {
			// An empty or non-JSON 2xx body still counts as accepted.
			return DialResult{Accepted: true}, nil
		}
		if !out.Accepted {
			reason := out.Reason
			if reason == "" {
				reason = "rejected by switch"
			}
			return DialResult{Accepted: false, Reason: reason}, nil
		}
		return DialResult{Accepted: true}, nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		var out originateResponse
		reason := fmt.Sprintf("switch rejected dial (http %d)", resp.StatusCode)
		if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&out); err == nil && out.Reason != "" {
			reason = out.Reason
		}
		return DialResult{Accepted: false, Reason: reason}, nil
	default:
		return DialResult{}, fmt.Errorf("telephony: originate failed with http %d", resp.StatusCode)
	}
}
