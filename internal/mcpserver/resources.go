package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/insajin/stuckbar/internal/platform"
	"github.com/insajin/stuckbar/internal/session"
	"github.com/mark3labs/mcp-go/mcp"
)

// 리소스 URI 상수
const (
	StatusResourceURI  = "stuckbar://status"
	MetricsResourceURI = "stuckbar://metrics"
)

// ServerStatus는 stuckbar://status 리소스 내용입니다.
type ServerStatus struct {
	ServerName    string         `json:"server_name"`
	Version       string         `json:"version"`
	Platform      string         `json:"platform"`
	TargetProcess string         `json:"target_process"`
	SettleDelayMs int64          `json:"settle_delay_ms"`
	CallTimeout   string         `json:"call_timeout"`
	Tools         []string       `json:"tools"`
	Sessions      map[string]int `json:"sessions"`
	Active        []session.Info `json:"active_sessions"`
}

// newTextResource는 텍스트 리소스 콘텐츠를 생성하는 헬퍼입니다.
func newTextResource(uri, text, mimeType string) mcp.TextResourceContents {
	return mcp.TextResourceContents{
		URI:      uri,
		MIMEType: mimeType,
		Text:     text,
	}
}

// Status는 현재 서버 상태 스냅샷을 만듭니다.
func (s *Server) Status() ServerStatus {
	ctrl := s.registry.Controller()
	status := ServerStatus{
		ServerName:    ServerName,
		Version:       s.version,
		Platform:      platform.Detected(),
		TargetProcess: ctrl.Target(),
		SettleDelayMs: ctrl.SettleDelay().Milliseconds(),
		CallTimeout:   s.registry.CallTimeout().String(),
		Sessions:      s.tracker.Counts(),
		Active:        []session.Info{},
	}
	for _, d := range s.registry.Descriptors() {
		status.Tools = append(status.Tools, d.Name)
	}
	for _, info := range s.tracker.List() {
		if info.State != session.Closed {
			status.Active = append(status.Active, info)
		}
	}
	return status
}

// handleStatusResource는 stuckbar://status 리소스 핸들러입니다.
func (s *Server) handleStatusResource(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	data, err := json.MarshalIndent(s.Status(), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("상태 직렬화 실패: %w", err)
	}
	return []mcp.ResourceContents{
		newTextResource(request.Params.URI, string(data), "application/json"),
	}, nil
}

// handleMetricsResource는 stuckbar://metrics 리소스 핸들러입니다.
func (s *Server) handleMetricsResource(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	data, err := s.metrics.ToJSON()
	if err != nil {
		return nil, fmt.Errorf("메트릭 직렬화 실패: %w", err)
	}
	return []mcp.ResourceContents{
		newTextResource(request.Params.URI, string(data), "application/json"),
	}, nil
}
