package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// ToolResult는 도구 호출 결과 텍스트의 JSON 형식입니다.
type ToolResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// toolHandler는 도구 이름에 대한 mcp-go 핸들러를 만듭니다.
// 프로토콜 에러는 핸들러 에러로 반환되어 호출한 세션에만 JSON-RPC 에러로 전달됩니다.
func (s *Server) toolHandler(name string) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		s.logger.Info().Str("tool", name).Msg("도구 호출 요청")

		out, err := s.registry.Invoke(ctx, name, request.GetArguments())
		if err != nil {
			var perr *ProtocolError
			if errors.As(err, &perr) {
				return nil, err
			}
			// 시간 초과/취소/종료 중 거부는 도구 실패 결과로 응답
			s.logger.Warn().Err(err).Str("tool", name).Msg("도구 호출 실패")
			return newToolResult(ToolResult{
				Success: false,
				Message: timeoutMessage(name, err),
			})
		}

		return newToolResult(ToolResult{Success: out.Success, Message: out.Message})
	}
}

// newToolResult는 ToolResult를 JSON 텍스트 결과로 변환합니다.
func newToolResult(r ToolResult) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return mcp.NewToolResultError("Failed to serialize response"), nil
	}
	if !r.Success {
		return mcp.NewToolResultError(string(data)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func timeoutMessage(name string, err error) string {
	switch {
	case errors.Is(err, ErrTimeout):
		return fmt.Sprintf("%s timed out; the operation may still complete in the background", name)
	case errors.Is(err, ErrDraining):
		return fmt.Sprintf("%s was not started: the server is shutting down", name)
	}
	return fmt.Sprintf("%s was cancelled: %v", name, err)
}
