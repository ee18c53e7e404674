package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/taskforce/api"
	"github.com/BaSui01/taskforce/registry"
	"github.com/BaSui01/taskforce/tools"
	"github.com/BaSui01/taskforce/types"
)

// maxArgumentBytes 工具参数请求体上限
const maxArgumentBytes = 1 << 20

// ToolHandler 工具网关处理器
type ToolHandler struct {
	registry   *registry.Registry[tools.Provider]
	dispatcher *tools.Dispatcher
	logger     *zap.Logger
}

// NewToolHandler 创建工具网关处理器
func NewToolHandler(reg *registry.Registry[tools.Provider], dispatcher *tools.Dispatcher, logger *zap.Logger) *ToolHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if dispatcher == nil {
		dispatcher = tools.NewDispatcher(logger)
	}
	return &ToolHandler{
		registry:   reg,
		dispatcher: dispatcher,
		logger:     logger.With(zap.String("component", "tool_handler")),
	}
}

// Register 挂载 /v1/tools 路由
func (h *ToolHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/tools", h.HandleList)
	mux.HandleFunc("POST /v1/tools/{provider}/{operation}", h.HandleCall)
}

// HandleList 列出所有 provider 的工具
func (h *ToolHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	resp := api.ListToolsResponse{Providers: []api.ProviderInfo{}}
	for _, entry := range h.registry.All() {
		schemas := entry.Implementation.Operations().Schemas()
		resp.Providers = append(resp.Providers, api.ProviderInfo{Name: entry.Name, Tools: schemas})
		resp.Total += len(schemas)
	}
	WriteSuccess(w, r, resp)
}

// HandleCall 以请求体（JSON 对象，可为空）为参数调用工具
func (h *ToolHandler) HandleCall(w http.ResponseWriter, r *http.Request) {
	providerName := r.PathValue("provider")
	operation := r.PathValue("operation")

	provider, ok := h.registry.Lookup(providerName)
	if !ok {
		WriteError(w, r, types.NewNotFoundError(fmt.Sprintf("Tool %s not found.", providerName)), h.logger)
		return
	}
	if _, ok := provider.Operations().Lookup(operation); !ok {
		WriteError(w, r, types.NewNotFoundError(fmt.Sprintf("Method %s not found", operation)), h.logger)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxArgumentBytes))
	if err != nil {
		WriteError(w, r, types.NewError(types.ErrInvalidArguments, "failed to read request body").
			WithCause(err).
			WithHTTPStatus(http.StatusRequestEntityTooLarge), h.logger)
		return
	}
	if len(bytes.TrimSpace(body)) > 0 && !json.Valid(body) {
		WriteError(w, r, types.NewError(types.ErrInvalidArguments, "request body is not valid JSON"), h.logger)
		return
	}

	start := time.Now()
	result := h.dispatcher.Call(r.Context(), h.registry, providerName, operation, body)

	resp := Response{
		Success: result.IsSuccess(),
		Data: api.CallToolResponse{
			Provider:   providerName,
			Operation:  operation,
			Result:     result,
			DurationMS: time.Since(start).Milliseconds(),
		},
		Timestamp: time.Now(),
		RequestID: requestID(r),
	}
	if result.IsError() {
		resp.Error = &ErrorInfo{Code: string(types.ErrInvocationFailed), Message: result.Error()}
	}
	WriteJSON(w, http.StatusOK, resp)
}
