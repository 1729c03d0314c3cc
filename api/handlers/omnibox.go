package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/omniboxhq/omnibox/catalog"
	"github.com/omniboxhq/omnibox/extractor"
	"github.com/omniboxhq/omnibox/intent"
	"github.com/omniboxhq/omnibox/orchestrator"
	"github.com/omniboxhq/omnibox/research"
	"github.com/omniboxhq/omnibox/retriever"
	"github.com/omniboxhq/omnibox/streamhub"
	"github.com/omniboxhq/omnibox/subscription"
	"github.com/omniboxhq/omnibox/types"
)

// =============================================================================
// 🧭 Omnibox chat/refresh handler
// =============================================================================

// OmniboxHandler serves the natural-language gateway's REST and
// WebSocket surface: /chat, /refresh, subscription CRUD, and catalog
// reindexing.
type OmniboxHandler struct {
	router   *intent.Router
	simple   *orchestrator.Simple
	research *research.Orchestrator
	hub      *streamhub.Hub
	cat      *catalog.Catalog
	ret      *retriever.Retriever
	subStore *subscription.Store
	logger   *zap.Logger
}

// NewOmniboxHandler constructs an OmniboxHandler. research and hub may
// be nil when the research subsystem is disabled at boot — the intent
// Router is responsible for never routing to research in that case.
func NewOmniboxHandler(router *intent.Router, simple *orchestrator.Simple, researchOrch *research.Orchestrator, hub *streamhub.Hub, cat *catalog.Catalog, ret *retriever.Retriever, subStore *subscription.Store, logger *zap.Logger) *OmniboxHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OmniboxHandler{router: router, simple: simple, research: researchOrch, hub: hub, cat: cat, ret: ret, subStore: subStore, logger: logger.With(zap.String("component", "omnibox_handler"))}
}

// ChatRequest is the body of POST /chat.
type ChatRequest struct {
	Query           string `json:"query"`
	Mode            string `json:"mode,omitempty"`
	FilterDatasource string `json:"filter_datasource,omitempty"`
	UseCache        *bool  `json:"use_cache,omitempty"`
	ClientTaskID    string `json:"client_task_id,omitempty"`
	UserScope       string `json:"user_scope,omitempty"`
}

// ChatResponse is the body of a successful POST /chat response.
type ChatResponse struct {
	Success    bool           `json:"success"`
	IntentType string         `json:"intent_type"`
	Message    string         `json:"message,omitempty"`
	Data       any            `json:"data,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// HandleChat implements POST /chat. A request classified or hinted
// toward research is dispatched to the Streaming Channel and returns
// immediately with a websocket_endpoint for the caller to attach to;
// a simple request is executed synchronously and returned in full.
func (h *OmniboxHandler) HandleChat(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}
	var req ChatRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if req.Query == "" {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "query must not be empty", h.logger)
		return
	}

	userScope := req.UserScope
	if userScope == "" {
		userScope = "default"
	}

	decision := h.router.Classify(r.Context(), req.Query, intent.Mode(req.Mode))

	if decision.Route == intent.ModeResearch {
		taskID := req.ClientTaskID
		if taskID == "" {
			taskID = strconv.FormatInt(time.Now().UnixNano(), 36)
		}
		opts := orchestrator.Options{UserScope: userScope, FilterDatasource: req.FilterDatasource}
		h.startResearchTask(taskID, req.Query, opts)

		WriteSuccess(w, ChatResponse{
			Success:    true,
			IntentType: string(decision.Route),
			Message:    "research task started",
			Metadata: map[string]any{
				"requires_streaming":  true,
				"websocket_endpoint":  "/ws?task_id=" + taskID,
				"task_id":             taskID,
				"classifier_reasoning": decision.Reasoning,
			},
		})
		return
	}

	opts := orchestrator.Options{UserScope: userScope, FilterDatasource: req.FilterDatasource}
	result := h.simple.Process(r.Context(), req.Query, opts)

	WriteSuccess(w, ChatResponse{
		Success:    result.Status == orchestrator.StatusSuccess,
		IntentType: string(decision.Route),
		Data:       result,
		Metadata: map[string]any{
			"requires_streaming": false,
		},
	})
}

// startResearchTask launches the research graph under the streaming
// hub, adapting research.Event into streamhub.Message.
func (h *OmniboxHandler) startResearchTask(taskID, query string, opts orchestrator.Options) {
	h.hub.Start(taskID, func(ctx context.Context, emit func(streamhub.Message)) {
		report := h.research.Research(ctx, taskID, query, opts, func(e research.Event) {
			emit(streamhub.FromResearchEvent(e.Type, taskID, e.Payload))
		})
		if report.State == research.TaskError {
			emit(streamhub.ErrorMessage(taskID, "research_failed", report.Error, "research"))
			return
		}
		emit(streamhub.CompleteMessage(taskID, true, report.Summary, 0))
	})
}

// RefreshRequest is the body of POST /refresh.
type RefreshRequest struct {
	RefreshMetadata extractor.Plan `json:"refresh_metadata"`
	LayoutSnapshot  map[string]any `json:"layout_snapshot,omitempty"`
	UserScope       string         `json:"user_scope,omitempty"`
}

// HandleRefresh implements POST /refresh: re-executes a prior plan
// bypassing retrieval and extraction.
func (h *OmniboxHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}
	var req RefreshRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	userScope := req.UserScope
	if userScope == "" {
		userScope = "default"
	}

	result := h.simple.Refresh(r.Context(), req.RefreshMetadata, orchestrator.Options{UserScope: userScope})
	WriteSuccess(w, result)
}

// HandleReindex implements POST /catalog/reindex: reloads the catalog
// file and rebuilds the retriever's vector index from the new
// snapshot.
func (h *OmniboxHandler) HandleReindex(w http.ResponseWriter, r *http.Request) {
	if err := h.cat.Reload(); err != nil {
		apiErr := types.NewError(types.ErrInternalError, "catalog reload failed").WithCause(err)
		WriteError(w, apiErr, h.logger)
		return
	}
	snap := h.cat.Snapshot()
	if err := h.ret.IndexCatalog(r.Context(), snap); err != nil {
		apiErr := types.NewError(types.ErrInternalError, "retriever reindex failed").WithCause(err)
		WriteError(w, apiErr, h.logger)
		return
	}
	WriteSuccess(w, map[string]any{"routes_indexed": len(snap.Routes), "catalog_version": snap.Version})
}

// =============================================================================
// 📋 Subscription CRUD
// =============================================================================

// SubscriptionHandler serves CRUD for /subscriptions.
type SubscriptionHandler struct {
	store  *subscription.Store
	logger *zap.Logger
}

// NewSubscriptionHandler constructs a SubscriptionHandler.
func NewSubscriptionHandler(store *subscription.Store, logger *zap.Logger) *SubscriptionHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SubscriptionHandler{store: store, logger: logger.With(zap.String("component", "subscription_handler"))}
}

// HandleCreate implements POST /subscriptions.
func (h *SubscriptionHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}
	var sub subscription.Subscription
	if err := DecodeJSONBody(w, r, &sub, h.logger); err != nil {
		return
	}
	if sub.UserScope == "" {
		sub.UserScope = "default"
	}
	created, err := h.store.Create(r.Context(), sub)
	if err != nil {
		apiErr := types.NewError(types.ErrInvalidRequest, "create subscription failed").WithCause(err)
		WriteError(w, apiErr, h.logger)
		return
	}
	WriteSuccess(w, created)
}

// HandleList implements GET /subscriptions?user_scope=&platform=.
func (h *SubscriptionHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	userScope := r.URL.Query().Get("user_scope")
	if userScope == "" {
		userScope = "default"
	}
	platform := r.URL.Query().Get("platform")
	subs, err := h.store.List(r.Context(), userScope, platform)
	if err != nil {
		apiErr := types.NewError(types.ErrInternalError, "list subscriptions failed").WithCause(err)
		WriteError(w, apiErr, h.logger)
		return
	}
	WriteSuccess(w, subs)
}

// HandleGet implements GET /subscriptions/{id}.
func (h *SubscriptionHandler) HandleGet(w http.ResponseWriter, r *http.Request, id uint) {
	sub, err := h.store.Get(r.Context(), id)
	if err != nil {
		apiErr := types.NewError(types.ErrInvalidRequest, "subscription not found").WithCause(err).WithHTTPStatus(http.StatusNotFound)
		WriteError(w, apiErr, h.logger)
		return
	}
	WriteSuccess(w, sub)
}

// HandleUpdate implements PUT /subscriptions/{id}.
func (h *SubscriptionHandler) HandleUpdate(w http.ResponseWriter, r *http.Request, id uint) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}
	var sub subscription.Subscription
	if err := DecodeJSONBody(w, r, &sub, h.logger); err != nil {
		return
	}
	sub.ID = id
	updated, err := h.store.Update(r.Context(), sub)
	if err != nil {
		apiErr := types.NewError(types.ErrInvalidRequest, "update subscription failed").WithCause(err)
		WriteError(w, apiErr, h.logger)
		return
	}
	WriteSuccess(w, updated)
}

// HandleDelete implements DELETE /subscriptions/{id}.
func (h *SubscriptionHandler) HandleDelete(w http.ResponseWriter, r *http.Request, id uint) {
	if err := h.store.Delete(r.Context(), id); err != nil {
		apiErr := types.NewError(types.ErrInvalidRequest, "delete subscription failed").WithCause(err)
		WriteError(w, apiErr, h.logger)
		return
	}
	WriteSuccess(w, map[string]bool{"deleted": true})
}
