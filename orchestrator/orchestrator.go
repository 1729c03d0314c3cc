// Package orchestrator implements the Simple Orchestrator: a
// single-shot pipeline wiring Retrieve -> Extract -> Resolve -> Fetch in
// sequence. It is the pipeline the Research Orchestrator's Dispatcher
// node invokes once per sub-query, and the one the Intent Router falls
// back to for a plain query.
package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/omniboxhq/omnibox/catalog"
	"github.com/omniboxhq/omnibox/extractor"
	"github.com/omniboxhq/omnibox/fetch"
	"github.com/omniboxhq/omnibox/resolver"
	"github.com/omniboxhq/omnibox/retriever"
)

// Status mirrors extractor.Status but is re-declared here since a
// QueryResult's status can additionally be set by stages extractor never
// sees (no candidates at all, fetch failure).
type Status string

const (
	StatusSuccess            Status = "success"
	StatusNeedsClarification Status = "needs_clarification"
	StatusError              Status = "error"
)

// Options configures one call to Process.
type Options struct {
	UserScope        string
	TopK             int // default 3 when zero
	RouteHint        string
	FilterDatasource string // when set, restricts retrieval candidates to routes on this platform
}

// Result is everything the Simple Orchestrator hands back: the outcome
// status, the Query Plan that produced it (if any), per-parameter
// resolution status, and — on success — the fetched records plus the
// Route Definition and origin/cache metadata they came from.
type Result struct {
	Status           Status            `json:"status"`
	Message          string            `json:"message,omitempty"`
	Plan             extractor.Plan    `json:"plan,omitempty"`
	ResolutionStatus map[string]bool   `json:"resolution_status,omitempty"`
	Route            *catalog.Route    `json:"route,omitempty"`
	Fetch            *fetch.Result     `json:"fetch,omitempty"`
}

// Simple is the Simple Orchestrator.
type Simple struct {
	catalog    *catalog.Catalog
	retriever  *retriever.Retriever
	extractor  *extractor.Extractor
	resolver   *resolver.Resolver
	executor   *fetch.Executor
	logger     *zap.Logger
	tracer     oteltrace.Tracer
}

// New constructs a Simple Orchestrator from its four pipeline stages.
func New(cat *catalog.Catalog, ret *retriever.Retriever, ext *extractor.Extractor, res *resolver.Resolver, exec *fetch.Executor, logger *zap.Logger) *Simple {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Simple{
		catalog:   cat,
		retriever: ret,
		extractor: ext,
		resolver:  res,
		executor:  exec,
		logger:    logger.With(zap.String("component", "simple_orchestrator")),
		tracer:    otel.Tracer("omnibox/orchestrator"),
	}
}

// Process runs the full retrieve -> extract -> resolve -> fetch pipeline
// for one query.
func (s *Simple) Process(ctx context.Context, query string, opts Options) Result {
	ctx, span := s.tracer.Start(ctx, "orchestrator.process", oteltrace.WithAttributes(
		attribute.String("query", query),
	))
	defer span.End()

	k := opts.TopK
	if k <= 0 {
		k = 3
	}

	snap := s.catalog.Snapshot()
	candidates, err := s.retriever.Retrieve(ctx, query, k, snap)
	if err != nil {
		s.logger.Error("retrieval failed", zap.Error(err))
		return Result{Status: StatusError, Message: fmt.Sprintf("retrieval failed: %v", err)}
	}
	if len(candidates) == 0 {
		return Result{Status: StatusNeedsClarification, Message: "no matching route found for this query"}
	}

	routes := make([]catalog.Route, 0, len(candidates))
	for _, c := range candidates {
		if opts.FilterDatasource != "" && c.Route.Platform != opts.FilterDatasource {
			continue
		}
		routes = append(routes, c.Route)
	}
	if len(routes) == 0 {
		return Result{Status: StatusNeedsClarification, Message: "no matching route found for this query on the requested datasource"}
	}

	plan, err := s.extractor.Extract(ctx, query, routes)
	if err != nil {
		s.logger.Error("extraction failed", zap.Error(err))
		return Result{Status: StatusError, Message: fmt.Sprintf("extraction failed: %v", err)}
	}
	if plan.Status != extractor.StatusSuccess {
		return Result{Status: Status(plan.Status), Message: plan.Reasoning, Plan: plan}
	}

	route, ok := snap.ByID[plan.RouteID]
	if !ok {
		s.logger.Error("extractor selected a route absent from the current snapshot", zap.String("route_id", plan.RouteID))
		return Result{Status: StatusError, Message: "selected route no longer exists", Plan: plan}
	}

	effective, resolutionStatus, err := s.resolver.Resolve(ctx, opts.UserScope, route, plan.Parameters)
	if err != nil {
		s.logger.Error("resolution failed", zap.Error(err))
		return Result{Status: StatusError, Message: fmt.Sprintf("resolution failed: %v", err), Plan: plan}
	}

	var unresolved []string
	for _, p := range route.RequiredEntityParams() {
		if !resolutionStatus[p.Name] {
			unresolved = append(unresolved, p.Name)
		}
	}
	if len(unresolved) > 0 {
		return Result{
			Status:           StatusNeedsClarification,
			Message:          fmt.Sprintf("could not resolve: %v", unresolved),
			Plan:             plan,
			ResolutionStatus: resolutionStatus,
			Route:            &route,
		}
	}

	path, err := fillPath(route.PathTemplate, effective)
	if err != nil {
		// Every required identifier was marked resolved, yet the path
		// still has unfilled slots — this must never happen, so it
		// surfaces as an error rather than a silently-wrong success.
		s.logger.Error("generated path incomplete despite full resolution", zap.String("route_id", route.ID), zap.Error(err))
		return Result{Status: StatusError, Message: err.Error(), Plan: plan, ResolutionStatus: resolutionStatus, Route: &route}
	}

	fetchResult, err := s.executor.Fetch(ctx, route.ID, effective, path)
	if err != nil {
		s.logger.Error("fetch failed", zap.String("route_id", route.ID), zap.Error(err))
		return Result{Status: StatusError, Message: fmt.Sprintf("fetch failed: %v", err), Plan: plan, ResolutionStatus: resolutionStatus, Route: &route}
	}

	plan.GeneratedPath = path
	return Result{
		Status:           StatusSuccess,
		Plan:             plan,
		ResolutionStatus: resolutionStatus,
		Route:            &route,
		Fetch:            &fetchResult,
	}
}

// Refresh re-executes a prior Query Plan, bypassing retrieval and
// extraction entirely — only resolution and fetch run again, so a
// client holding a previously-successful plan can poll for fresh data
// without re-paying LLM extraction cost.
func (s *Simple) Refresh(ctx context.Context, plan extractor.Plan, opts Options) Result {
	ctx, span := s.tracer.Start(ctx, "orchestrator.refresh", oteltrace.WithAttributes(
		attribute.String("route_id", plan.RouteID),
	))
	defer span.End()

	snap := s.catalog.Snapshot()
	route, ok := snap.ByID[plan.RouteID]
	if !ok {
		return Result{Status: StatusError, Message: "refresh target route no longer exists", Plan: plan}
	}

	effective, resolutionStatus, err := s.resolver.Resolve(ctx, opts.UserScope, route, plan.Parameters)
	if err != nil {
		s.logger.Error("resolution failed during refresh", zap.Error(err))
		return Result{Status: StatusError, Message: fmt.Sprintf("resolution failed: %v", err), Plan: plan}
	}

	var unresolved []string
	for _, p := range route.RequiredEntityParams() {
		if !resolutionStatus[p.Name] {
			unresolved = append(unresolved, p.Name)
		}
	}
	if len(unresolved) > 0 {
		return Result{Status: StatusNeedsClarification, Message: fmt.Sprintf("could not resolve: %v", unresolved), Plan: plan, ResolutionStatus: resolutionStatus, Route: &route}
	}

	path, err := fillPath(route.PathTemplate, effective)
	if err != nil {
		s.logger.Error("generated path incomplete during refresh", zap.String("route_id", route.ID), zap.Error(err))
		return Result{Status: StatusError, Message: err.Error(), Plan: plan, ResolutionStatus: resolutionStatus, Route: &route}
	}

	fetchResult, err := s.executor.Fetch(ctx, route.ID, effective, path)
	if err != nil {
		s.logger.Error("fetch failed during refresh", zap.String("route_id", route.ID), zap.Error(err))
		return Result{Status: StatusError, Message: fmt.Sprintf("fetch failed: %v", err), Plan: plan, ResolutionStatus: resolutionStatus, Route: &route}
	}

	plan.GeneratedPath = path
	return Result{Status: StatusSuccess, Plan: plan, ResolutionStatus: resolutionStatus, Route: &route, Fetch: &fetchResult}
}

func fillPath(template string, params map[string]string) (string, error) {
	path := template
	for k, v := range params {
		path = strings.ReplaceAll(path, ":"+k, v)
	}
	if strings.Contains(path, ":") {
		return "", fmt.Errorf("path template %q left unfilled slots", template)
	}
	return path, nil
}
