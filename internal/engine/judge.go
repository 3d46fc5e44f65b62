package engine

import "github.com/rescue-agent/backend/pkg/config"

// Route is the next step chosen by the retrieval judge.
type Route string

const (
	RouteRetrieve  Route = "retrieve"
	RouteWebSearch Route = "web_search"
	RouteMerge     Route = "merge"
)

// JudgeRetrieval is the routing function of the single-pass pipeline variant:
// re-evaluated after each KB attempt to pick retry vs. web escalation vs.
// merge. Pure and side-effect-free. The collector's self-contained recall loop
// is the canonical retry control in this binary; the judge expresses the same
// semantics as an external graph edge and is kept for pipelines driven that
// way.
func JudgeRetrieval(kbDocs []EvidenceItem, retryCount int, webEnabled bool, cfg config.EngineConfig) Route {
	canRetry := retryCount < cfg.MaxRetry

	if len(kbDocs) < cfg.MinDocsRequired {
		if canRetry {
			return RouteRetrieve
		}
		if webEnabled {
			return RouteWebSearch
		}
		return RouteMerge
	}

	// Document count is fine but the best hit may still be weak.
	if top := kbDocs[0].Confidence; top != nil && *top < cfg.MinRerankScore && canRetry {
		return RouteRetrieve
	}

	if webEnabled {
		return RouteWebSearch
	}
	return RouteMerge
}
