package debugsvc

import (
	"encoding/json"
	"net/http"

	"github.com/AdguardTeam/golibs/httphdr"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/advblocker/advfilter/internal/advhttp"
	"github.com/advblocker/advfilter/internal/rulestat"
)

// RuleStatProvider returns the statistics of the rule hits collected since the
// last upload.
type RuleStatProvider interface {
	Stats() (stats []*rulestat.RuleStat)
}

// type check
var _ RuleStatProvider = (*rulestat.Collector)(nil)

// ruleStatHandler serves the rule statistics.
type ruleStatHandler struct {
	provider RuleStatProvider
}

// ruleStatResponse describes the response to the GET /debug/api/rulestat HTTP
// API.
type ruleStatResponse struct {
	Stats []*rulestat.RuleStat `json:"stats"`
}

// type check
var _ http.Handler = (*ruleStatHandler)(nil)

// ServeHTTP implements the [http.Handler] interface for *ruleStatHandler.
func (h *ruleStatHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	resp := &ruleStatResponse{
		Stats: h.provider.Stats(),
	}

	if resp.Stats == nil {
		resp.Stats = []*rulestat.RuleStat{}
	}

	w.Header().Set(httphdr.ContentType, advhttp.HdrValApplicationJSON)
	err := json.NewEncoder(w).Encode(resp)
	if err != nil {
		l := slogutil.MustLoggerFromContext(ctx)
		l.ErrorContext(ctx, "writing response", slogutil.KeyError, err)
	}
}
