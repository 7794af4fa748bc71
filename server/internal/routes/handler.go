// package routes contains the exposed API endpoints
package routes

import (
	"database/sql"

	"github.com/gregriff/vocall/server/internal/hub"
	"github.com/gregriff/vocall/server/internal/metrics"
	"github.com/gregriff/vocall/server/internal/schemas"
	logging "github.com/ipfs/go-log/v2"
	"golang.org/x/time/rate"
)

var log = logging.Logger("routes")

// RouteHandler provides the dependencies for any endpoint, and is the reciever of the endpoint handling functions
type RouteHandler struct {
	db      *sql.DB
	calls   *schemas.CallMap
	hub     *hub.Hub
	metrics *metrics.Metrics

	// per-connection limit on relayed signals
	signalRate  rate.Limit
	signalBurst int
}

// NewRouteHandler creates the reciever for all endpoint handling functions.
// Each signaling connection may relay signalRate signals per second, in bursts of signalBurst.
// A signalRate of 0 disables the limit.
func NewRouteHandler(db *sql.DB, m *metrics.Metrics, signalRate float64, signalBurst int) *RouteHandler {
	limit := rate.Limit(signalRate)
	if signalRate <= 0 {
		limit = rate.Inf
	}
	return &RouteHandler{
		db:          db,
		calls:       schemas.NewCallMap(),
		hub:         hub.New(),
		metrics:     m,
		signalRate:  limit,
		signalBurst: signalBurst,
	}
}
