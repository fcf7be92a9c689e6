package storage

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/uhyunpark/marketsim/pkg/app/core/ids"
)

// Key schema for the run archive:
//
//	run:<uuid>              → Run
//	mkt:<uuid>:<market id>  → telemetry.MarketSeries
//	agt:<uuid>:<agent id>   → telemetry.AgentSeries
//
// Ids are zero-padded (20 digits) so prefix scans return them in order.
const (
	prefixRun    = "run:"
	prefixMarket = "mkt:"
	prefixAgent  = "agt:"
)

func runKey(id uuid.UUID) []byte {
	return []byte(prefixRun + id.String())
}

func marketKey(run uuid.UUID, id ids.MarketID) []byte {
	return []byte(fmt.Sprintf("%s%s:%020d", prefixMarket, run, int(id)))
}

func marketPrefix(run uuid.UUID) []byte {
	return []byte(fmt.Sprintf("%s%s:", prefixMarket, run))
}

func agentKey(run uuid.UUID, id ids.AgentID) []byte {
	return []byte(fmt.Sprintf("%s%s:%020d", prefixAgent, run, uint64(id)))
}

func agentPrefix(run uuid.UUID) []byte {
	return []byte(fmt.Sprintf("%s%s:", prefixAgent, run))
}

// keyUpperBound returns the exclusive upper bound for a prefix scan
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}
