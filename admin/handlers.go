package admin

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sharedcode/nlock"
	"github.com/sharedcode/nlock/lockfuture"
)

// Coordinator is the Coordinator instance the handlers in this package
// introspect and act on. Set it once during process startup.
var Coordinator *lockfuture.Coordinator

// Registry is the MVCC future registry backing the list/inspect handlers.
// Set it once during process startup (normally Coordinator.Registry).
var Registry *lockfuture.Registry

// AttemptSummary is the list-view projection of one in-flight LockAttempt.
type AttemptSummary struct {
	FutureID        string   `json:"future_id"`
	LockVersion     string   `json:"lock_version"`
	ThreadID        uint64   `json:"thread_id"`
	Keys            []string `json:"keys"`
	TopologyVersion int64    `json:"topology_version"`
	TimeoutMs       int64    `json:"timeout_ms"`
}

// MiniFutureSummary is the per-peer view of one mini-future.
type MiniFutureSummary struct {
	MiniID   string   `json:"mini_id"`
	Node     string   `json:"node"`
	Keys     []string `json:"keys"`
	Received bool     `json:"received"`
}

// AttemptDetail is the full inspect-one-attempt view.
type AttemptDetail struct {
	AttemptSummary
	Done         bool                `json:"done"`
	TimedOut     bool                `json:"timed_out"`
	Cancelled    bool                `json:"cancelled"`
	Err          string              `json:"error,omitempty"`
	MiniFutures  []MiniFutureSummary `json:"mini_futures"`
	EnlistedKeys []string            `json:"enlisted_keys"`
}

func summarize(a *lockfuture.LockAttempt) AttemptSummary {
	return AttemptSummary{
		FutureID:        a.FutureID.String(),
		LockVersion:     a.LockVersion.String(),
		ThreadID:        a.ThreadID,
		Keys:            a.Keys,
		TopologyVersion: a.TopologyVersion(),
		TimeoutMs:       a.TimeoutMs,
	}
}

// ListAttempts godoc
// @Summary List in-flight lock attempts
// @Schemes
// @Description Returns every lock attempt the registry is currently tracking.
// @Tags Attempts
// @Produce json
// @Success 200 {object} []AttemptSummary
// @Router /attempts [get]
// @Security Bearer
func ListAttempts(c *gin.Context) {
	if Registry == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"message": "registry not configured"})
		return
	}
	attempts := Registry.InFlight()
	out := make([]AttemptSummary, 0, len(attempts))
	for _, a := range attempts {
		out = append(out, summarize(a))
	}
	c.JSON(http.StatusOK, out)
}

// GetAttempt godoc
// @Summary Inspect one lock attempt
// @Schemes
// @Description Returns an in-flight attempt's mini-future states and enlisted keys.
// @Tags Attempts
// @Produce json
// @Param			futureId	path		string		true	"Future ID"
// @Failure 404 {object} map[string]any
// @Success 200 {object} AttemptDetail
// @Router /attempts/{futureId} [get]
// @Security Bearer
func GetAttempt(c *gin.Context) {
	a, ok := lookupAttempt(c)
	if !ok {
		return
	}

	minis := a.MiniFutures()
	miniSummaries := make([]MiniFutureSummary, 0, len(minis))
	for _, mf := range minis {
		miniSummaries = append(miniSummaries, MiniFutureSummary{
			MiniID:   mf.MiniID.String(),
			Node:     string(mf.Node),
			Keys:     mf.Keys,
			Received: mf.Received(),
		})
	}

	enlisted := make([]string, 0)
	for _, ee := range a.Entries() {
		enlisted = append(enlisted, ee.Key)
	}

	errMsg := ""
	if err := a.Err(); err != nil {
		errMsg = err.Error()
	}

	c.JSON(http.StatusOK, AttemptDetail{
		AttemptSummary: summarize(a),
		Done:           a.IsDone(),
		TimedOut:       a.TimedOut(),
		Cancelled:      a.Cancelled(),
		Err:            errMsg,
		MiniFutures:    miniSummaries,
		EnlistedKeys:   enlisted,
	})
}

// ForceExpireAttempt godoc
// @Summary Force-expire a stuck lock attempt
// @Schemes
// @Description Drives an in-flight attempt to TimedOut as if its timeout binding had fired, releasing any locks it held.
// @Tags Attempts
// @Produce json
// @Param			futureId	path		string		true	"Future ID"
// @Failure 404 {object} map[string]any
// @Success 200 {object} map[string]any
// @Router /attempts/{futureId}/expire [post]
// @Security Bearer
func ForceExpireAttempt(c *gin.Context) {
	a, ok := lookupAttempt(c)
	if !ok {
		return
	}
	if Coordinator == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"message": "coordinator not configured"})
		return
	}
	won := Coordinator.ForceExpire(a)
	c.JSON(http.StatusOK, gin.H{"future_id": a.FutureID.String(), "expired": won})
}

func lookupAttempt(c *gin.Context) (*lockfuture.LockAttempt, bool) {
	if Registry == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"message": "registry not configured"})
		return nil, false
	}
	id, err := nlock.ParseUUID(c.Param("futureId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid future id"})
		return nil, false
	}
	a, ok := Registry.Lookup(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"message": "no in-flight attempt with that future id"})
		return nil, false
	}
	return a, true
}
