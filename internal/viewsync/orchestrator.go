package viewsync

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/setwatch/setwatch/internal/model"
	"github.com/sirupsen/logrus"
)

// ErrClosed is returned by operations attempted after teardown.
var ErrClosed = errors.New("viewsync: controller torn down")

const (
	loadFailedMessage   = "Failed to load tracks"
	countsFailedMessage = "Failed to load collection stats"
)

// FetchRequest is an immutable page request tagged with its dispatch sequence number.
type FetchRequest struct {
	Seq   uint64
	Query model.PageQuery
}

// Orchestrator turns ViewQuery state into page requests and renders only the
// newest response. Overlapping requests are never cancelled; a response is
// simply discarded when a newer request was issued after it.
type Orchestrator struct {
	client  CollectionClient
	surface Surface
	log     *logrus.Entry
	timeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu           sync.Mutex
	query        *ViewQuery
	latest       uint64
	countsLatest uint64
	closed       bool
}

// NewOrchestrator creates an orchestrator that loads pages for query.
// A zero timeout disables the per-request deadline.
func NewOrchestrator(query *ViewQuery, client CollectionClient, surface Surface, timeout time.Duration, log *logrus.Entry) *Orchestrator {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		client:  client,
		surface: surface,
		log:     log.WithField("component", "orchestrator"),
		timeout: timeout,
		ctx:     ctx,
		cancel:  cancel,
		query:   query,
	}
}

// Apply runs a ViewQuery transition and issues a load when the transition
// reports the view dirty. It returns whether a load was issued.
func (o *Orchestrator) Apply(transition func(q *ViewQuery) (bool, error)) (bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return false, ErrClosed
	}
	dirty, err := transition(o.query)
	if err != nil || !dirty {
		return false, err
	}
	o.loadLocked()
	return true, nil
}

// Load issues a request for the current query state.
func (o *Orchestrator) Load() (FetchRequest, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return FetchRequest{}, false
	}
	return o.loadLocked(), true
}

func (o *Orchestrator) loadLocked() FetchRequest {
	o.latest++
	req := FetchRequest{Seq: o.latest, Query: o.query.Snapshot()}
	o.surface.RenderLoading(true)

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		ctx, cancel := o.requestCtx()
		result, err := o.client.FetchPage(ctx, req.Query)
		cancel()
		o.completeLoad(req, result, err)
	}()
	return req
}

func (o *Orchestrator) requestCtx() (context.Context, context.CancelFunc) {
	if o.timeout > 0 {
		return context.WithTimeout(o.ctx, o.timeout)
	}
	return context.WithCancel(o.ctx)
}

func (o *Orchestrator) completeLoad(req FetchRequest, result model.PagedResult, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed || req.Seq != o.latest {
		o.log.WithFields(logrus.Fields{"seq": req.Seq, "latest": o.latest}).Debug("discarding stale page response")
		return
	}

	if err != nil {
		o.log.WithFields(logrus.Fields{
			"seq":        req.Seq,
			"collection": req.Query.Collection,
			"page":       req.Query.Page,
			"kind":       model.FailureKindOf(err),
		}).WithError(err).Warn("page load failed")
		o.surface.RenderErrorState(model.FailureMessage(err, loadFailedMessage))
		o.surface.RenderLoading(false)
		return
	}

	o.query.ApplyResult(result)
	if len(result.Tracks) == 0 {
		o.surface.RenderEmptyState()
	} else {
		o.surface.RenderRecords(trackViews(result.Tracks))
	}
	o.surface.RenderPagination(o.query.Page(), o.query.TotalPages())
	if req.Query.Search != "" {
		total := result.Total
		o.surface.RenderSearchFeedback(req.Query.Search, &total)
	} else {
		o.surface.RenderSearchFeedback("", nil)
	}
	o.surface.RenderLoading(false)
}

// RefreshCounts fetches aggregate collection counts. Only the newest
// response is rendered; failures are logged and leave the last counts shown.
func (o *Orchestrator) RefreshCounts() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return
	}
	o.countsLatest++
	seq := o.countsLatest

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		ctx, cancel := o.requestCtx()
		stats, err := o.client.FetchAggregateCounts(ctx)
		cancel()
		o.completeCounts(seq, stats, err)
	}()
}

func (o *Orchestrator) completeCounts(seq uint64, stats model.CollectionStats, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed || seq != o.countsLatest {
		return
	}
	if err != nil {
		o.log.WithError(err).Warn(countsFailedMessage)
		return
	}
	o.surface.RenderAggregateCounts(stats)
}

// Query returns a snapshot of the current query state.
func (o *Orchestrator) Query() model.PageQuery {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.query.Snapshot()
}

// TotalPages returns the page count from the last applied result.
func (o *Orchestrator) TotalPages() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.query.TotalPages()
}

// Close discards every pending and future response and waits for in-flight
// requests to return.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()

	o.cancel()
	o.wg.Wait()
}
