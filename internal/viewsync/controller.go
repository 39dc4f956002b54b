package viewsync

import (
	"fmt"
	"sync"
	"time"

	"github.com/setwatch/setwatch/internal/model"
	"github.com/sirupsen/logrus"
	"k8s.io/utils/clock"
)

// PageDirection selects the page step requested by the user.
type PageDirection int

const (
	PageNext PageDirection = iota
	PagePrev
)

// Config wires a Controller.
type Config struct {
	Collections       []model.Collection
	InitialCollection model.Collection
	PerPage           int
	RequestTimeout    time.Duration

	AmbientPolling      bool
	AmbientInterval     time.Duration
	PostTriggerPolling  bool
	PostTriggerInterval time.Duration
	FollowScheduledRuns bool

	Clock  clock.WithTicker
	Logger *logrus.Entry
}

// DefaultConfig returns a Config with both polling loops enabled.
func DefaultConfig() Config {
	return Config{
		Collections:         model.KnownCollections,
		PerPage:             model.DefaultPerPage,
		RequestTimeout:      model.DefaultRequestTimeout,
		AmbientPolling:      true,
		AmbientInterval:     model.DefaultAmbientInterval,
		PostTriggerPolling:  true,
		PostTriggerInterval: model.DefaultPostTriggerInterval,
		FollowScheduledRuns: true,
	}
}

// Controller is the composition root of a view session. It owns the query
// state, the orchestrator and the job monitor, and tears them down together.
type Controller struct {
	orchestrator *Orchestrator
	monitor      *JobMonitor
	log          *logrus.Entry

	mountOnce    sync.Once
	teardownOnce sync.Once
}

// NewController validates cfg and builds a stopped controller. Call Mount to
// issue the first load and start polling.
func NewController(cfg Config, collections CollectionClient, jobs JobClient, surface Surface) (*Controller, error) {
	if collections == nil || jobs == nil || surface == nil {
		return nil, fmt.Errorf("viewsync: collection client, job client and surface are required")
	}
	query, err := NewViewQuery(cfg.Collections, cfg.InitialCollection, cfg.PerPage)
	if err != nil {
		return nil, err
	}
	log := cfg.Logger
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	orch := NewOrchestrator(query, collections, surface, cfg.RequestTimeout, log)
	monitor := NewJobMonitor(jobs, surface, JobMonitorConfig{
		AmbientEnabled:      cfg.AmbientPolling,
		AmbientInterval:     cfg.AmbientInterval,
		PostTriggerEnabled:  cfg.PostTriggerPolling,
		PostTriggerInterval: cfg.PostTriggerInterval,
		FollowScheduledRuns: cfg.FollowScheduledRuns,
		RequestTimeout:      cfg.RequestTimeout,
		Clock:               cfg.Clock,
		Logger:              log,
	}, func() {
		orch.RefreshCounts()
		orch.Load()
	})

	return &Controller{
		orchestrator: orch,
		monitor:      monitor,
		log:          log.WithField("component", "controller"),
	}, nil
}

// Mount issues the initial load, fetches aggregate counts and starts ambient
// polling. Subsequent calls do nothing.
func (c *Controller) Mount() {
	c.mountOnce.Do(func() {
		q := c.orchestrator.Query()
		c.log.WithFields(logrus.Fields{"collection": q.Collection, "per_page": q.PerPage}).Info("mounting view")
		c.orchestrator.Load()
		c.orchestrator.RefreshCounts()
		c.monitor.Start()
	})
}

// OnCollectionSelected switches to the named collection.
func (c *Controller) OnCollectionSelected(id string) error {
	_, err := c.orchestrator.Apply(func(q *ViewQuery) (bool, error) {
		return q.SwitchCollection(model.Collection(id))
	})
	return err
}

// OnPageRequested steps one page in dir. It reports whether a load was issued.
func (c *Controller) OnPageRequested(dir PageDirection) bool {
	loaded, _ := c.orchestrator.Apply(func(q *ViewQuery) (bool, error) {
		if dir == PagePrev {
			return q.PrevPage(), nil
		}
		return q.NextPage(), nil
	})
	return loaded
}

// OnSearchSubmitted applies a search; blank text clears it.
func (c *Controller) OnSearchSubmitted(text string) {
	_, _ = c.orchestrator.Apply(func(q *ViewQuery) (bool, error) {
		return q.SetSearch(text), nil
	})
}

// OnSearchCleared drops the active search.
func (c *Controller) OnSearchCleared() {
	_, _ = c.orchestrator.Apply(func(q *ViewQuery) (bool, error) {
		return q.ClearSearch(), nil
	})
}

// OnRefreshRequested reloads the current page and the aggregate counts.
func (c *Controller) OnRefreshRequested() {
	c.orchestrator.RefreshCounts()
	c.orchestrator.Load()
}

// OnTriggerRequested starts a manual update run. It returns false when the
// request was coalesced into one already in flight.
func (c *Controller) OnTriggerRequested() bool {
	return c.monitor.Trigger()
}

// Query returns the current query state.
func (c *Controller) Query() model.PageQuery {
	return c.orchestrator.Query()
}

// TotalPages returns the page count from the last successful load.
func (c *Controller) TotalPages() int {
	return c.orchestrator.TotalPages()
}

// Teardown stops polling and discards every pending response. After it
// returns the surface receives no further calls.
func (c *Controller) Teardown() {
	c.teardownOnce.Do(func() {
		c.monitor.Close()
		c.orchestrator.Close()
		c.log.Info("view torn down")
	})
}
