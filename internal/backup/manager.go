// Package backup takes periodic file snapshots of the setwatch database and
// keeps the newest few on local disk.
package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"k8s.io/utils/clock"
)

const (
	defaultInterval = 6 * time.Hour
	defaultKeepLast = 24

	filePrefix = "setwatch-"
	fileSuffix = ".duckdb"
)

// Manager runs periodic local snapshots.
type Manager struct {
	store Snapshotter
	cfg   Config
	clock clock.WithTicker
	log   *logrus.Entry

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

// New validates cfg and builds a Manager without starting it. It returns
// nil when backups are disabled.
func New(store Snapshotter, cfg Config) (*Manager, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if store == nil {
		return nil, fmt.Errorf("backup: nil snapshotter")
	}
	if strings.TrimSpace(store.DBPath()) == "" {
		return nil, fmt.Errorf("backup: db-path is empty (in-memory store)")
	}
	if strings.TrimSpace(cfg.LocalDir) == "" {
		return nil, fmt.Errorf("backup: backup-dir is required when backup is enabled")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.KeepLast <= 0 {
		cfg.KeepLast = defaultKeepLast
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.RealClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.NewEntry(logrus.StandardLogger())
	}
	if err := os.MkdirAll(cfg.LocalDir, 0o755); err != nil {
		return nil, fmt.Errorf("backup: create backup-dir: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		store:  store,
		cfg:    cfg,
		clock:  cfg.Clock,
		log:    cfg.Logger.WithField("component", "backup"),
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// Start begins the periodic loop. The first snapshot is taken right away so
// the recovery point after a restart stays small.
func (m *Manager) Start() {
	ticker := m.clock.NewTicker(m.cfg.Interval)
	m.wg.Add(1)
	go m.loop(ticker)
}

func (m *Manager) loop(ticker clock.Ticker) {
	defer m.wg.Done()
	defer ticker.Stop()

	if _, err := m.RunOnce(m.ctx); err != nil {
		m.log.WithError(err).Warn("startup snapshot failed")
	}
	for {
		select {
		case <-ticker.C():
			if _, err := m.RunOnce(m.ctx); err != nil {
				m.log.WithError(err).Warn("periodic snapshot failed")
			}
		case <-m.ctx.Done():
			return
		}
	}
}

// RunOnce creates one local snapshot and prunes old local copies.
// It returns the path of the snapshot it wrote.
func (m *Manager) RunOnce(ctx context.Context) (string, error) {
	fileName := filePrefix + m.clock.Now().UTC().Format("20060102-150405") + fileSuffix
	localPath := filepath.Join(m.cfg.LocalDir, fileName)

	if err := m.store.SnapshotTo(ctx, localPath); err != nil {
		return "", fmt.Errorf("snapshot: %w", err)
	}
	m.log.WithField("path", localPath).Info("created snapshot")

	if err := pruneLocalBackups(m.cfg.LocalDir, m.cfg.KeepLast); err != nil {
		return "", fmt.Errorf("prune local backups: %w", err)
	}
	return localPath, nil
}

// Stop terminates the periodic loop and cancels an in-flight snapshot.
func (m *Manager) Stop() {
	m.once.Do(func() {
		m.cancel()
		m.wg.Wait()
	})
}

func pruneLocalBackups(localDir string, keepLast int) error {
	if keepLast <= 0 {
		return nil
	}

	matches, err := filepath.Glob(filepath.Join(localDir, filePrefix+"*"+fileSuffix))
	if err != nil {
		return err
	}
	if len(matches) <= keepLast {
		return nil
	}

	// The timestamp is embedded in the name, so lexical order is chronological.
	sort.Sort(sort.Reverse(sort.StringSlice(matches)))

	for _, oldPath := range matches[keepLast:] {
		if err := os.Remove(oldPath); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}
