package migrate

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/BartekS5/LDM/internal/config"
	"github.com/BartekS5/LDM/internal/source"
	"github.com/BartekS5/LDM/internal/store"
)

// Engine sequences registered migrators ascending by priority, running
// each to completion before the next starts. Priority is hand-ordered to
// match the dependency graph; the engine does not topologically sort.
type Engine struct {
	cfg       *config.Config
	st        store.Store
	log       *logrus.Logger
	state     *RunState
	migrators []*Migrator
}

func NewEngine(cfg *config.Config, st store.Store, log *logrus.Logger) *Engine {
	return &Engine{
		cfg:   cfg,
		st:    st,
		log:   log,
		state: NewRunState(),
	}
}

// State exposes the run-scoped registry, mainly for tests.
func (e *Engine) State() *RunState { return e.state }

// Register adds a migrator for desc.
func (e *Engine) Register(desc Descriptor, hooks Hooks) *Migrator {
	m := &Migrator{
		Desc:  desc,
		Hooks: hooks,
		cfg:   e.cfg,
		st:    e.st,
		log:   e.log.WithField("model", desc.Model),
		state: e.state,
	}
	e.migrators = append(e.migrators, m)
	return m
}

// Run executes all registered migrators. A failure while loading or
// preparing a model aborts the run; statistics for models already
// completed are still returned alongside the error.
func (e *Engine) Run(ctx context.Context) (*RunReport, error) {
	descs := make([]Descriptor, len(e.migrators))
	for i, m := range e.migrators {
		descs[i] = m.Desc
	}
	if err := ValidateDescriptors(descs); err != nil {
		return &RunReport{}, err
	}

	report := &RunReport{}
	for _, m := range byPriority(e.migrators) {
		if !e.cfg.WantsModel(m.Desc.Model) {
			continue
		}

		stats, err := e.runModel(ctx, m)
		if stats != nil {
			report.Models = append(report.Models, *stats)
		}
		if err != nil {
			return report, fmt.Errorf("migrating %s: %w", m.Desc.Model, err)
		}
	}

	processed, skipped := report.Totals()
	e.log.WithFields(logrus.Fields{
		"processed": processed,
		"skipped":   skipped,
		"models":    len(report.Models),
	}).Info("migration run complete")
	return report, nil
}

func (e *Engine) runModel(ctx context.Context, m *Migrator) (*ModelStats, error) {
	start := time.Now()
	m.log.Info("starting migrator")

	recs, summary, err := e.loadModelData(ctx, m)
	if err != nil {
		return nil, err
	}

	if m.Hooks.BeforeMigration != nil {
		recs, err = m.Hooks.BeforeMigration(ctx, m, recs)
		if err != nil {
			return nil, err
		}
	}

	result, err := m.runBatches(ctx, recs)
	stats := &ModelStats{
		Model:       m.Desc.Model,
		Duration:    time.Since(start),
		Source:      summary,
		BatchResult: result,
	}
	if err != nil {
		return stats, err
	}

	if m.Hooks.AfterMigration != nil {
		m.Hooks.AfterMigration(m, stats)
	}

	entry := m.log.WithFields(stats.Fields())
	if summary != nil {
		entry = entry.WithFields(summary.Fields())
	}
	entry.Info("migrator finished")
	return stats, nil
}

// loadModelData assembles the model's dataset: the hook loader or the
// default file loader, plus anything a parent migrator staged for it.
func (e *Engine) loadModelData(ctx context.Context, m *Migrator) ([]Record, *source.Summary, error) {
	var (
		recs    []Record
		summary *source.Summary
		err     error
	)

	switch {
	case m.Hooks.LoadData != nil:
		recs, summary, err = m.Hooks.LoadData(ctx, m)
		if err != nil {
			return nil, nil, err
		}
	case m.Desc.Filename != "":
		filename := e.cfg.Filename(m.Desc.Model, m.Desc.Filename)
		if e.cfg.DataDirectory == "" {
			return nil, nil, errors.New("DATA_DIRECTORY is not configured")
		}
		opts := source.Options{WrapKey: "_source"}
		if e.cfg.Incremental() {
			cutoff, err := e.cfg.SinceDate()
			if err != nil {
				return nil, nil, err
			}
			opts.Filter = e.sinceFilter(m, cutoff)
		}
		recs, summary, err = source.LoadFile(filepath.Join(e.cfg.DataDirectory, filename), opts)
		if err != nil {
			return nil, nil, err
		}
	}

	staged := e.state.TakeStaged(m.Desc.Model)
	if len(staged) > 0 {
		m.log.WithField("staged", len(staged)).Info("consuming staged records")
		recs = append(recs, staged...)
	}
	return recs, summary, nil
}

func (e *Engine) sinceFilter(m *Migrator, cutoff time.Time) *source.SinceFilter {
	return &source.SinceFilter{
		Cutoff:        cutoff,
		MissingPolicy: e.cfg.MissingDatePolicy(),
		InvalidPolicy: e.cfg.InvalidDatePolicy(),
		Log:           m.log,
	}
}
