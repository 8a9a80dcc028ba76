package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/archivist-descry/descry"
	"github.com/archivist-descry/descry/internal/config"
	"github.com/archivist-descry/descry/internal/metrics"
	"github.com/archivist-descry/descry/pkg/backend/virtual"
	"github.com/archivist-descry/descry/pkg/feishu"
	"github.com/archivist-descry/descry/pkg/storage"
)

const shutdownTimeout = 30 * time.Second

// app bundles a Service with the sinks wired around it for one command run.
type app struct {
	svc      *descry.Service
	store    *storage.Store
	registry *prometheus.Registry
}

func newApp() (*app, error) {
	backend, err := virtual.NewFromFile(firstNonEmpty(rootProfile, config.String(config.EnvBackendProfile, "")))
	if err != nil {
		return nil, err
	}

	a := &app{registry: prometheus.NewRegistry()}
	cfg := descry.ConfigFromEnv()

	var recorders descry.MultiRecorder
	if path := firstNonEmpty(rootDBPath, config.String(config.EnvDBPath, "")); path != "" {
		store, err := storage.Open(path)
		if err != nil {
			return nil, err
		}
		a.store = store
		recorders = append(recorders, store)
		log.Debug().Str("path", store.Path()).Msg("audit store opened")
	}
	bitable, err := feishu.NewRecorderFromEnv()
	if err != nil {
		a.closeStore()
		return nil, err
	}
	if bitable != nil {
		recorders = append(recorders, bitable)
	}
	if len(recorders) > 0 {
		cfg.Recorder = recorders
	}

	collectors, err := metrics.New(a.registry)
	if err != nil {
		a.closeStore()
		return nil, err
	}
	cfg.Metrics = collectors

	svc, err := descry.New(backend, cfg)
	if err != nil {
		a.closeStore()
		return nil, err
	}
	a.svc = svc
	return a, nil
}

// open resolves a device by id or backend name and opens it.
func (a *app) open(ctx context.Context, ref string) (descry.DeviceInfo, error) {
	info, err := a.svc.Resolve(ctx, ref)
	if err != nil {
		return descry.DeviceInfo{}, err
	}
	return a.svc.OpenDevice(ctx, info.ID)
}

func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.svc.Close(ctx); err != nil {
		log.Warn().Err(err).Msg("close service")
	}
	a.closeStore()
}

func (a *app) closeStore() {
	if a.store == nil {
		return
	}
	if err := a.store.Close(); err != nil {
		log.Warn().Err(err).Msg("close audit store")
	}
	a.store = nil
}

// dumpMetrics writes the collected samples as name{labels} value lines.
func (a *app) dumpMetrics(w io.Writer) error {
	families, err := a.registry.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			labels := make([]string, 0, len(m.GetLabel()))
			for _, lp := range m.GetLabel() {
				labels = append(labels, fmt.Sprintf("%s=%q", lp.GetName(), lp.GetValue()))
			}
			sort.Strings(labels)
			name := mf.GetName()
			if len(labels) > 0 {
				name += "{" + strings.Join(labels, ",") + "}"
			}
			switch {
			case m.GetCounter() != nil:
				fmt.Fprintf(w, "%s %g\n", name, m.GetCounter().GetValue())
			case m.GetGauge() != nil:
				fmt.Fprintf(w, "%s %g\n", name, m.GetGauge().GetValue())
			case m.GetHistogram() != nil:
				h := m.GetHistogram()
				fmt.Fprintf(w, "%s_count %d\n%s_sum %g\n", name, h.GetSampleCount(), name, h.GetSampleSum())
			}
		}
	}
	return nil
}
