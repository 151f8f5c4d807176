package cmd

import (
	"log/slog"

	"benchd.sh/internal/config"
	"benchd.sh/internal/health"
	"benchd.sh/internal/probe"
	"benchd.sh/internal/sampler"
	"benchd.sh/internal/snapshot"
)

// pipeline is the metrics collection stack shared by serve and snapshot
type pipeline struct {
	runner    *probe.CommandRunner
	sampler   *sampler.Sampler
	assembler *snapshot.Assembler
	assessor  *health.Assessor
}

func newPipeline(cfg *config.Config, logger *slog.Logger) *pipeline {
	runner := probe.NewCommandRunner(cfg.HealthCheckTimeout, logger)
	cpuSampler := sampler.New(nil)

	prober := probe.New(
		probe.DefaultSources(runner),
		cpuSampler,
		probe.WithDiskPath(cfg.Disk.Path),
		probe.WithLogger(logger),
	)

	return &pipeline{
		runner:    runner,
		sampler:   cpuSampler,
		assembler: snapshot.NewAssembler(prober, cpuSampler, logger),
		assessor:  health.NewAssessor(cfg.Health),
	}
}
