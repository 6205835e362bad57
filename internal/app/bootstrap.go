package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	dsec2 "github.com/olivierlemasle/cloud-init/internal/adapters/datasource/ec2"
	"github.com/olivierlemasle/cloud-init/internal/adapters/datasource/inmem"
	"github.com/olivierlemasle/cloud-init/internal/adapters/datasource/nocloud"
	"github.com/olivierlemasle/cloud-init/internal/adapters/manifest/hclmanifest"
	"github.com/olivierlemasle/cloud-init/internal/adapters/state/filestore"
	"github.com/olivierlemasle/cloud-init/internal/adapters/transport/httpfetch"
	"github.com/olivierlemasle/cloud-init/internal/config"
	"github.com/olivierlemasle/cloud-init/internal/core/ports"
	"github.com/olivierlemasle/cloud-init/internal/core/service"
	"github.com/olivierlemasle/cloud-init/internal/errors"
	"github.com/olivierlemasle/cloud-init/internal/log"
	"github.com/olivierlemasle/cloud-init/internal/modules/hostname"
	"github.com/olivierlemasle/cloud-init/internal/modules/mounts"
	"github.com/olivierlemasle/cloud-init/internal/modules/puppet"
	"github.com/olivierlemasle/cloud-init/internal/modules/writefiles"
	"github.com/olivierlemasle/cloud-init/internal/reporting/jsonfile"
	"github.com/olivierlemasle/cloud-init/internal/reporting/text"
)

func BuildApplicationFromViper(ctx context.Context, v *viper.Viper) (*Application, error) {
	cfg := config.DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(err, errors.CodeConfigParseError, "failed to unmarshal configuration")
	}

	logCfg := log.Config{Level: cfg.Settings.LogLevel, Format: cfg.Settings.LogFormat}
	logger, err := log.NewLogger(logCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to initialize logger: %v\n", err)
		return nil, errors.Wrap(err, errors.CodeInternal, "logger initialization failed")
	}
	logger.Infof(ctx, "Logger initialized (Level: %s, Format: %s)", cfg.Settings.LogLevel, cfg.Settings.LogFormat)
	if v.ConfigFileUsed() != "" {
		logger.Debugf(ctx, "Using configuration file: %s", v.ConfigFileUsed())
	}

	if cfg.ManifestDir != "" {
		manifestSpecs, err := hclmanifest.Load(cfg.ManifestDir)
		if err != nil {
			return nil, err
		}
		if len(manifestSpecs) > 0 {
			logger.Infof(ctx, "loaded %d module declarations from %s", len(manifestSpecs), cfg.ManifestDir)
			cfg.Modules, err = hclmanifest.Merge(cfg.Modules, manifestSpecs)
			if err != nil {
				return nil, err
			}
		}
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.StructCtx(ctx, cfg); err != nil {
		var details strings.Builder
		details.WriteString("Configuration validation failed:")
		validationErrors := err.(validator.ValidationErrors)
		for _, fe := range validationErrors {
			details.WriteString(fmt.Sprintf("\n - Field '%s': Failed on '%s' validation (value: '%v')", fe.Namespace(), fe.Tag(), fe.Value()))
		}
		wrappedErr := errors.NewUserFacing(errors.CodeConfigValidation, details.String(), "Please check your configuration file or flags.")
		logger.Errorf(ctx, wrappedErr, "Configuration validation failed")
		return nil, wrappedErr
	}

	registry := service.NewComponentRegistry()
	transport := httpfetch.New()

	for _, dsType := range cfg.Datasources.List {
		var datasource ports.Datasource
		switch dsType {
		case inmem.DatasourceTypeInMem:
			var raw map[string]any
			if cfg.Datasources.InMem != nil {
				raw = cfg.Datasources.InMem.Metadata
			}
			datasource, err = inmem.New(raw)
		case nocloud.DatasourceTypeNoCloud:
			if cfg.Datasources.NoCloud == nil {
				return nil, errors.New(errors.CodeConfigValidation, "datasource 'nocloud' listed but not configured")
			}
			datasource, err = nocloud.New(nocloud.Config{
				SeedDir: cfg.Datasources.NoCloud.SeedDir,
				SeedISO: cfg.Datasources.NoCloud.SeedISO,
			}, transport, logger.WithFields(map[string]any{"datasource": nocloud.DatasourceTypeNoCloud}))
		case dsec2.DatasourceTypeEC2:
			if cfg.Datasources.EC2 == nil {
				return nil, errors.New(errors.CodeConfigValidation, "datasource 'ec2' listed but not configured")
			}
			datasource, err = dsec2.New(ctx, dsec2.Config{
				Endpoint:       cfg.Datasources.EC2.Endpoint,
				MaxRPS:         cfg.Datasources.EC2.MaxRPS,
				DMIProductPath: cfg.Datasources.EC2.DMIProduct,
			}, logger.WithFields(map[string]any{"datasource": dsec2.DatasourceTypeEC2}))
		default:
			return nil, errors.New(errors.CodeConfigValidation, fmt.Sprintf("unknown datasource type '%s'", dsType))
		}
		if err != nil {
			return nil, err
		}
		if err := registry.RegisterDatasource(datasource); err != nil {
			return nil, err
		}
	}

	for _, applier := range []ports.ModuleApplier{
		hostname.NewApplier(logger),
		writefiles.NewApplier(logger),
		mounts.NewApplier(logger),
		puppet.NewApplier(logger),
	} {
		if err := registry.RegisterApplier(applier); err != nil {
			return nil, err
		}
	}

	semaphoreStore, err := filestore.New(filepath.Join(cfg.Settings.StateDir, "semaphores"))
	if err != nil {
		return nil, err
	}
	cacheStore, err := filestore.New(filepath.Join(cfg.Settings.StateDir, "data"))
	if err != nil {
		return nil, err
	}
	semaphores := filestore.NewSemaphores(semaphoreStore)
	cache := filestore.NewCache(cacheStore)

	var events ports.EventSink
	if cfg.Settings.EventLogPath != "" {
		events, err = jsonfile.NewSink(cfg.Settings.EventLogPath)
		if err != nil {
			return nil, err
		}
	}

	reporter, err := text.NewReporter(text.Config{NoColor: cfg.Settings.NoColor}, logger)
	if err != nil {
		return nil, err
	}

	prober := service.NewProber(logger)
	resolver := service.NewResolver(prober, registry, cache, cfg.Datasources.List, service.ProbeOptions{
		PerCandidateTimeout: cfg.Probe.PerCandidateTimeout,
		MaxRetries:          cfg.Probe.MaxRetries,
		Concurrency:         cfg.Probe.Concurrency,
	}, logger)

	orchestrator, err := service.NewStageOrchestrator(registry, semaphores, events, logger, cfg.Modules, "")
	if err != nil {
		return nil, err
	}

	return &Application{
		Resolver:     resolver,
		Orchestrator: orchestrator,
		Reporter:     reporter,
		Semaphores:   semaphores,
		Cache:        cache,
		Logger:       logger,
		Config:       cfg,
	}, nil
}
