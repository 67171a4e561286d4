package main

import (
	"jidhr/internal/config"
	"jidhr/internal/consensus"
	"jidhr/internal/extract"
	"jidhr/internal/index"
	"jidhr/internal/resolve"
	"jidhr/internal/source"
	"jidhr/internal/store"

	"go.uber.org/zap"
)

// pipeline bundles the wired components behind one handle so each subcommand
// builds exactly the same stack.
type pipeline struct {
	cfg     *config.Config
	store   *store.Store
	offline *source.Offline

	orch     *extract.Orchestrator
	jobs     *extract.JobManager
	resolver *resolve.Resolver
	indexer  *index.Indexer
}

func buildPipeline(log *zap.Logger) (*pipeline, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	st, err := store.Open(cfg.Database.Path, log)
	if err != nil {
		return nil, err
	}

	retry := source.RetryPolicy{
		MaxAttempts: cfg.Extraction.Retries,
		BaseBackoff: cfg.GetRetryBackoff(),
		Factor:      2,
	}

	var offline *source.Offline
	var offlineSrc source.Source
	if cfg.Offline.Enabled {
		offline = source.NewOffline(cfg.Offline.SnapshotPath, log)
		offlineSrc = offline
	}

	var network []source.Source
	if cfg.Corpus.Enabled {
		network = append(network, source.NewCorpus(source.CorpusConfig{
			BaseURL:   cfg.Corpus.BaseURL,
			RateLimit: cfg.GetCorpusRateLimit(),
			Timeout:   cfg.GetCorpusTimeout(),
			Retry:     retry,
		}, log))
	}
	if cfg.Dictionaries.Almaany.Enabled {
		network = append(network, source.NewAlmaany(source.DictionaryConfig{
			BaseURL:   cfg.Dictionaries.Almaany.BaseURL,
			RateLimit: cfg.Dictionaries.Almaany.GetRateLimit(),
			Timeout:   cfg.Dictionaries.Almaany.GetTimeout(),
			Retry:     retry,
		}, log))
	}
	if cfg.Dictionaries.Baheth.Enabled {
		network = append(network, source.NewBaheth(source.DictionaryConfig{
			BaseURL:   cfg.Dictionaries.Baheth.BaseURL,
			RateLimit: cfg.Dictionaries.Baheth.GetRateLimit(),
			Timeout:   cfg.Dictionaries.Baheth.GetTimeout(),
			Retry:     retry,
		}, log))
	}

	var local []source.Source
	if cfg.Heuristics.Enabled {
		local = append(local, source.NewKhalil(), source.NewStemmer())
	}

	orch := extract.New(extract.Config{
		Consensus: consensus.Config{
			Weights: consensus.Weights{
				Offline:     cfg.Consensus.OfflineWeight,
				Reference:   cfg.Consensus.ReferenceWeight,
				Dictionary:  cfg.Consensus.DictionaryWeight,
				Algorithmic: cfg.Consensus.AlgorithmicWeight,
			},
			TopTierFloor: cfg.Consensus.TopTierFloor,
			PairBoost:    cfg.Consensus.PairBoost,
			CrowdBoost:   cfg.Consensus.CrowdBoost,
		},
		Tier2Timeout:    cfg.GetTier2Timeout(),
		PersistOutcomes: true,
	}, offlineSrc, network, local, st, st, log)

	jobs := extract.NewJobManager(extract.BatchConfig{
		Workers:   cfg.Extraction.Workers,
		ChunkSize: cfg.Extraction.ChunkSize,
	}, orch, st, log)

	resolveCfg := resolve.DefaultConfig()
	resolveCfg.VerifyThreshold = cfg.Resolution.VerifyThreshold
	resolveCfg.ReviewThreshold = cfg.Resolution.ReviewThreshold
	resolveCfg.MinAgreeingSources = cfg.Resolution.MinAgreeingSources
	resolver := resolve.New(resolveCfg, st, log)

	indexer := index.New(index.Config{
		CompressThreshold: cfg.Indexing.CompressThreshold,
		MaxRefs:           cfg.Indexing.MaxRefs,
		RelatedDistance:   cfg.Indexing.RelatedDistance,
	}, st, st, log)

	return &pipeline{
		cfg:      cfg,
		store:    st,
		offline:  offline,
		orch:     orch,
		jobs:     jobs,
		resolver: resolver,
		indexer:  indexer,
	}, nil
}

func (p *pipeline) Close() {
	if err := p.store.Close(); err != nil {
		logger.Warn("store close failed", zap.Error(err))
	}
}
