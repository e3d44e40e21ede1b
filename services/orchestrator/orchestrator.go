// Copyright 2021 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/pescan-dev/pescan/pkg/detect"
	"github.com/pescan-dev/pescan/pkg/flusher"
	"github.com/pescan-dev/pescan/pkg/logging"
	"github.com/pescan-dev/pescan/pkg/pubsub"
	"github.com/pescan-dev/pescan/pkg/pubsub/nsq"
	"github.com/pescan-dev/pescan/pkg/quarantine"
	"github.com/pescan-dev/pescan/pkg/reportstore"
	"github.com/pescan-dev/pescan/pkg/scanpass"
	"github.com/pescan-dev/pescan/pkg/symbols"
	"github.com/pescan-dev/pescan/pkg/threadscan"
	"github.com/pescan-dev/pescan/services/config"
)

// Config represents our application config.
type Config struct {
	// Log level. Defaults to info.
	LogLevel   string                   `mapstructure:"log_level"`
	Producer   config.ProducerCfg       `mapstructure:"producer"`
	Consumer   config.ConsumerCfg       `mapstructure:"consumer"`
	Storage    config.StorageCfg        `mapstructure:"storage"`
	Filter     config.FilterCfg         `mapstructure:"filter"`
	Target     config.TargetCfg         `mapstructure:"target"`
	Symbols    config.SymbolResolverCfg `mapstructure:"symbols"`
	Detection  config.DetectionCfg      `mapstructure:"detection"`
	Quarantine config.QuarantineCfg     `mapstructure:"quarantine"`
}

// Service consumes one process ID per message, runs the IAT scanner over
// every loaded module and the Thread Scanner over every thread, and
// uploads the resulting reports to object storage. It adheres to the
// pubsub.Handler interface, the same handler-per-message shape the
// original PE scan service was built against.
type Service struct {
	cfg     Config
	logger  logging.Logger
	pub     pubsub.Publisher
	sub     pubsub.Subscriber
	storage reportstore.Store
	flusher *flusher.Periodic
	symbols threadscan.SymbolResolver
	yara    *detect.YaraScanner
	fuzzy   *detect.FuzzyHash
}

// New creates a new scan orchestrator service.
func New(cfg Config, logger logging.Logger) (Service, error) {
	svc := Service{}
	var err error

	if cfg.Symbols.Enabled {
		resolver, err := symbols.Dial(cfg.Symbols.Endpoint, cfg.Symbols.DialTimeout)
		if err != nil {
			logger.Errorf("symbol resolver dial failed, continuing without it: %v", err)
		} else {
			svc.symbols = resolver
		}
	}

	if cfg.Detection.YaraRulesPath != "" {
		y, err := detect.NewYaraScanner(cfg.Detection.YaraRulesPath)
		if err != nil {
			logger.Errorf("yara compile failed, continuing without it: %v", err)
		} else {
			svc.yara = y
		}
	}
	if cfg.Detection.EnableFuzzy {
		svc.fuzzy = detect.NewFuzzyHash()
	}

	svc.sub, err = nsq.NewSubscriber(
		cfg.Consumer.Topic,
		cfg.Consumer.Channel,
		cfg.Consumer.Lookupds,
		cfg.Consumer.Concurrency,
		&svc,
	)
	if err != nil {
		return Service{}, err
	}

	svc.pub, err = nsq.NewPublisher(cfg.Producer.Nsqd)
	if err != nil {
		return Service{}, err
	}

	opts := reportstore.Options{}
	switch cfg.Storage.DeploymentKind {
	case "aws":
		opts.AccessKey = cfg.Storage.S3.AccessKey
		opts.SecretKey = cfg.Storage.S3.SecretKey
		opts.Region = cfg.Storage.S3.Region
	case "minio":
		opts.Region = cfg.Storage.Minio.Region
		opts.AccessKey = cfg.Storage.Minio.AccessKey
		opts.SecretKey = cfg.Storage.Minio.SecretKey
		opts.MinioEndpoint = cfg.Storage.Minio.Endpoint
	case "couchbase":
		opts.CouchbaseConnStr = cfg.Storage.Couchbase.ConnStr
		opts.CouchbaseBucket = cfg.Storage.Couchbase.Bucket
		opts.AccessKey = cfg.Storage.Couchbase.Username
		opts.SecretKey = cfg.Storage.Couchbase.Password
	case "local":
		opts.LocalRootDir = cfg.Storage.Local.RootDir
	}

	sto, err := reportstore.New(cfg.Storage.DeploymentKind, opts)
	if err != nil {
		return Service{}, err
	}

	if cfg.Storage.BatchFlush {
		interval := cfg.Storage.FlushInterval
		if interval <= 0 {
			interval = 30 * time.Second
		}
		svc.flusher = flusher.NewPeriodic(sto, interval, logger.Errorf)
	}

	svc.cfg = cfg
	svc.logger = logger
	svc.storage = sto
	return svc, nil
}

// Start kicks in the service to start consuming events.
func (s *Service) Start() error {
	s.logger.Infof("start consuming from topic: %s ...", s.cfg.Consumer.Topic)
	return s.sub.Start()
}

// HandleMessage implements pubsub.Handler. The message body is a decimal
// process ID to scan.
func (s *Service) HandleMessage(body []byte) error {
	if len(body) == 0 {
		return errors.New("body is blank re-enqueue message")
	}

	pid64, err := strconv.ParseUint(string(body), 10, 32)
	if err != nil {
		return fmt.Errorf("orchestrator: invalid pid %q: %w", body, err)
	}
	pid := uint32(pid64)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	logger := s.logger.With(ctx, "pid", pid)
	logger.Info("start scan")

	opts := scanpass.Options{
		Filter:          s.cfg.Filter.Resolve(),
		System32:        s.cfg.Target.System32,
		SysWow64:        s.cfg.Target.SysWow64,
		Symbols:         s.symbols,
		Yara:            s.yara,
		Fuzzy:           s.fuzzy,
		CheckSignatures: s.cfg.Detection.CheckSignatures,
		CaptureEvidence: s.cfg.Quarantine.Enabled,
	}
	res, err := scanpass.Run(ctx, pid, opts, s.logger.Sugar())
	if err != nil {
		logger.Errorf("scan failed: %v", err)
		return err
	}
	defer os.Remove(res.File.Name())
	defer res.File.Close()

	key := fmt.Sprintf("%d-%s.json", pid, uuid.New().String())
	if s.flusher != nil {
		reportBytes, err := io.ReadAll(res.File)
		if err != nil {
			logger.Errorf("failed reading report: %v", err)
			return err
		}
		s.flusher.Enqueue(s.cfg.Storage.Bucket, key, reportBytes)
		logger.Infof("queued report %s for batch flush", key)
	} else {
		if err := s.storage.Upload(ctx, s.cfg.Storage.Bucket, key, res.File); err != nil {
			logger.Errorf("failed uploading report: %v", err)
			return err
		}
		logger.Infof("uploaded report to %s", key)
	}

	if res.Suspicious && s.cfg.Quarantine.Enabled {
		if err := s.quarantine(res, pid); err != nil {
			logger.Errorf("failed to quarantine evidence: %v", err)
		}
	}

	// A publish failure means nothing downstream gets notified the report
	// exists, but the scan itself succeeded and is already durably
	// stored; it must not cause the message to be redelivered and the
	// scan re-run.
	if err := s.pub.Publish(ctx, s.cfg.Producer.Topic, []byte(key)); err != nil {
		logger.Errorf("failed to publish message: %v", err)
	}

	return nil
}

// quarantine bundles the report alongside every buffer a suspicious
// verdict was based on into a password-protected archive under the
// configured quarantine directory.
func (s *Service) quarantine(res *scanpass.Result, pid uint32) error {
	if _, err := res.File.Seek(0, 0); err != nil {
		return fmt.Errorf("orchestrator: seek report: %w", err)
	}
	reportBytes, err := io.ReadAll(res.File)
	if err != nil {
		return fmt.Errorf("orchestrator: read report: %w", err)
	}
	if _, err := res.File.Seek(0, 0); err != nil {
		return fmt.Errorf("orchestrator: re-seek report: %w", err)
	}

	path := filepath.Join(s.cfg.Quarantine.Dir, fmt.Sprintf("%d-%s.zip", pid, uuid.New().String()))
	return quarantine.Bundle(path, s.cfg.Quarantine.Password, reportBytes, res.Buffers)
}
