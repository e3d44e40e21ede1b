// Package config holds the mapstructure-tagged configuration blocks
// shared by the scan orchestrator and its command-line front end.
package config

import (
	"time"

	"github.com/pescan-dev/pescan/pkg/types"
)

// ProducerCfg represents the producer config.
type ProducerCfg struct {
	Nsqd  string `mapstructure:"nsqd"`
	Topic string `mapstructure:"topic"`
}

// ConsumerCfg represents the consumer config.
type ConsumerCfg struct {
	Lookupds    []string `mapstructure:"lookupds"`
	Topic       string   `mapstructure:"topic"`
	Channel     string   `mapstructure:"channel"`
	Concurrency int      `mapstructure:"concurrency"`
}

// AWSS3Cfg represents AWS S3 credentials.
type AWSS3Cfg struct {
	Region    string `mapstructure:"region"`
	SecretKey string `mapstructure:"secret_key"`
	AccessKey string `mapstructure:"access_key"`
}

// MinioCfg represents Minio credentials.
type MinioCfg struct {
	Endpoint  string `mapstructure:"endpoint"`
	Region    string `mapstructure:"region"`
	SecretKey string `mapstructure:"secret_key"`
	AccessKey string `mapstructure:"access_key"`
}

// LocalFsCfg represents local file system storage data.
type LocalFsCfg struct {
	RootDir string `mapstructure:"root_dir"`
}

// CouchbaseCfg represents Couchbase connection data.
type CouchbaseCfg struct {
	ConnStr  string `mapstructure:"conn_str"`
	Bucket   string `mapstructure:"bucket"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// StorageCfg represents the object storage config reports and samples
// move through.
type StorageCfg struct {
	// Deployment kind, possible values: aws, minio, couchbase, local.
	DeploymentKind string       `mapstructure:"deployment_kind"`
	Bucket         string       `mapstructure:"bucket"`
	S3             AWSS3Cfg     `mapstructure:"s3"`
	Minio          MinioCfg     `mapstructure:"minio"`
	Local          LocalFsCfg   `mapstructure:"local"`
	Couchbase      CouchbaseCfg `mapstructure:"couchbase"`

	// BatchFlush routes report uploads through pkg/flusher instead of
	// uploading each report as soon as its scan pass finishes.
	BatchFlush    bool          `mapstructure:"batch_flush"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
}

// FilterCfg selects the IAT scanner's uncovered-hook filter.
type FilterCfg struct {
	// Mode: one of "unfiltered", "listed", "clean_sys_filtered",
	// "unfiltered_sys_all".
	Mode string `mapstructure:"mode"`
}

// Resolve maps Mode to a types.FilterMode, defaulting to
// FilterCleanSysFiltered when Mode is unset or unrecognized.
func (f FilterCfg) Resolve() types.FilterMode {
	switch f.Mode {
	case "unfiltered":
		return types.FilterUnfiltered
	case "listed":
		return types.FilterListed
	case "unfiltered_sys_all":
		return types.FilterUnfilteredSysAll
	default:
		return types.FilterCleanSysFiltered
	}
}

// SymbolResolverCfg points at the external debug-symbol resolver.
type SymbolResolverCfg struct {
	Endpoint    string        `mapstructure:"endpoint"`
	Enabled     bool          `mapstructure:"enabled"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

// TargetCfg describes where a scan pass looks for Windows system
// binaries, needed by the IAT scanner's system-directory redirect check.
type TargetCfg struct {
	System32 string `mapstructure:"system32"`
	SysWow64 string `mapstructure:"syswow64"`
}

// DetectionCfg configures the optional YARA and ssdeep enrichment
// applied to every module and shellcode-candidate buffer scanned.
type DetectionCfg struct {
	YaraRulesPath   string `mapstructure:"yara_rules_path"`
	EnableFuzzy     bool   `mapstructure:"enable_fuzzy_hash"`
	CheckSignatures bool   `mapstructure:"check_signatures"`
}

// QuarantineCfg configures evidence quarantine: when a scan pass comes
// back suspicious, the buffers it flagged are bundled into a
// password-protected archive alongside the report instead of being
// discarded once the process exits.
type QuarantineCfg struct {
	Enabled  bool   `mapstructure:"enabled"`
	Dir      string `mapstructure:"dir"`
	Password string `mapstructure:"password"`
}
