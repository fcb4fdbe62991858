package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/zipbuilder/internal/flagx"
	"github.com/dmitrijs2005/zipbuilder/internal/timex"
)

// JsonConfig is the on-disk shape of the JSON config file. Durations use
// timex.Duration so both "30s" and integer nanoseconds are accepted. Pointer
// fields distinguish "absent" from zero values so the overlay only touches
// what the file sets.
type JsonConfig struct {
	EndpointAddrGRPC   *string         `json:"endpoint_addr_grpc"`
	MetricsAddr        *string         `json:"metrics_addr"`
	LogLevel           *string         `json:"log_level"`
	JobStore           *string         `json:"job_store"`
	DatabaseDSN        *string         `json:"database_dsn"`
	S3AccessKeyID      *string         `json:"s3_access_key_id"`
	S3SecretAccessKey  *string         `json:"s3_secret_access_key"`
	S3Bucket           *string         `json:"s3_bucket"`
	S3Region           *string         `json:"s3_region"`
	S3BaseEndpoint     *string         `json:"s3_base_endpoint"`
	S3URLStyle         *string         `json:"s3_url_style"`
	PublicBaseURL      *string         `json:"public_base_url"`
	AttemptTimeout     *timex.Duration `json:"attempt_timeout"`
	MaxRetries         *int            `json:"max_retries"`
	RetryBackoff       *string         `json:"retry_backoff"`
	RetryInitialDelay  *timex.Duration `json:"retry_initial_delay"`
	RetryMaxDelay      *timex.Duration `json:"retry_max_delay"`
	Workers            *int            `json:"workers"`
	QueueSize          *int            `json:"queue_size"`
	FetchTimeout       *timex.Duration `json:"fetch_timeout"`
	InsecureSkipVerify *bool           `json:"insecure_skip_verify"`
	WorkDir            *string         `json:"work_dir"`
	NatsURL            *string         `json:"nats_url"`
	NatsSubject        *string         `json:"nats_subject"`
}

// parseJson loads configuration values from the JSON file named by the -c or
// -config flag into config. Without the flag nothing happens. An unreadable
// file or invalid JSON panics, as the server cannot start with a broken config.
func parseJson(config *Config) {
	path := flagx.ConfigPath(os.Args[1:])
	if path == "" {
		return
	}

	file, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	c.apply(config)
}

func (c *JsonConfig) apply(config *Config) {
	setStr := func(src *string, dst *string) {
		if src != nil {
			*dst = *src
		}
	}
	setInt := func(src *int, dst *int) {
		if src != nil {
			*dst = *src
		}
	}
	setStr(c.EndpointAddrGRPC, &config.EndpointAddrGRPC)
	setStr(c.MetricsAddr, &config.MetricsAddr)
	setStr(c.LogLevel, &config.LogLevel)
	setStr(c.JobStore, &config.JobStore)
	setStr(c.DatabaseDSN, &config.DatabaseDSN)
	setStr(c.S3AccessKeyID, &config.S3AccessKeyID)
	setStr(c.S3SecretAccessKey, &config.S3SecretAccessKey)
	setStr(c.S3Bucket, &config.S3Bucket)
	setStr(c.S3Region, &config.S3Region)
	setStr(c.S3BaseEndpoint, &config.S3BaseEndpoint)
	setStr(c.S3URLStyle, &config.S3URLStyle)
	setStr(c.PublicBaseURL, &config.PublicBaseURL)
	setInt(c.MaxRetries, &config.MaxRetries)
	setStr(c.RetryBackoff, &config.RetryBackoff)
	setInt(c.Workers, &config.Workers)
	setInt(c.QueueSize, &config.QueueSize)
	setStr(c.WorkDir, &config.WorkDir)
	setStr(c.NatsURL, &config.NatsURL)
	setStr(c.NatsSubject, &config.NatsSubject)

	if c.AttemptTimeout != nil {
		config.AttemptTimeout = c.AttemptTimeout.Duration
	}
	if c.RetryInitialDelay != nil {
		config.RetryInitialDelay = c.RetryInitialDelay.Duration
	}
	if c.RetryMaxDelay != nil {
		config.RetryMaxDelay = c.RetryMaxDelay.Duration
	}
	if c.FetchTimeout != nil {
		config.FetchTimeout = c.FetchTimeout.Duration
	}
	if c.InsecureSkipVerify != nil {
		config.InsecureSkipVerify = *c.InsecureSkipVerify
	}
}
