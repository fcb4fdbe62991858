package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// parseEnv overlays values from environment variables. When dotenv names an
// existing file it is loaded first; variables already present in the process
// environment win over the file.
//
// The S3_* names match the ones used by earlier deployments of this service.
func parseEnv(config *Config, dotenv string) {
	if dotenv != "" {
		if _, err := os.Stat(dotenv); err == nil {
			if err := godotenv.Load(dotenv); err != nil {
				panic(err)
			}
		}
	}

	str := func(name string, dst *string) {
		if v, ok := os.LookupEnv(name); ok {
			*dst = v
		}
	}
	integer := func(name string, dst *int) {
		if v, ok := os.LookupEnv(name); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				panic(err)
			}
			*dst = n
		}
	}
	duration := func(name string, dst *time.Duration) {
		if v, ok := os.LookupEnv(name); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				panic(err)
			}
			*dst = d
		}
	}

	str("GRPC_ADDRESS", &config.EndpointAddrGRPC)
	str("METRICS_ADDRESS", &config.MetricsAddr)
	str("LOG_LEVEL", &config.LogLevel)
	str("JOB_STORE", &config.JobStore)
	str("DATABASE_DSN", &config.DatabaseDSN)
	str("S3_ACCESS_KEY_ID", &config.S3AccessKeyID)
	str("S3_SECRET_ACCESS_KEY", &config.S3SecretAccessKey)
	str("S3_BUCKET", &config.S3Bucket)
	str("S3_REGION", &config.S3Region)
	str("S3_ENDPOINT", &config.S3BaseEndpoint)
	str("S3_URL_STYLE", &config.S3URLStyle)
	str("PUBLIC_BASE_URL", &config.PublicBaseURL)
	duration("ATTEMPT_TIMEOUT", &config.AttemptTimeout)
	integer("MAX_RETRIES", &config.MaxRetries)
	str("RETRY_BACKOFF", &config.RetryBackoff)
	duration("RETRY_INITIAL_DELAY", &config.RetryInitialDelay)
	duration("RETRY_MAX_DELAY", &config.RetryMaxDelay)
	integer("WORKERS", &config.Workers)
	integer("QUEUE_SIZE", &config.QueueSize)
	duration("FETCH_TIMEOUT", &config.FetchTimeout)
	str("WORK_DIR", &config.WorkDir)
	str("NATS_URL", &config.NatsURL)
	str("NATS_SUBJECT", &config.NatsSubject)

	// same switch the previous deployment used to accept self-signed certs in dev
	if v, ok := os.LookupEnv("NODE_TLS_REJECT_UNAUTHORIZED"); ok && v == "0" {
		config.InsecureSkipVerify = true
	}
	if v, ok := os.LookupEnv("INSECURE_SKIP_VERIFY"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			panic(err)
		}
		config.InsecureSkipVerify = b
	}
}
