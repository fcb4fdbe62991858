package config

import (
	"flag"
	"os"

	"github.com/dmitrijs2005/zipbuilder/internal/flagx"
)

var flagNames = []string{
	"a", "m", "l", "j", "d", "u", "p", "b", "g", "e",
	"url-style", "public-url", "timeout", "retries", "backoff",
	"workers", "queue", "fetch-timeout", "insecure", "workdir", "nats", "nats-subject",
}

// parseFlags populates Config fields from command-line flags.
//
// Supported flags:
//
//	-a string          gRPC bind address (e.g. ":50051")
//	-m string          Prometheus metrics bind address
//	-l string          log level (debug, info, warn, error)
//	-j string          job store: memory, postgres or sqlite
//	-d string          job store DSN
//	-u string          S3 access key id
//	-p string          S3 secret access key
//	-b string          S3 bucket
//	-g string          S3 region
//	-e string          S3 endpoint for S3-compatible servers
//	-url-style string  public URL style: path or virtual
//	-public-url string public base URL overriding url-style
//	-timeout duration  per-attempt build timeout
//	-retries int       retries after a transient failure
//	-backoff string    retry backoff: fixed, linear or exponential
//	-workers int       concurrent builds
//	-queue int         pending build buffer
//	-fetch-timeout     HTTP fetch timeout
//	-insecure          skip TLS verification on fetches (dev only)
//	-workdir string    parent directory for staging areas
//	-nats string       NATS URL for lifecycle events
//	-nats-subject      NATS subject prefix
//
// Only the flags above are extracted from os.Args via flagx.FilterArgs, so
// -c/-config (handled by parseJson) does not collide.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], flagNames...)

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrGRPC, "a", config.EndpointAddrGRPC, "address and port to run gRPC server")
	fs.StringVar(&config.MetricsAddr, "m", config.MetricsAddr, "address and port for metrics")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")
	fs.StringVar(&config.JobStore, "j", config.JobStore, "job store driver")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "job store DSN")

	fs.StringVar(&config.S3AccessKeyID, "u", config.S3AccessKeyID, "S3 access key id")
	fs.StringVar(&config.S3SecretAccessKey, "p", config.S3SecretAccessKey, "S3 secret access key")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")
	fs.StringVar(&config.S3URLStyle, "url-style", config.S3URLStyle, "public URL style (path|virtual)")
	fs.StringVar(&config.PublicBaseURL, "public-url", config.PublicBaseURL, "public base URL")

	fs.DurationVar(&config.AttemptTimeout, "timeout", config.AttemptTimeout, "per-attempt build timeout")
	fs.IntVar(&config.MaxRetries, "retries", config.MaxRetries, "max retries for transient failures")
	fs.StringVar(&config.RetryBackoff, "backoff", config.RetryBackoff, "retry backoff mode")
	fs.IntVar(&config.Workers, "workers", config.Workers, "number of build workers")
	fs.IntVar(&config.QueueSize, "queue", config.QueueSize, "build queue size")

	fs.DurationVar(&config.FetchTimeout, "fetch-timeout", config.FetchTimeout, "HTTP fetch timeout")
	fs.BoolVar(&config.InsecureSkipVerify, "insecure", config.InsecureSkipVerify, "skip TLS verification")
	fs.StringVar(&config.WorkDir, "workdir", config.WorkDir, "staging parent directory")
	fs.StringVar(&config.NatsURL, "nats", config.NatsURL, "NATS URL")
	fs.StringVar(&config.NatsSubject, "nats-subject", config.NatsSubject, "NATS subject prefix")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}
}
