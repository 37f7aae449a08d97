package appconfig

import (
	"time"

	"github.com/hazardwatch/edge-next/internal/app/appcontext"
)

type ConfigSpec struct {
	// ServiceAddress is the listen address the agent would listen on. All UI
	// traffic, both the local agent API and intercepted upstream resources,
	// goes through this address.
	ServiceAddress string `required:"true" split_words:"true" default:"localhost:9020"`

	// LogJsonStdout is whether to log JSON logs (instead of pretty-print logs) to stdout
	// for the ease of log collection.
	LogJsonStdout bool `split_words:"true" default:"false"`

	// DevMode to indicate development mode. When true, the agent logs at trace level.
	DevMode bool `split_words:"true"`

	// SqlitePath is the path to the embedded SQLite database holding the
	// pending report queue, media blobs and response caches. The agent still
	// starts when the file cannot be opened, in a degraded queue-less mode.
	SqlitePath string `split_words:"true" default:"hazardwatch.db"`

	// NatsURL is the URL of the local NATS server used for cross-process
	// wake-ups and sync-complete notifications. See
	// https://pkg.go.dev/github.com/nats-io/nats.go#Connect for details on
	// how to construct a NATS URL.
	NatsURL string `split_words:"true" default:"nats://127.0.0.1:4222"`

	// UpstreamBaseURL is the origin of the hazard reporting service that the
	// intercept layer proxies and caches.
	UpstreamBaseURL string `required:"true" split_words:"true" default:"http://localhost:8080"`

	// SubmitPath is the path, relative to UpstreamBaseURL, of the report
	// submission endpoint. Submissions are multipart and never cached.
	SubmitPath string `split_words:"true" default:"/api/v1/report"`

	// HealthProbePath is the path, relative to UpstreamBaseURL, probed by the
	// network status monitor to decide online/offline.
	HealthProbePath string `split_words:"true" default:"/health"`

	// ProbeInterval describes the interval in-between connectivity probes.
	ProbeInterval time.Duration `split_words:"true" default:"30s"`

	// ProbeTimeout describes the timeout of a single connectivity probe attempt.
	ProbeTimeout time.Duration `split_words:"true" default:"5s"`

	// SubmitTimeout describes the timeout of a single report submission attempt,
	// media upload included.
	SubmitTimeout time.Duration `split_words:"true" default:"30s"`

	// SyncInterval describes the interval in-between periodic drain passes ran
	// while online, as a catch-all for missed transition events.
	SyncInterval time.Duration `split_words:"true" default:"5m"`

	// SyncBackoffBase is the base delay of the exponential backoff applied to
	// automatic retries of transiently-failed reports, keyed on their retry
	// count. Zero disables backoff and retries on every pass.
	SyncBackoffBase time.Duration `split_words:"true" default:"30s"`

	// SyncBackoffCap caps the exponential backoff delay.
	SyncBackoffCap time.Duration `split_words:"true" default:"1h"`

	// APIReadPaths is the allow-list of read-only upstream API path prefixes
	// served network-first with cache fallback. Auth and upload paths must
	// not be listed here.
	APIReadPaths []string `split_words:"true" default:"/api/v1/advisories,/api/v1/zones,/api/v1/stats"`

	// StaticPaths is the list of upstream path prefixes classified as static
	// assets and served cache-first.
	StaticPaths []string `split_words:"true" default:"/assets,/static"`

	// MediaPaths is the list of upstream path prefixes classified as media
	// and served cache-first out of the dynamic cache.
	MediaPaths []string `split_words:"true" default:"/media,/uploads"`

	// UpstreamTimeout describes the timeout of a single intercepted upstream fetch.
	UpstreamTimeout time.Duration `split_words:"true" default:"15s"`

	// HTTPServerShutdownTimeout is the timeout for the HTTP server to shut down gracefully.
	HTTPServerShutdownTimeout time.Duration `split_words:"true" default:"60s"`
}

type Config struct {
	ConfigSpec

	AppContext appcontext.Ctx
}
