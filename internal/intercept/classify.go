package intercept

import (
	"strings"

	"github.com/samber/lo"

	"github.com/hazardwatch/edge-next/internal/app/appconfig"
)

type Class int

const (
	// ClassPassthrough requests are never cached: non-GET traffic and
	// anything a cached copy could make stale in a harmful way.
	ClassPassthrough Class = iota

	// ClassStatic covers immutable UI assets, served cache-first.
	ClassStatic

	// ClassAPIRead covers allow-listed read-only API endpoints, served
	// network-first with a cached fallback.
	ClassAPIRead

	// ClassMedia covers media and image resources, served cache-first
	// with a network fallback.
	ClassMedia

	// ClassDefault covers every remaining GET, served network-first.
	ClassDefault
)

func (c Class) String() string {
	switch c {
	case ClassStatic:
		return "static"
	case ClassAPIRead:
		return "api-read"
	case ClassMedia:
		return "media"
	case ClassDefault:
		return "default"
	default:
		return "passthrough"
	}
}

type Classifier struct {
	staticPaths  []string
	apiReadPaths []string
	mediaPaths   []string
}

func NewClassifier(conf *appconfig.Config) *Classifier {
	return &Classifier{
		staticPaths:  conf.StaticPaths,
		apiReadPaths: conf.APIReadPaths,
		mediaPaths:   conf.MediaPaths,
	}
}

// Classify buckets a request by method and path. Only GETs are ever
// cached; report submissions and other writes always pass through.
func (c *Classifier) Classify(method, path string) Class {
	if method != "GET" {
		return ClassPassthrough
	}
	if matchPrefix(c.staticPaths, path) {
		return ClassStatic
	}
	if matchPrefix(c.apiReadPaths, path) {
		return ClassAPIRead
	}
	if matchPrefix(c.mediaPaths, path) {
		return ClassMedia
	}
	return ClassDefault
}

func matchPrefix(prefixes []string, path string) bool {
	return lo.SomeBy(prefixes, func(prefix string) bool {
		return strings.HasPrefix(path, prefix)
	})
}
