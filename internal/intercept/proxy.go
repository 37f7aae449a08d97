package intercept

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/hazardwatch/edge-next/internal/app/appconfig"
	"github.com/hazardwatch/edge-next/internal/constant"
	"github.com/hazardwatch/edge-next/internal/model"
	"github.com/hazardwatch/edge-next/internal/netmon"
	"github.com/hazardwatch/edge-next/internal/pkg/cachectrl"
	"github.com/hazardwatch/edge-next/internal/pkg/hwerr"
	"github.com/hazardwatch/edge-next/internal/repo"
)

// hop-by-hop headers are never forwarded nor cached
var skipHeaders = map[string]struct{}{
	"Connection":          {},
	"Keep-Alive":          {},
	"Proxy-Authorization": {},
	"Te":                  {},
	"Transfer-Encoding":   {},
	"Upgrade":             {},
}

type fetched struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
}

// Proxy fronts all UI traffic bound for the upstream service. Requests are
// classified per resource and served through one of the caching strategies;
// local agent routes are registered on the fiber app before this handler so
// only unmatched traffic reaches it.
type Proxy struct {
	Classifier     *Classifier
	CacheEntryRepo *repo.CacheEntry
	Monitor        *netmon.Monitor

	base   string
	client *http.Client
}

func NewProxy(conf *appconfig.Config, classifier *Classifier, cacheEntryRepo *repo.CacheEntry, monitor *netmon.Monitor) *Proxy {
	return &Proxy{
		Classifier:     classifier,
		CacheEntryRepo: cacheEntryRepo,
		Monitor:        monitor,
		base:           strings.TrimRight(conf.UpstreamBaseURL, "/"),
		client: &http.Client{
			Timeout: conf.UpstreamTimeout,
		},
	}
}

func (p *Proxy) Handler(ctx *fiber.Ctx) error {
	class := p.Classifier.Classify(ctx.Method(), ctx.Path())

	switch class {
	case ClassStatic:
		return p.cacheFirst(ctx, constant.CacheClassStatic, p.serveUnavailable)
	case ClassAPIRead:
		return p.networkFirst(ctx, constant.CacheClassDynamic, true, p.serveOffline)
	case ClassMedia:
		return p.cacheFirst(ctx, constant.CacheClassDynamic, p.serveEmptyUnavailable)
	case ClassDefault:
		return p.networkFirst(ctx, constant.CacheClassDynamic, false, p.serveUnavailable)
	default:
		return p.passthrough(ctx)
	}
}

// cacheFirst serves a stored copy when one exists, otherwise fetches the
// upstream, persists a copy and returns it. miss runs when both fail.
func (p *Proxy) cacheFirst(ctx *fiber.Ctx, cacheClass string, miss func(*fiber.Ctx) error) error {
	key := cacheKey(ctx)
	if entry, err := p.CacheEntryRepo.Get(ctx.UserContext(), cacheClass, key); err == nil {
		return p.serveCached(ctx, entry)
	}

	resp, err := p.fetch(ctx)
	if err != nil {
		return miss(ctx)
	}
	p.storeCopy(ctx.UserContext(), cacheClass, key, resp)
	return p.serveFetched(ctx, resp)
}

// networkFirst prefers a fresh upstream response and falls back to the most
// recent cached copy. fallback runs when neither is available.
func (p *Proxy) networkFirst(ctx *fiber.Ctx, cacheClass string, storeOnSuccess bool, fallback func(*fiber.Ctx) error) error {
	key := cacheKey(ctx)

	resp, err := p.fetch(ctx)
	if err == nil {
		if storeOnSuccess {
			p.storeCopy(ctx.UserContext(), cacheClass, key, resp)
		}
		return p.serveFetched(ctx, resp)
	}

	if entry, cerr := p.CacheEntryRepo.Get(ctx.UserContext(), cacheClass, key); cerr == nil {
		return p.serveCached(ctx, entry)
	}
	return fallback(ctx)
}

// passthrough forwards the request verbatim, uncached. Non-GET traffic
// (including direct report submissions) always takes this path.
func (p *Proxy) passthrough(ctx *fiber.Ctx) error {
	resp, err := p.fetch(ctx)
	if err != nil {
		return p.serveUnavailable(ctx)
	}
	return p.serveFetched(ctx, resp)
}

func (p *Proxy) fetch(ctx *fiber.Ctx) (*fetched, error) {
	url := p.base + string(ctx.Request().RequestURI())

	var body io.Reader
	if b := ctx.Body(); len(b) > 0 {
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx.UserContext(), ctx.Method(), url, body)
	if err != nil {
		return nil, err
	}
	ctx.Request().Header.VisitAll(func(key, value []byte) {
		name := http.CanonicalHeaderKey(string(key))
		if _, skip := skipHeaders[name]; skip || name == "Host" {
			return
		}
		req.Header.Add(name, string(value))
	})

	resp, err := p.client.Do(req)
	if err != nil {
		// a failed fetch is authoritative over probe optimism
		p.Monitor.SetOnline(false)
		return nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	headers := make(map[string]string, len(resp.Header))
	for name := range resp.Header {
		if _, skip := skipHeaders[name]; skip {
			continue
		}
		headers[name] = resp.Header.Get(name)
	}
	return &fetched{
		StatusCode: resp.StatusCode,
		Headers:    headers,
		Body:       payload,
	}, nil
}

func (p *Proxy) storeCopy(ctx context.Context, cacheClass, key string, resp *fetched) {
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return
	}
	headers, err := json.Marshal(resp.Headers)
	if err != nil {
		log.Error().Err(err).Msg("intercept: failed to marshal cached headers")
		return
	}
	entry := &model.CacheEntry{
		CacheClass: cacheClass,
		CacheKey:   key,
		StatusCode: resp.StatusCode,
		Headers:    headers,
		Body:       resp.Body,
	}
	if err := p.CacheEntryRepo.Put(ctx, entry); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("intercept: failed to store cached copy")
	}
}

func (p *Proxy) serveFetched(ctx *fiber.Ctx, resp *fetched) error {
	for name, value := range resp.Headers {
		ctx.Set(name, value)
	}
	ctx.Set(constant.CacheStatusHeader, constant.CacheStatusMiss)
	return ctx.Status(resp.StatusCode).Send(resp.Body)
}

func (p *Proxy) serveCached(ctx *fiber.Ctx, entry *model.CacheEntry) error {
	var headers map[string]string
	if err := json.Unmarshal(entry.Headers, &headers); err == nil {
		for name, value := range headers {
			ctx.Set(name, value)
		}
	}
	cachectrl.OptIn(ctx, entry.StoredAt)
	ctx.Set(constant.CacheStatusHeader, constant.CacheStatusHit)
	return ctx.Status(entry.StatusCode).Send(entry.Body)
}

func (p *Proxy) serveUnavailable(ctx *fiber.Ctx) error {
	return hwerr.ErrOffline
}

// serveOffline carries the explicit offline marker the UI keys its banner on.
func (p *Proxy) serveOffline(ctx *fiber.Ctx) error {
	return hwerr.ErrOffline.WithExtras(hwerr.Extras{"offline": true})
}

func (p *Proxy) serveEmptyUnavailable(ctx *fiber.Ctx) error {
	return ctx.SendStatus(fiber.StatusServiceUnavailable)
}

// cacheKey identifies a cached response by its full request target. Only
// GETs reach the caching strategies, so the method needs no encoding.
func cacheKey(ctx *fiber.Ctx) string {
	return string(ctx.Request().RequestURI())
}
