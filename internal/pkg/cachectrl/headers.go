// Package cachectrl sets response cache-control headers: intercepted
// upstream copies opt in so browsers may revalidate against the stored
// timestamp, while live agent endpoints opt out.
package cachectrl

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
)

const defaultMaxAge = time.Hour

// OptIn marks the response cacheable for an hour, anchored on storedAt as
// its Last-Modified time.
func OptIn(ctx *fiber.Ctx, storedAt time.Time) {
	OptInFor(ctx, storedAt, defaultMaxAge)
}

func OptInFor(ctx *fiber.Ctx, storedAt time.Time, maxAge time.Duration) {
	ctx.Set(fiber.HeaderCacheControl, "public, max-age="+strconv.FormatInt(int64(maxAge.Seconds()), 10))
	ctx.Set(fiber.HeaderExpires, storedAt.Add(maxAge).Format(time.RFC1123))

	ctx.Response().Header.SetLastModified(storedAt)
}

// OptOut disables client-side caching. Used for the status endpoint so the
// UI's connectivity indicator never shows a stale pending count.
func OptOut(ctx *fiber.Ctx) {
	ctx.Set(fiber.HeaderCacheControl, "no-cache, no-store, must-revalidate")
	ctx.Set(fiber.HeaderPragma, "no-cache")
	ctx.Set(fiber.HeaderExpires, "0")
}
