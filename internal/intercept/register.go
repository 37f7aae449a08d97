package intercept

import (
	"github.com/gofiber/fiber/v2"
)

// RegisterProxy mounts the proxy as the final catch-all. It must run after
// every local route is registered so only upstream-bound traffic reaches it.
func RegisterProxy(app *fiber.App, proxy *Proxy) {
	app.Use(proxy.Handler)
}
