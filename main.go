package main

import (
	"github.com/hazardwatch/edge-next/cmd/app"
)

// @title          HazardWatch Edge Agent API
// @version        1.0.0
// @description    Local API of the HazardWatch offline-first edge agent.
// @BasePath       /api
func main() {
	app.Run()
}
