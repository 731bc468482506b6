package main

import (
	"popup-engine/internal/app/server"
	"popup-engine/internal/config"
)

func main() {
	server.Run(config.Load())
}
