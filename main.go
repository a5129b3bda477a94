package main

import (
	"log"
	"net/http"

	"dcpinventory-desktop/internal/config"

	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"
)

func main() {
	cfg, err := config.Load(config.DefaultEnvFiles...)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	app := NewApp(cfg)

	err = wails.Run(&options.App{
		Title:     "DCP Inventory Importer",
		Width:     1200,
		Height:    800,
		MinWidth:  900,
		MinHeight: 600,
		AssetServer: &assetserver.Options{
			Handler: http.FileServer(http.Dir(cfg.FrontendDir)),
		},
		OnStartup:  app.startup,
		OnShutdown: app.shutdown,
		Bind: []interface{}{
			app,
		},
	})
	if err != nil {
		log.Fatalf("Error: %v", err)
	}
}
