package main

import (
	"log"

	"commitkit/frontend"
	"commitkit/internal/config"

	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"
	"github.com/wailsapp/wails/v2/pkg/options/mac"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		log.Printf("[CommitKit] Config error, using defaults: %v", err)
	}
	app := NewApp(cfg)

	err = wails.Run(&options.App{
		Title:            config.AppName,
		Width:            480,
		Height:           820,
		MinWidth:         360,
		MinHeight:        480,
		BackgroundColour: &options.RGBA{R: 15, G: 15, B: 20, A: 255},
		AssetServer: &assetserver.Options{
			Assets: frontend.Assets,
		},
		OnStartup:  app.Startup,
		OnDomReady: app.DomReady,
		OnShutdown: app.Shutdown,
		Bind: []interface{}{
			app,
		},
		Mac: &mac.Options{
			TitleBar: &mac.TitleBar{
				TitlebarAppearsTransparent: true,
				HideTitle:                  true,
				FullSizeContent:            true,
			},
			About: &mac.AboutInfo{
				Title:   config.AppName,
				Message: "Git commit side panel " + config.AppVersion,
			},
		},
	})

	if err != nil {
		log.Fatalf("[CommitKit] Fatal: %v", err)
	}
}
