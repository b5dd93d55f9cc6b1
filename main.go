package main

import (
	"fmt"
	"log"
	"net/http"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/scoutbase/recruiting-api/api"
	"github.com/scoutbase/recruiting-api/api/handlers"
	"github.com/scoutbase/recruiting-api/config"
)

func main() {
	// local runs keep their env in a .env file; deployed pods set real env vars
	_ = godotenv.Load()

	a := handlers.App{}
	a.Config = *config.New()

	if err := a.Initialize(); err != nil {
		log.Fatalf("failed to initialize: %v", err)
	}
	defer a.Shutdown()

	zap.S().Infow("recruiting-api is up and running",
		"port", a.Config.Port,
		"url", a.Config.BaseURL,
	)
	log.Fatal(http.ListenAndServe(fmt.Sprintf(":%v", a.Config.Port), api.MetricsMiddleware(a.Router)))
}
