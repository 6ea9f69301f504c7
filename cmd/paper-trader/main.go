package main

import (
	"cmp"
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/STTM-NSU/paper-trader/internal/agent"
	"github.com/STTM-NSU/paper-trader/internal/api"
	"github.com/STTM-NSU/paper-trader/internal/bot"
	"github.com/STTM-NSU/paper-trader/internal/config"
	"github.com/STTM-NSU/paper-trader/internal/ledger"
	"github.com/STTM-NSU/paper-trader/internal/logger"
	"github.com/STTM-NSU/paper-trader/internal/marketdata"
	"github.com/STTM-NSU/paper-trader/internal/server"
	"github.com/STTM-NSU/paper-trader/internal/store"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

const (
	_cfgFilePath = "./configs/paper-trader.yaml"
)

func main() {
	envErr := godotenv.Load()

	cfg, err := config.LoadTradingBotConfig(cmp.Or(os.Getenv("PAPER_TRADER_CONFIG"), _cfgFilePath))
	if err != nil {
		log.Fatalf("%s: can't load config", err)
	}

	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Fatalf("%s: can't parse log level", err)
	}
	zapLogger, loggerSync, err := logger.NewZapLogger(level)
	if err != nil {
		log.Fatalf("%s: can't init logger", err)
	}
	defer loggerSync()

	if envErr != nil {
		zapLogger.Warnf("can't detect .env file")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	s, err := store.OpenFromEnv(ctx)
	if err != nil {
		zapLogger.Fatalf("%s: can't open store", err)
	}
	defer s.Close()
	zapLogger.Infof("using %s store", s.Dialect())

	l := ledger.New(s, cfg.SymbolConfigs, zapLogger)
	md := marketdata.NewClient(cfg.MarketData, cfg.Indicators, cfg.Symbols, zapLogger)

	var a agent.Agent
	if cfg.Agent.Address != "" {
		a = agent.NewWebhookAgent(cfg.Agent, zapLogger)
	}

	tradingBot := bot.NewTradingBot(cfg, l, md, a, zapLogger)
	if err := tradingBot.Init(ctx); err != nil {
		zapLogger.Fatalf("%s: can't init bot", err)
	}

	if level != logger.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := server.NewHTTPServer(ctx, cfg.HTTP.Port, api.NewRouter(api.NewHandler(l, md, zapLogger)))
	zapLogger.Infof("serving api on :%s", cfg.HTTP.Port)
	run(ctx, cancel, srv, tradingBot, zapLogger)
	zapLogger.Infof("shut down")
}

type apiServer interface {
	Run(ctx context.Context) error
}

type tradingLoop interface {
	Start(ctx context.Context) error
}

// run serves the api next to the bot until ctx is done, then waits for the api
// to drain so nothing deferred in main closes the store under a request. The
// api keeps serving after the last cycle. A failing api cancels ctx.
func run(ctx context.Context, cancel context.CancelFunc, srv apiServer, b tradingLoop, logger logger.Logger) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := srv.Run(ctx); err != nil {
			logger.Errorf("%s: api server stopped", err)
			cancel()
		}
	}()

	if err := b.Start(ctx); err != nil {
		logger.Errorf("%s: bot stopped", err)
	}

	<-ctx.Done()
	logger.Infof("shutting down")
	<-done
}
