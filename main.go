package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	logger "github.com/sirupsen/logrus"

	"gextrader/src/database"
	"gextrader/src/executors"
	"gextrader/src/repository"
	"gextrader/src/risk"
	"gextrader/src/server"
)

var (
	PORT     = os.Getenv("SERVER_PORT")
	APP_NAME = os.Getenv("APP_NAME")
)

func SetupLogger() {
	levelStr := strings.ToLower(os.Getenv("LOG_LEVEL"))

	level, err := logger.ParseLevel(levelStr)
	if err != nil {
		level = logger.DebugLevel
	}

	logger.SetLevel(level)
	logger.SetFormatter(&logger.TextFormatter{
		FullTimestamp: true,
	})
}

func main() {
	SetupLogger()
	defer handlePanic()

	if err := database.InitMainDB(); err != nil {
		logger.WithError(err).Fatal("Failed to connect to database")
	}

	cfg := executors.GetConfig()
	riskState := risk.NewDailyState(cfg.RiskLimits())

	ctx, cancel := context.WithCancel(context.Background())
	loopDone := make(chan error, 1)
	go func() {
		loopDone <- executors.StartLoop(ctx, riskState)
	}()

	port := PORT
	if port == "" {
		port = server.GetConfig().Port
	}
	server.StartServer(port, riskState, repository.NewDecisionRepository())

	cancel()
	if err := <-loopDone; err != nil {
		logger.WithError(err).Error("trading loop exited with error")
	}
}

func handlePanic() {
	if r := recover(); r != nil {
		logger.WithError(fmt.Errorf("%+v", r)).Error(fmt.Sprintf("Application %s panic", APP_NAME))
	}
	//nolint
	time.Sleep(time.Second * 5)
}
