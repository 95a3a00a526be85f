package main

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"gextrader/src/database"
	"gextrader/src/executors"
	"gextrader/src/repository"
	"gextrader/src/risk"
	"gextrader/src/server"
)

var Version string

func main() {
	app := cli.NewApp()
	app.Name = "gextrader CMD"
	app.Usage = "The gextrader command line interface"

	app.Commands = []cli.Command{
		traderCMD,
		serverCMD,
	}

	if err := app.Run(os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var (
	traderCMD = cli.Command{
		Name:        "trader",
		Usage:       "run the trading loop",
		Action:      traderAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Run the trading loop with the operational HTTP surface`,
	}
	serverCMD = cli.Command{
		Name:        "server",
		Usage:       "run the API server",
		Action:      serverAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Run the API server without trading`,
	}
)

func traderAction(_ *cli.Context) error {

	logrus.Info("Starting trader CMD")

	if err := database.InitMainDB(); err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}

	cfg := executors.GetConfig()
	riskState := risk.NewDailyState(cfg.RiskLimits())

	ctx, cancel := context.WithCancel(context.Background())
	loopDone := make(chan error, 1)
	go func() {
		loopDone <- executors.StartLoop(ctx, riskState)
	}()

	// Blocks until SIGINT/SIGTERM.
	server.StartServer(server.GetConfig().Port, riskState, repository.NewDecisionRepository())

	cancel()
	if err := <-loopDone; err != nil {
		logrus.WithError(err).Error("trading loop exited with error")
		return err
	}
	return nil
}

func serverAction(_ *cli.Context) error {

	logrus.Info("Starting server CMD")

	if err := database.InitMainDB(); err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}

	cfg := executors.GetConfig()
	riskState := risk.NewDailyState(cfg.RiskLimits())

	server.StartServer(server.GetConfig().Port, riskState, repository.NewDecisionRepository())
	return nil
}
