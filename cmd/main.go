package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"convictionexecutor/cmd/executor"
	"convictionexecutor/src/auth"
	"convictionexecutor/src/database"
)

var Version string

func main() {
	app := cli.NewApp()
	app.Name = "Conviction CMD"
	app.Usage = "The conviction executor command line interface"
	app.Version = Version
	app.Before = func(_ *cli.Context) error {
		setupLogger()
		return nil
	}

	app.Commands = []cli.Command{
		serveCMD,
		executeCMD,
		cleanupCMD,
		migrateCMD,
		hashTokenCMD,
	}

	if err := app.Run(os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var (
	serveCMD = cli.Command{
		Name:        "serve",
		Usage:       "run scheduler and API",
		Action:      serveAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Run the scheduler for every active portfolio and serve the HTTP API`,
	}
	executeCMD = cli.Command{
		Name:      "execute",
		Usage:     "run one strategy cycle",
		Action:    executeAction,
		ArgsUsage: "",
		Flags: []cli.Flag{
			cli.UintFlag{Name: "portfolio", Usage: "portfolio id"},
		},
		Description: `Run a single cycle for one portfolio and print the execution record`,
	}
	cleanupCMD = cli.Command{
		Name:      "cleanup",
		Usage:     "fail stuck executions",
		Action:    cleanupAction,
		ArgsUsage: "",
		Flags: []cli.Flag{
			cli.DurationFlag{Name: "timeout", Value: time.Hour, Usage: "age after which a running execution is stuck"},
		},
		Description: `Mark running executions older than --timeout as failed`,
	}
	migrateCMD = cli.Command{
		Name:        "migrate",
		Usage:       "apply schema and data migrations",
		Action:      migrateAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Run AutoMigrate and the pending data migrations`,
	}
	hashTokenCMD = cli.Command{
		Name:        "hash-token",
		Usage:       "print the bcrypt hash for ADMIN_TOKEN_HASH",
		Action:      hashTokenAction,
		ArgsUsage:   "<token>",
		Flags:       []cli.Flag{},
		Description: `Hash an admin token for the X-Admin-Token check`,
	}
)

func setupLogger() {
	config := database.GetConfig()

	level, err := logrus.ParseLevel(strings.ToLower(config.LogLevel))
	if err != nil {
		level = logrus.DebugLevel
	}
	logrus.SetLevel(level)

	if strings.ToLower(config.LogFormat) == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
		return
	}
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func serveAction(_ *cli.Context) error {
	logrus.Info("Starting serve CMD")

	ctx, stop := signalContext()
	defer stop()

	e, err := executor.New(logrus.WithField("cmd", "serve"))
	if err != nil {
		logrus.WithError(err).Error("Starting cmd")
		return err
	}

	return e.Serve(ctx)
}

func executeAction(c *cli.Context) error {
	portfolioID := c.Uint("portfolio")
	if portfolioID == 0 {
		return errors.New("--portfolio is required")
	}

	ctx, stop := signalContext()
	defer stop()

	e, err := executor.New(logrus.WithField("cmd", "execute"))
	if err != nil {
		logrus.WithError(err).Error("Starting cmd")
		return err
	}

	exec, err := e.ExecuteOnce(ctx, portfolioID)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(exec)
}

func cleanupAction(c *cli.Context) error {
	ctx, stop := signalContext()
	defer stop()

	e, err := executor.New(logrus.WithField("cmd", "cleanup"))
	if err != nil {
		logrus.WithError(err).Error("Starting cmd")
		return err
	}

	n, err := e.Cleanup(ctx, c.Duration("timeout"))
	if err != nil {
		return err
	}
	logrus.WithField("cleaned", n).Info("stuck execution cleanup done")
	return nil
}

func migrateAction(_ *cli.Context) error {
	logrus.Info("Starting migrate CMD")
	if err := database.InitMainDB(); err != nil {
		logrus.WithError(err).Error("Failed to migrate database")
		return err
	}
	return nil
}

func hashTokenAction(c *cli.Context) error {
	token := c.Args().First()
	if token == "" {
		return errors.New("usage: hash-token <token>")
	}
	hash, err := auth.HashToken(token)
	if err != nil {
		return err
	}
	fmt.Println(hash)
	return nil
}
