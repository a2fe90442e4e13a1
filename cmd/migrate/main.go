package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"

	"github.com/fdg312/meal-planner/internal/config"
	"github.com/fdg312/meal-planner/internal/dbmigrate"
	"github.com/fdg312/meal-planner/internal/logging"
)

func main() {
	dir := flag.String("dir", "", "read migrations from this directory instead of the embedded set")
	requireDirect := flag.Bool("direct", false, "only accept DATABASE_URL_DIRECT")
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: migrate [-dir path] [-direct] up|down|status|version|redo|reset|up-to N|down-to N")
		flag.PrintDefaults()
	}
	flag.Parse()

	cfg := config.Load()
	log := logging.New(cfg.LogLevel, cfg.Env)

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}
	command, args := flag.Arg(0), flag.Args()[1:]
	switch command {
	case "up", "down", "status", "version", "redo", "reset":
	case "up-to", "down-to":
		if len(args) != 1 {
			log.Fatalf("%s needs a target version", command)
		}
	default:
		log.Fatalf("unsupported command %q", command)
	}

	sel, err := dbmigrate.SelectDatabaseURL(cfg, *requireDirect)
	if err != nil {
		log.WithError(err).Fatal("migrate")
	}
	if sel.Warning != "" {
		log.Warn(sel.Warning)
	}
	log.WithFields(logrus.Fields{"command": command, "source": sel.Source}).Info("migrate: running")

	if err := dbmigrate.Run(context.Background(), command, sel.URL, *dir, args...); err != nil {
		log.WithError(err).Fatal("migrate failed")
	}
	log.Infof("migrate: %s completed", command)
}
