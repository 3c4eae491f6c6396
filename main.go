package main

import (
	"context"
	"log"
	"os"

	"github.com/CytonicMC/Cyparty/app"
	"github.com/CytonicMC/Cyparty/config"
	"github.com/CytonicMC/Cyparty/env"
	"github.com/CytonicMC/Cyparty/events"
	"github.com/CytonicMC/Cyparty/handlers"
	"github.com/CytonicMC/Cyparty/metrics"
	"github.com/CytonicMC/Cyparty/utils"
	"github.com/ethereum/go-ethereum/common"
	"github.com/nats-io/nats.go"
	"github.com/spf13/pflag"
)

func main() {
	cfg, err := config.LoadWithDotEnv()
	if err != nil {
		log.Fatalf("Error loading config: %v", err)
	}

	flagSet := pflag.NewFlagSet("cyparty", pflag.ExitOnError)
	flagSet.StringVar(&cfg.AdminsFile, "admins", cfg.AdminsFile, "YAML file listing factory admins to grant at startup")
	flagSet.StringVar(&cfg.DBPath, "db", cfg.DBPath, "path to the SQLite ledger database")
	flagSet.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "listen address for the Prometheus endpoint")
	flagSet.StringVar(&cfg.SubjectPrefix, "prefix", cfg.SubjectPrefix, "prefix applied to every NATS subject")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		log.Fatalf("Error parsing flags: %v", err)
	}
	env.SetPrefix(cfg.SubjectPrefix)

	var admins []common.Address
	if cfg.AdminsFile != "" {
		admins, err = config.LoadAdmins(cfg.AdminsFile)
		if err != nil {
			log.Fatalf("Error loading admins: %v", err)
		}
	}

	// Initialize Prometheus metrics
	metrics.InitMetrics()
	metrics.ServeMetrics(cfg.MetricsAddr)

	// Connect to NATS server
	nc, err := nats.Connect(utils.NatsUrl(cfg))
	if err != nil {
		log.Fatalf("Error connecting to NATS: %v", err)
	}
	defer nc.Close()
	log.Println("Connected to NATS!")

	// Rebuild the ledger from the store
	cyparty, err := app.New(context.Background(), cfg, admins, events.NewNatsPublisher(nc))
	if err != nil {
		log.Fatalf("Error starting ledger: %v", err)
	}
	defer cyparty.Close()
	log.Printf("Loaded %d parties from %s", cyparty.PartyRegistry.Count(), cfg.DBPath)

	// Set up handlers
	handlers.RegisterFactory(nc, cyparty.PartyRegistry)
	handlers.RegisterParties(nc, cyparty.PartyRegistry)
	handlers.RegisterAssets(nc, cyparty.PartyRegistry)

	// Keep the service running
	select {}
}
