// Trainer builds the model set once and exits. It loads saved models when
// they are usable unless -force is given.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/mimir-aip/tire-wear-predictor/pkg/app"
	"github.com/mimir-aip/tire-wear-predictor/pkg/config"
	"github.com/mimir-aip/tire-wear-predictor/pkg/logging"
	"github.com/mimir-aip/tire-wear-predictor/pkg/mlmodel"
	"github.com/mimir-aip/tire-wear-predictor/pkg/models"
)

func main() {
	force := flag.Bool("force", false, "train a new set even when saved models are usable")
	clean := flag.Bool("clean", false, "remove saved models before initializing")
	dataset := flag.String("dataset", "", "local CSV to train on (overrides DATASET_PATH)")
	fast := flag.Bool("fast", false, "use the linear strategy (overrides USE_FAST_MODEL)")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *dataset != "" {
		cfg.DatasetPath = *dataset
	}
	if *fast {
		cfg.UseFastModel = true
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	if err := run(cfg, logger, *force, *clean); err != nil {
		logger.Error("Training failed", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *zap.Logger, force, clean bool) error {
	comps, err := app.NewComponents(cfg, logger)
	if err != nil {
		return err
	}
	defer comps.Close()

	if clean {
		if err := comps.Store.Discard(); err != nil {
			return err
		}
		logger.Info("Removed saved models", zap.String("dir", comps.Store.Dir()))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var st *mlmodel.State
	if force {
		st, err = comps.Service.Retrain(ctx, models.TriggerRetrain)
	} else {
		st, err = comps.Service.Initialize(ctx)
	}
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(st.Metadata, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	fmt.Println(string(out))
	return nil
}
