// Command train_model trains the survival classifier offline and writes the
// artifact a running server can pick up with /titanic/load or its watcher.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"

	"go.uber.org/zap"

	"mlserve/classifier"
	"mlserve/dataset"
	"mlserve/db"
	"mlserve/logging"
	"mlserve/ml"
)

func main() {
	datasetPath := flag.String("dataset", "", "titanic CSV path (default: bundled excerpt)")
	modelPath := flag.String("model_path", classifier.DefaultArtifactPath, "model output path")
	maxDepth := flag.Int("max_depth", 3, "max tree depth")
	testRatio := flag.Float64("test_ratio", 0.25, "test ratio")
	seed := flag.Int64("seed", 42, "split seed")
	historyPath := flag.String("history", "", "sqlite training log to append to")
	logLevel := flag.String("log_level", "info", "log level")
	flag.Parse()

	logger, err := logging.New(logging.Config{Level: *logLevel})
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	opts := []classifier.Option{
		classifier.WithLogger(logger),
		classifier.WithMaxDepth(*maxDepth),
		classifier.WithTestRatio(*testRatio),
		classifier.WithRand(func() *rand.Rand { return ml.NewSeededRand(*seed) }),
	}
	if *historyPath != "" {
		history, err := db.OpenHistory(*historyPath)
		if err != nil {
			logger.Fatal("failed to open training history", zap.Error(err))
		}
		defer history.Close()
		opts = append(opts, classifier.WithRecorder(history))
	}

	store, err := classifier.NewSurvivalStore(dataset.TitanicSource{Path: *datasetPath}, *modelPath, opts...)
	if err != nil {
		logger.Fatal("failed to create store", zap.Error(err))
	}
	accuracy, err := store.Train(context.Background())
	if err != nil {
		logger.Fatal("failed to train model", zap.Error(err))
	}
	if err := store.Save(); err != nil {
		logger.Fatal("failed to save model", zap.Error(err))
	}

	fmt.Printf("accuracy=%.4f model saved to %s\n", accuracy, store.ArtifactPath())
}
