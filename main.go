package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"go.uber.org/zap"

	"mlserve/classifier"
	"mlserve/dataset"
	"mlserve/db"
	qhttp "mlserve/http"
	"mlserve/logging"
	"mlserve/ml"
	"mlserve/monitoring"
)

var version string

func info() string {
	return fmt.Sprintf("mlserve git=%s go=%s", version, runtime.Version())
}

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "configuration file (default config.yaml)")
	var showVersion bool
	flag.BoolVar(&showVersion, "version", false, "print version information")
	flag.Parse()
	if showVersion {
		fmt.Println(info())
		os.Exit(0)
	}

	explicit := configPath != ""
	if !explicit {
		configPath = defaultConfigPath
	}
	config, err := loadConfig(configPath, explicit)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(config.Log)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	if err := run(config, logger); err != nil {
		logger.Fatal("service failed", zap.Error(err))
	}
	logger.Info("exiting")
}

func run(config *Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The service cannot answer anything without its datasets.
	iris, err := dataset.LoadIris()
	if err != nil {
		return fmt.Errorf("load iris dataset: %w", err)
	}
	titanicSource := dataset.TitanicSource{Path: config.Titanic.DatasetPath}
	if _, err := titanicSource.Frame(); err != nil {
		return fmt.Errorf("load titanic dataset: %w", err)
	}
	logger.Info("datasets loaded",
		zap.Int("iris_rows", iris.Len()),
		zap.String("titanic_source", titanicSource.Name()))

	hub := monitoring.NewHub(logger.Named("events"))
	hub.Start()
	defer hub.Stop()

	common := []classifier.Option{
		classifier.WithLogger(logger.Named("classifier")),
		classifier.WithNotifier(hub),
	}
	var history *db.History
	if config.History.Path != "" {
		history, err = db.OpenHistory(config.History.Path)
		if err != nil {
			return fmt.Errorf("open training history: %w", err)
		}
		defer history.Close()
		common = append(common, classifier.WithRecorder(history))
		logger.Info("training history opened", zap.String("path", config.History.Path))
	}

	flowerOpts := append([]classifier.Option{
		classifier.WithTestRatio(config.Flowers.TestRatio),
		classifier.WithCacheSize(config.Flowers.CacheSize),
		classifier.WithForestTrees(config.Flowers.ForestTrees),
	}, common...)
	tree, err := classifier.NewFlowerStore(classifier.DecisionTree, iris, flowerOpts...)
	if err != nil {
		return err
	}
	forest, err := classifier.NewFlowerStore(classifier.RandomForest, iris, flowerOpts...)
	if err != nil {
		return err
	}

	seed := config.Titanic.Seed
	titanic, err := classifier.NewSurvivalStore(titanicSource, config.Titanic.ArtifactPath, append([]classifier.Option{
		classifier.WithTestRatio(config.Titanic.TestRatio),
		classifier.WithMaxDepth(config.Titanic.MaxDepth),
		classifier.WithCacheSize(config.Titanic.CacheSize),
		classifier.WithRand(func() *rand.Rand { return ml.NewSeededRand(seed) }),
	}, common...)...)
	if err != nil {
		return err
	}

	if config.Titanic.WatchArtifact {
		watcher, err := classifier.WatchArtifact(titanic, logger.Named("watcher"))
		if err != nil {
			return fmt.Errorf("watch artifact: %w", err)
		}
		watcher.Start(ctx)
		defer watcher.Close()
		logger.Info("watching model artifact", zap.String("path", titanic.ArtifactPath()))
	}

	handlers := &qhttp.Handlers{
		Tree:        tree,
		Forest:      forest,
		Titanic:     titanic,
		Events:      hub.HandleWebSocket,
		SaveOnTrain: config.Titanic.SaveOnTrain,
		Logger:      logger.Named("http"),
	}
	if history != nil {
		handlers.History = history
	}
	server, err := qhttp.NewServer(config.HTTP, handlers, logger.Named("http"))
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}
	return server.Stop()
}
