package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gartstein/policydocs/internal/catalog/controller"
	"github.com/gartstein/policydocs/internal/catalog/db"
	"github.com/gartstein/policydocs/internal/catalog/events"
	"github.com/gartstein/policydocs/internal/catalog/handlers"
	"github.com/gartstein/policydocs/internal/catalog/models"
	"github.com/gartstein/policydocs/internal/catalog/storage"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Config struct for YAML configuration
type Config struct {
	GRPCPort int `yaml:"GRPC_PORT"`
	HTTPPort int `yaml:"HTTP_PORT"`

	DBDriver   string `yaml:"DB_DRIVER"`
	DBHost     string `yaml:"DB_HOST"`
	DBPort     int    `yaml:"DB_PORT"`
	DBUser     string `yaml:"DB_USER"`
	DBPassword string `yaml:"DB_PASSWORD"`
	DBName     string `yaml:"DB_NAME"`
	DBSSLMode  string `yaml:"DB_SSLMODE"`
	DBPath     string `yaml:"DB_PATH"`

	// StorageDriver is "disk" (default) or "s3".
	StorageDriver string           `yaml:"STORAGE_DRIVER"`
	StoragePath   string           `yaml:"STORAGE_PATH"`
	S3            storage.S3Config `yaml:"S3"`

	KafkaBrokers []string `yaml:"KAFKA_BROKERS"`
	Topic        string   `yaml:"TOPIC"`
	JWTSecret    string   `yaml:"JWT_SECRET"`

	AdminEmail        string `yaml:"ADMIN_EMAIL"`
	AdminPasswordHash string `yaml:"ADMIN_PASSWORD_HASH"`
}

func main() {
	configPath := flag.String("config", filepath.Join("internal", "catalog", "config", "config.yaml"), "path to the YAML config")
	bootstrapAdmin := flag.Bool("bootstrap-admin", false, "create the admin company and its admin user, then exit")
	flag.Parse()

	logger := initLogger()
	defer func(logger *zap.Logger) {
		_ = logger.Sync()
	}(logger)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	repo, err := connectDatabase(initDatabase(cfg), logger)
	if err != nil {
		logger.Fatal("failed to initialize database", zap.Error(err))
	}
	defer repo.Close()

	store, err := initStorage(context.Background(), cfg)
	if err != nil {
		logger.Fatal("failed to initialize file storage", zap.Error(err))
	}

	producer, err := initProducer(cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize Kafka producer", zap.Error(err))
	}
	defer producer.Close()

	catalogSvc := controller.NewService(repo, store, producer, logger)

	if *bootstrapAdmin {
		if err := runBootstrap(catalogSvc, cfg, logger); err != nil {
			logger.Fatal("bootstrap failed", zap.Error(err))
		}
		return
	}

	handler := handlers.NewHandler(catalogSvc, cfg.JWTSecret, logger)
	server := handlers.NewServer(cfg.GRPCPort, cfg.HTTPPort, logger)
	if err := server.RegisterHTTPHandler(handler, cfg.JWTSecret); err != nil {
		logger.Fatal("Failed to register HTTP handler", zap.Error(err))
	}

	go func() {
		if err := server.Start(); err != nil {
			logger.Fatal("Failed to start servers", zap.Error(err))
		}
	}()

	waitForShutdown(server, logger)
}

// initLogger initializes a Zap production logger.
func initLogger() *zap.Logger {
	logger, _ := zap.NewProduction()
	return logger
}

// loadConfig reads the YAML config. Secrets may be overridden from the
// environment.
func loadConfig(path string) (*Config, error) {
	file, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(file, &cfg); err != nil {
		return nil, err
	}

	overrides := map[string]*string{
		"DB_PASSWORD":          &cfg.DBPassword,
		"JWT_SECRET":           &cfg.JWTSecret,
		"S3_ACCESS_KEY_ID":     &cfg.S3.AccessKeyID,
		"S3_SECRET_ACCESS_KEY": &cfg.S3.SecretAccessKey,
		"ADMIN_PASSWORD_HASH":  &cfg.AdminPasswordHash,
	}
	for name, field := range overrides {
		if v, ok := os.LookupEnv(name); ok {
			*field = v
		}
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is not set")
	}
	return &cfg, nil
}

// initDatabase initializes the database connection.
func initDatabase(cfg *Config) *db.Config {
	return &db.Config{
		Driver:   cfg.DBDriver,
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
		DBName:   cfg.DBName,
		SSLMode:  cfg.DBSSLMode,
		Path:     cfg.DBPath,
	}
}

// connectDatabase retries until the database accepts connections, which
// covers a database container that starts together with the service.
func connectDatabase(conf *db.Config, logger *zap.Logger) (*db.Repository, error) {
	var repo *db.Repository
	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = time.Minute
	err := backoff.RetryNotify(func() error {
		var err error
		repo, err = db.NewRepository(conf)
		return err
	}, policy, func(err error, wait time.Duration) {
		logger.Warn("database not ready, retrying", zap.Error(err), zap.Duration("wait", wait))
	})
	return repo, err
}

func initStorage(ctx context.Context, cfg *Config) (storage.Store, error) {
	switch cfg.StorageDriver {
	case "s3":
		return storage.NewS3Store(ctx, cfg.S3)
	case "disk", "":
		root := cfg.StoragePath
		if root == "" {
			root = "media"
		}
		return storage.NewDiskStore(root)
	}
	return nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
}

type eventProducer interface {
	controller.EventProducer
	Close()
}

func initProducer(cfg *Config, logger *zap.Logger) (eventProducer, error) {
	if len(cfg.KafkaBrokers) == 0 {
		logger.Warn("no Kafka brokers configured, events are discarded")
		return events.NopProducer{}, nil
	}
	return events.NewProducer(cfg.KafkaBrokers, cfg.Topic, logger)
}

// runBootstrap creates the "admin" company with a founding admin account
// unless it exists already.
func runBootstrap(svc *controller.Service, cfg *Config, logger *zap.Logger) error {
	if cfg.AdminEmail == "" || cfg.AdminPasswordHash == "" {
		return fmt.Errorf("ADMIN_EMAIL and ADMIN_PASSWORD_HASH are required")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	company, created, err := svc.Bootstrap(ctx, models.NewCompany{
		Name:         "admin",
		FullName:     "Administration",
		Email:        cfg.AdminEmail,
		FirstName:    "Site",
		LastName:     "Admin",
		PasswordHash: cfg.AdminPasswordHash,
	})
	if err != nil {
		return err
	}
	if !created {
		logger.Info("admin company already exists", zap.String("company", company.Name))
		return nil
	}
	logger.Info("admin company created",
		zap.String("company", company.Name),
		zap.String("code", company.Code),
	)
	return nil
}

// waitForShutdown blocks until an interrupt or SIGTERM is received, then shuts down servers.
func waitForShutdown(server *handlers.Server, logger *zap.Logger) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	server.Stop()
	logger.Info("Servers stopped properly")
}
