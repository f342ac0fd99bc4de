package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/berlinerpub/pubsite/pkg/pubsite/admin"
	"github.com/berlinerpub/pubsite/pkg/pubsite/config"
	"github.com/berlinerpub/pubsite/pkg/pubsite/database"
	"github.com/berlinerpub/pubsite/pkg/pubsite/drinks"
	"github.com/berlinerpub/pubsite/pkg/pubsite/importexport"
	"github.com/berlinerpub/pubsite/pkg/pubsite/logger"
	"github.com/berlinerpub/pubsite/pkg/pubsite/models"
	"github.com/berlinerpub/pubsite/pkg/pubsite/settings"
	"go.uber.org/zap"
	"gopkg.in/yaml.v2"
	"gorm.io/gorm"
)

// seedFile is the YAML layout accepted by -file
type seedFile struct {
	Admin struct {
		Email    string `yaml:"email"`
		Password string `yaml:"password"`
	} `yaml:"admin"`
	Settings    map[string]string `yaml:"settings"`
	Drinks      []drinks.Input    `yaml:"drinks"`
	ReplaceMenu bool              `yaml:"replace_menu"`
}

func loadSeed(path string) (*seedFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var seed seedFile
	if err := yaml.UnmarshalStrict(raw, &seed); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &seed, nil
}

func apply(db *gorm.DB, seed *seedFile, log *zap.Logger) error {
	if seed.Admin.Email != "" {
		created, err := admin.EnsureAdmin(db, seed.Admin.Email, seed.Admin.Password)
		if err != nil {
			return fmt.Errorf("admin: %w", err)
		}
		log.Info("admin account", zap.String("email", seed.Admin.Email), zap.Bool("created", created))
	}

	if len(seed.Settings) > 0 {
		if err := settings.Upsert(db, seed.Settings); err != nil {
			return fmt.Errorf("settings: %w", err)
		}
		log.Info("settings upserted", zap.Int("count", len(seed.Settings)))
	}

	if len(seed.Drinks) > 0 || seed.ReplaceMenu {
		result, err := importexport.Import(db, seed.Drinks, seed.ReplaceMenu)
		if err != nil {
			return fmt.Errorf("drinks: %w", err)
		}
		for _, e := range result.Errors {
			log.Warn("drink rejected", zap.String("error", e))
		}
		log.Info("menu imported",
			zap.Int("imported", result.Imported),
			zap.Int("skipped", result.Skipped),
			zap.Int("rejected", len(result.Errors)),
		)
	}
	return nil
}

func main() {
	file := flag.String("file", "seed.yaml", "YAML seed file")
	flag.Parse()

	log, err := logger.New(logger.Config{Level: "info", Development: true})
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer log.Sync()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config", zap.Error(err))
	}

	seed, err := loadSeed(*file)
	if err != nil {
		log.Fatal("failed to read seed file", zap.Error(err))
	}

	db, err := database.Open(cfg.Database)
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}
	defer database.Close(db)

	if err := models.AutoMigrate(db); err != nil {
		log.Fatal("failed to run migrations", zap.Error(err))
	}

	if err := apply(db, seed, log); err != nil {
		log.Fatal("seed failed", zap.Error(err))
	}
	log.Info("seed completed", zap.String("file", *file))
}
