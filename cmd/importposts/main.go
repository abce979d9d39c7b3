// Command importposts loads a directory of markdown posts into a site.
package main

import (
	"flag"
	"os"

	"github.com/pagesmith/internal/config"
	"github.com/pagesmith/internal/db"
	"github.com/pagesmith/internal/importer"
	"github.com/pagesmith/internal/logging"
	"github.com/pagesmith/internal/service"
)

func main() {
	cfg := config.Load()
	logger := logging.New(cfg.LogLevel, "console", os.Stderr)

	dir := flag.String("dir", "content/blog", "directory of .md/.mdx posts")
	site := flag.String("site", os.Getenv("DEFAULT_SITE_SLUG"), "slug of the target site")
	owner := flag.String("owner", "", "username of the site owner")
	flag.Parse()

	if *site == "" || *owner == "" {
		flag.Usage()
		os.Exit(2)
	}

	if err := db.Init(cfg.DatabaseDriver, cfg.DatabaseDSN); err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize database")
	}

	var user db.User
	if err := db.DB.Where("username = ?", *owner).First(&user).Error; err != nil {
		logger.Fatal().Err(err).Str("owner", *owner).Msg("unknown owner")
	}

	result, err := importer.ImportDir(service.NewPostService(db.DB), user.ID, service.NormalizeSlug(*site), *dir, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("import failed")
	}
	logger.Info().Int("imported", result.Imported).Int("failed", result.Failed).Msg("done")
	if result.Failed > 0 {
		os.Exit(1)
	}
}
