// Command pagesync keeps a local file and a page in sync. Local edits are
// saved through the debounced editor session; commits from other writers are
// written back to the file.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pagesmith/internal/client"
	"github.com/pagesmith/internal/editor"
	"github.com/pagesmith/internal/logging"
)

func main() {
	server := flag.String("server", "http://localhost:8080", "pagesmith base URL")
	site := flag.String("site", "", "site slug")
	key := flag.String("key", "home", "page key")
	title := flag.String("title", "", "page title sent with every save")
	file := flag.String("file", "", "local file to mirror")
	user := flag.String("user", "", "username; empty watches read-only")
	password := flag.String("password", os.Getenv("PAGESMITH_PASSWORD"), "password")
	debounce := flag.Duration("debounce", editor.DefaultDebounce, "quiet period before a save")
	poll := flag.Duration("poll", 500*time.Millisecond, "file polling interval")
	push := flag.Bool("push", false, "on start, push the local file instead of overwriting it")
	logLevel := flag.String("log-level", "info", "log level")
	flag.Parse()

	logger := logging.New(*logLevel, "console", os.Stderr)
	if *site == "" || *file == "" {
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cl, err := client.New(*server, client.WithLogger(logger))
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid server")
	}
	readOnly := *user == ""
	if !readOnly {
		if err := cl.Login(ctx, *user, *password); err != nil {
			logger.Fatal().Err(err).Msg("login failed")
		}
	}

	mirror := newFileMirror(*file, logger)
	var local string
	var haveLocal bool
	if *push {
		local, haveLocal, err = mirror.poll()
		if err != nil {
			logger.Fatal().Err(err).Msg("read local file")
		}
	}

	session := editor.New(cl, mirror, editor.Target{SiteSlug: *site, Key: *key, Title: *title}, editor.Options{
		Debounce: *debounce,
		ReadOnly: readOnly,
		Logger:   logger,
		OnError: func(err error) {
			logger.Error().Err(err).Msg("save failed")
		},
	})
	if err := session.Load(ctx); err != nil {
		logger.Fatal().Err(err).Msg("load page")
	}
	if haveLocal {
		session.Save(local)
		session.Flush()
		// Load 已用远端内容覆盖了文件
		mirror.SetContent(session.Content())
	}

	go func() {
		if err := session.Watch(ctx, cl); err != nil && ctx.Err() == nil {
			logger.Error().Err(err).Msg("live feed stopped")
		}
	}()
	logger.Info().Str("site", *site).Str("key", *key).Str("file", *file).Bool("readOnly", readOnly).Msg("syncing")

	ticker := time.NewTicker(*poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			session.Flush()
			session.Close()
			logger.Info().Msg("stopped")
			return
		case <-ticker.C:
			content, changed, err := mirror.poll()
			if err != nil {
				logger.Warn().Err(err).Msg("read local file")
				continue
			}
			if changed {
				session.Save(content)
			}
		}
	}
}
