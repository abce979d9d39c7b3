// Package importer loads markdown posts with YAML front matter into a site.
package importer

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pagesmith/internal/content"
	"github.com/pagesmith/internal/db"
	"github.com/pagesmith/internal/service"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

var ErrUnterminatedFrontMatter = errors.New("front matter is not terminated")

var pubDateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"Jan 2 2006",
	"Jan 02 2006",
	"January 2, 2006",
}

type frontMatter struct {
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
	PubDate     string `yaml:"pubDate"`
	Draft       bool   `yaml:"draft"`
}

// Post is one parsed source file.
type Post struct {
	Slug  string
	Input service.PostInput
}

// Parse splits front matter from the markdown body and renders the body to
// HTML. The slug comes from the file name.
func Parse(filename string, src []byte) (*Post, error) {
	meta, body, err := splitFrontMatter(src)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}

	var fm frontMatter
	if len(meta) > 0 {
		if err := yaml.Unmarshal(meta, &fm); err != nil {
			return nil, fmt.Errorf("%s: parse front matter: %w", filename, err)
		}
	}

	slug := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	title := strings.TrimSpace(fm.Title)
	if title == "" {
		title = slug
	}

	html, err := content.RenderMarkdown(string(body))
	if err != nil {
		return nil, fmt.Errorf("%s: render markdown: %w", filename, err)
	}

	published := !fm.Draft
	input := service.PostInput{
		Slug:        slug,
		Title:       title,
		Content:     html,
		Description: strings.TrimSpace(fm.Description),
		Published:   &published,
	}
	if raw := strings.TrimSpace(fm.PubDate); raw != "" {
		at, err := parsePubDate(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filename, err)
		}
		input.CreatedAt = &at
		input.PublishedAt = &at
	}
	return &Post{Slug: slug, Input: input}, nil
}

func parsePubDate(raw string) (time.Time, error) {
	for _, layout := range pubDateLayouts {
		if at, err := time.Parse(layout, raw); err == nil {
			return at.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized pubDate %q", raw)
}

func splitFrontMatter(src []byte) ([]byte, []byte, error) {
	src = bytes.TrimPrefix(src, []byte("\xef\xbb\xbf"))
	normalized := bytes.ReplaceAll(src, []byte("\r\n"), []byte("\n"))
	if !bytes.HasPrefix(normalized, []byte("---\n")) {
		return nil, normalized, nil
	}
	rest := normalized[len("---\n"):]
	if bytes.HasPrefix(rest, []byte("---\n")) {
		return nil, rest[len("---\n"):], nil
	}
	end := bytes.Index(rest, []byte("\n---"))
	if end < 0 {
		return nil, nil, ErrUnterminatedFrontMatter
	}
	meta := rest[:end]
	body := rest[end+len("\n---"):]
	if nl := bytes.IndexByte(body, '\n'); nl >= 0 {
		body = body[nl+1:]
	} else {
		body = nil
	}
	return meta, body, nil
}

// Writer is the part of PostService the importer needs.
type Writer interface {
	UpsertBySlug(actorID uint, siteSlug string, input service.PostInput) (*db.Post, error)
}

// Result counts what an import run did.
type Result struct {
	Imported int
	Failed   int
}

// ImportDir upserts every .md and .mdx file in dir, in name order. A file
// that fails is logged and skipped.
func ImportDir(w Writer, actorID uint, siteSlug, dir string, log zerolog.Logger) (Result, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return Result{}, fmt.Errorf("read %s: %w", dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".md", ".mdx":
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	var result Result
	for _, name := range names {
		src, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return result, fmt.Errorf("read %s: %w", name, err)
		}
		post, err := Parse(name, src)
		if err == nil {
			_, err = w.UpsertBySlug(actorID, siteSlug, post.Input)
		}
		if err != nil {
			// 站点不存在或无权写入时整体失败
			if errors.Is(err, service.ErrSiteNotFound) || errors.Is(err, service.ErrNotAuthorized) {
				return result, err
			}
			result.Failed++
			log.Warn().Err(err).Str("file", name).Msg("skip post")
			continue
		}
		result.Imported++
		log.Info().Str("slug", post.Slug).Msg("imported")
	}
	return result, nil
}
