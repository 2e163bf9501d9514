package main

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/davidleathers/secops-incident-engine/internal/infrastructure/config"
	"github.com/davidleathers/secops-incident-engine/internal/infrastructure/database"
	"github.com/davidleathers/secops-incident-engine/internal/infrastructure/telemetry"
)

var migrationName = regexp.MustCompile(`^[a-z0-9_]+$`)

func main() {
	var (
		action = flag.String("action", "up", "Migration action: up, down, status, create")
		name   = flag.String("name", "", "Migration name (for create action)")
		dir    = flag.String("dir", "migrations", "Migrations directory (for create action)")
		steps  = flag.Int("steps", 0, "Number of migrations to run (0 = all)")
	)
	flag.Parse()

	logger, err := telemetry.NewLogger("info", "development")
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	if *action == "create" {
		up, down, err := createMigration(*dir, *name, time.Now())
		if err != nil {
			logger.Fatal("create migration failed", zap.Error(err))
		}
		logger.Info("created migration", zap.String("up", up), zap.String("down", down))
		return
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	migrator, err := database.NewMigrator(cfg.Database.URL, logger)
	if err != nil {
		logger.Fatal("failed to create migrator", zap.Error(err))
	}
	defer migrator.Close()

	switch *action {
	case "up":
		err = migrator.Up(*steps)
	case "down":
		err = migrator.Down(*steps)
	case "status":
		var (
			version   uint
			dirty, ok bool
		)
		version, dirty, ok, err = migrator.Version()
		if err == nil {
			if ok {
				logger.Info("migration status", zap.Uint("version", version), zap.Bool("dirty", dirty))
			} else {
				logger.Info("migration status", zap.String("version", "none"))
			}
		}
	default:
		err = fmt.Errorf("unknown action %q", *action)
	}
	if err != nil {
		logger.Fatal("migration failed", zap.String("action", *action), zap.Error(err))
	}
}

// createMigration writes an empty up/down pair numbered after the highest existing version.
func createMigration(dir, name string, now time.Time) (string, string, error) {
	if !migrationName.MatchString(name) {
		return "", "", errors.New("name must be lower snake case")
	}
	next, err := nextVersion(os.DirFS(dir))
	if err != nil {
		return "", "", err
	}

	base := fmt.Sprintf("%06d_%s", next, name)
	up := filepath.Join(dir, base+".up.sql")
	down := filepath.Join(dir, base+".down.sql")
	header := fmt.Sprintf("-- %s\n-- Created at: %s\n\n", name, now.UTC().Format(time.RFC3339))

	if err := os.WriteFile(up, []byte(header), 0o644); err != nil {
		return "", "", err
	}
	if err := os.WriteFile(down, []byte(header), 0o644); err != nil {
		return "", "", err
	}
	return up, down, nil
}

func nextVersion(fsys fs.FS) (int, error) {
	files, err := fs.Glob(fsys, "*.up.sql")
	if err != nil {
		return 0, err
	}
	highest := 0
	for _, f := range files {
		prefix, _, found := strings.Cut(f, "_")
		if !found {
			continue
		}
		v, err := strconv.Atoi(prefix)
		if err != nil {
			continue
		}
		if v > highest {
			highest = v
		}
	}
	return highest + 1, nil
}
