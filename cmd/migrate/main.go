package main

import (
	"errors"
	"log"
	"os"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/joho/godotenv"
	"github.com/saeid-a/CoachCareBack/internal/observ"
	"go.uber.org/zap"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	logger, err := observ.NewLogger(os.Getenv("APP_ENV"), os.Getenv("LOG_LEVEL"))
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	dbUrl := os.Getenv("DB_URL")
	if dbUrl == "" {
		logger.Fatal("DB_URL environment variable is required")
	}

	migrationsPath, err := findMigrations()
	if err != nil {
		logger.Fatal("migrations directory not found", zap.Error(err))
	}

	m, err := migrate.New("file://"+migrationsPath, dbUrl)
	if err != nil {
		logger.Fatal("open migrator", zap.Error(err))
	}
	defer func() { _, _ = m.Close() }()

	cmd := "up"
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}

	switch cmd {
	case "up":
		err = m.Up()
	case "down":
		err = m.Down()
	case "version":
		version, dirty, verr := m.Version()
		if verr != nil && !errors.Is(verr, migrate.ErrNilVersion) {
			logger.Fatal("read migration version", zap.Error(verr))
		}
		logger.Info("migration version", zap.Uint("version", version), zap.Bool("dirty", dirty))
		return
	default:
		logger.Fatal("unknown command, expected up, down or version", zap.String("command", cmd))
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		logger.Fatal("migration failed", zap.String("command", cmd), zap.Error(err))
	}
	logger.Info("migration complete", zap.String("command", cmd), zap.String("path", migrationsPath))
}

// findMigrations walks up from the working directory and the executable so
// the tool works from the repo root, cmd/migrate, or a built binary.
func findMigrations() (string, error) {
	var candidates []string
	if cwd, err := os.Getwd(); err == nil {
		current := cwd
		for i := 0; i < 6; i++ {
			candidates = append(candidates, filepath.Join(current, "migrations"))
			parent := filepath.Dir(current)
			if parent == current {
				break
			}
			current = parent
		}
	}
	if exePath, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exePath)
		candidates = append(candidates,
			filepath.Join(exeDir, "migrations"),
			filepath.Join(exeDir, "..", "migrations"),
			filepath.Join(exeDir, "..", "..", "migrations"),
		)
	}

	for _, candidate := range candidates {
		info, err := os.Stat(candidate)
		if err == nil && info.IsDir() {
			return filepath.Abs(candidate)
		}
	}
	return "", os.ErrNotExist
}
