package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"

	"github.com/csg33k/catering-docgen/internal/adapters/postgres"
	sqliteadapter "github.com/csg33k/catering-docgen/internal/adapters/sqlite"
)

const (
	binary   = "bin/docgen-server"
	templDir = "./internal/templates"
)

// Migrate applies the embedded migrations to the configured database
// (DB_DRIVER=postgres uses DATABASE_URL, otherwise DB_PATH).
func Migrate() error {
	if os.Getenv("DB_DRIVER") == "postgres" {
		fmt.Println(">> migrating postgres")
		return postgres.Migrate(os.Getenv("DATABASE_URL"))
	}
	path := os.Getenv("DB_PATH")
	if path == "" {
		path = "docgen.db"
	}
	fmt.Println(">> migrating sqlite", path)
	repo, err := sqliteadapter.New(path)
	if err != nil {
		return err
	}
	return repo.Close()
}

// Generate runs templ generate targeting the templates directory.
// Run it after editing a .templ file; the _templ.go output is committed.
func Generate() error {
	if _, err := exec.LookPath("templ"); err != nil {
		fmt.Println(">> templ not found; install with:")
		fmt.Println("   go install github.com/a-h/templ/cmd/templ@v0.3.1001")
		return err
	}
	fmt.Println(">> templ generate", templDir)
	return sh.Run("templ", "generate", templDir)
}

// Build generates templ output, tidies deps, then compiles to ./bin/docgen-server.
func Build() error {
	mg.Deps(Generate, Tidy)
	fmt.Println(">> Building server binary...")
	return sh.Run("go", "build", "-o", binary, "./cmd/server")
}

// Run builds then executes the binary.
func Run() error {
	mg.Deps(Build)
	fmt.Println(">> Starting server ...")
	return sh.RunV("./" + binary)
}

// Dev generates templates then starts the server via go run.
// Use Watch for live template reloading.
func Dev() error {
	mg.Deps(Generate)
	fmt.Println(">> Dev mode: go run ./cmd/server ...")
	cmd := exec.Command("go", "run", "./cmd/server")
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = append(os.Environ(), "LOG_LEVEL=debug")
	return cmd.Run()
}

// Watch runs templ generate --watch in the background and the server in the
// foreground. Ctrl-C stops both.
func Watch() error {
	mg.Deps(Generate)

	fmt.Println(">> Starting templ watcher...")
	watcher := exec.Command("templ", "generate", "--watch", "-f", templDir)
	watcher.Stdout = os.Stdout
	watcher.Stderr = os.Stderr
	if err := watcher.Start(); err != nil {
		return fmt.Errorf("start templ watcher: %w", err)
	}

	fmt.Println(">> Starting server (go run)...")
	server := exec.Command("go", "run", "./cmd/server")
	server.Stdout = os.Stdout
	server.Stderr = os.Stderr
	server.Env = append(os.Environ(), "LOG_LEVEL=debug")
	if err := server.Start(); err != nil {
		watcher.Process.Kill()
		return fmt.Errorf("start server: %w", err)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	fmt.Println("\n>> Stopping...")
	server.Process.Kill()
	watcher.Process.Kill()
	return nil
}

// Minio starts a throwaway MinIO container for STORAGE_DRIVER=minio.
func Minio() error {
	if _, err := exec.LookPath("docker"); err != nil {
		fmt.Println(">> docker not found; point MINIO_ENDPOINT at an existing server instead.")
		return err
	}
	user := os.Getenv("MINIO_ACCESS_KEY")
	pass := os.Getenv("MINIO_SECRET_KEY")
	if user == "" || pass == "" {
		return fmt.Errorf("MINIO_ACCESS_KEY and MINIO_SECRET_KEY must be set")
	}
	fmt.Println(">> docker run minio on :9000")
	return sh.RunV("docker", "run", "-d", "--rm", "--name", "docgen-minio",
		"-p", "9000:9000", "-e", "MINIO_ROOT_USER="+user, "-e", "MINIO_ROOT_PASSWORD="+pass,
		"minio/minio", "server", "/data")
}

// Tidy runs go mod tidy.
func Tidy() error {
	fmt.Println(">> go mod tidy...")
	return sh.Run("go", "mod", "tidy")
}

// Test runs all unit tests. Postgres tests run when DATABASE_URL is set.
func Test() error {
	fmt.Println(">> Running tests...")
	return sh.RunV("go", "test", "./...")
}

// Lint runs golangci-lint if available.
func Lint() error {
	if _, err := exec.LookPath("golangci-lint"); err != nil {
		fmt.Println(">> golangci-lint not found; skipping.")
		return nil
	}
	return sh.Run("golangci-lint", "run", "./...")
}

// Clean removes build artifacts, generated PDFs and the local SQLite DB.
func Clean() error {
	fmt.Println(">> Cleaning...")
	os.RemoveAll("bin")
	os.RemoveAll("generated")
	if err := os.Remove("docgen.db"); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Install builds and installs the binary to $GOPATH/bin.
func Install() error {
	mg.Deps(Build)
	return sh.Run("go", "install", "./cmd/server")
}

func init() {
	err := godotenv.Load()
	if err != nil {
		slog.Warn("error loading .env file", "err", err)
	}
}
