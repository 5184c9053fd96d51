package main

import (
	_ "embed"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/karthikv/expense-scanner/internal/assistant"
	"github.com/karthikv/expense-scanner/internal/receipt"
	"github.com/karthikv/expense-scanner/internal/scanning"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	// Local development keeps secrets in a .env file; absence is fine.
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file loaded", "error", err)
	}

	fs := ff.NewFlagSet("expense-scanner")
	var (
		port           = fs.IntLong("port", 8080, "HTTP server port")
		dbPath         = fs.StringLong("db", "expense-scanner.db", "SQLite database file path")
		storagePath    = fs.StringLong("storage", "./uploads", "Local image storage directory")
		trashPath      = fs.StringLong("trash", "./trash", "Retention directory for deleted receipt images")
		scannerType    = fs.StringLong("scanner", "gemini", "Scanner type: 'gemini' or 'ollama'")
		geminiKey      = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel    = fs.StringLong("gemini-model", "gemini-2.5-pro", "Google Gemini model name")
		ollamaURL      = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel    = fs.StringLong("ollama-model", "llava", "Ollama model name (e.g., llava, qwen2-vl)")
		driveCreds     = fs.StringLong("drive-credentials", "", "Path to Google Drive service account JSON (enables cloud storage)")
		driveFolder    = fs.StringLong("drive-folder", "", "Google Drive folder ID for uploads")
		defaultAccount = fs.StringLong("default-account", "Personal", "Account label applied when uploads name none")
		strictMatch    = fs.BoolLong("strict-merchant-match", "Require exact merchant names in smart duplicate matching")
		ephemeral      = fs.BoolLong("ephemeral-fs", "Disable the local storage fallback (serverless filesystems are not durable)")
		enableChat     = fs.BoolLong("chat", "Enable the conversational expense assistant (needs a Gemini key)")
		authUser       = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass       = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		showVersion    = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("EXPENSE_SCANNER"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	// Initialize database
	slog.Info("Initializing database...", "path", *dbPath)
	db, err := receipt.NewGormDB(*dbPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	apiKey := *geminiKey
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}

	// Initialize scanner based on type
	var scanner scanning.Scanner
	switch *scannerType {
	case "gemini":
		if apiKey == "" {
			slog.Error("Gemini API key is required. Set --gemini-key flag or GEMINI_API_KEY environment variable")
			os.Exit(1)
		}
		slog.Info("Initializing Gemini scanner...", "model", *geminiModel)
		scanner, err = scanning.NewGemini(apiKey, *geminiModel)
		if err != nil {
			slog.Error("Failed to initialize Gemini", "error", err)
			os.Exit(1)
		}
	case "ollama":
		slog.Info("Initializing Ollama scanner...", "url", *ollamaURL, "model", *ollamaModel)
		scanner, err = scanning.NewOllama(*ollamaURL, *ollamaModel)
		if err != nil {
			slog.Error("Failed to initialize Ollama", "error", err)
			os.Exit(1)
		}
	default:
		slog.Error("Invalid scanner type", "type", *scannerType, "valid", "gemini or ollama")
		os.Exit(1)
	}
	defer scanner.Close()

	// Initialize storage chain: Drive first when configured, local
	// fallback unless the filesystem is ephemeral, sentinel otherwise.
	var chain []receipt.Uploader
	if *driveCreds != "" {
		creds, err := os.ReadFile(*driveCreds)
		if err != nil {
			slog.Error("Failed to read Drive credentials", "path", *driveCreds, "error", err)
			os.Exit(1)
		}
		drive, err := receipt.NewDriveStorage(context.Background(), creds, *driveFolder)
		if err != nil {
			slog.Error("Failed to initialize Drive storage", "error", err)
			os.Exit(1)
		}
		slog.Info("Drive storage enabled", "folder", *driveFolder)
		chain = append(chain, drive)
	}
	var local *receipt.LocalStorage
	if *ephemeral {
		slog.Info("Ephemeral filesystem: local storage fallback disabled")
	} else {
		local, err = receipt.NewLocalStorage(*storagePath, *trashPath)
		if err != nil {
			slog.Error("Failed to initialize local storage", "error", err)
			os.Exit(1)
		}
		chain = append(chain, local)
	}

	cfg := receipt.Config{
		DefaultAccount:      *defaultAccount,
		StrictMerchantMatch: *strictMatch,
	}
	service := receipt.NewService(db, scanner, receipt.NewFallbackUploader(chain...), local, cfg)

	var chat receipt.Assistant
	if *enableChat {
		if apiKey == "" {
			slog.Error("The assistant needs a Gemini API key")
			os.Exit(1)
		}
		a, err := assistant.New(apiKey, *geminiModel, service)
		if err != nil {
			slog.Error("Failed to initialize assistant", "error", err)
			os.Exit(1)
		}
		defer a.Close()
		chat = a
	}

	server := receipt.NewServer(service, chat, receipt.BasicAuth{
		Username: *authUser,
		Password: *authPass,
	})

	addr := fmt.Sprintf(":%d", *port)
	go func() {
		if err := server.Start(addr); err != nil {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr))
	if *authUser != "" || *authPass != "" {
		slog.Info("Basic auth enabled", "user", *authUser)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("Shutting down...")
}
