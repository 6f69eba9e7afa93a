package main

import (
	"log"
	"net/http"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/clipquery/clipquery/internal/ai"
	"github.com/clipquery/clipquery/internal/api"
	"github.com/clipquery/clipquery/internal/chat"
	"github.com/clipquery/clipquery/internal/database"
	"github.com/clipquery/clipquery/internal/indexer"
	"github.com/clipquery/clipquery/internal/search"
	"github.com/clipquery/clipquery/internal/storage"
	"github.com/clipquery/clipquery/internal/vector"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found, using environment variables")
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	maxUploadSize := os.Getenv("MAX_UPLOAD_SIZE")
	if maxUploadSize == "" {
		maxUploadSize = "524288000"
	}
	maxSize, err := strconv.ParseInt(maxUploadSize, 10, 64)
	if err != nil {
		log.Fatal("Invalid MAX_UPLOAD_SIZE:", err)
	}

	uploadDir := os.Getenv("UPLOAD_DIR")
	if uploadDir == "" {
		uploadDir = "./uploads"
	}

	// Database configuration
	dbType := os.Getenv("DB_TYPE")
	if dbType == "" {
		dbType = "sqlite"
	}

	var dbConfig database.Config
	dbConfig.Type = dbType

	if dbType == "postgres" {
		dbConfig.Host = os.Getenv("DB_HOST")
		if dbConfig.Host == "" {
			dbConfig.Host = "localhost"
		}

		dbPortStr := os.Getenv("DB_PORT")
		if dbPortStr == "" {
			dbPortStr = "5432"
		}
		dbPort, err := strconv.Atoi(dbPortStr)
		if err != nil {
			log.Fatal("Invalid DB_PORT:", err)
		}
		dbConfig.Port = dbPort

		dbConfig.User = os.Getenv("DB_USER")
		if dbConfig.User == "" {
			dbConfig.User = "clipquery"
		}

		dbConfig.Password = os.Getenv("DB_PASSWORD")
		if dbConfig.Password == "" {
			dbConfig.Password = "clipquery_dev"
		}

		dbConfig.Name = os.Getenv("DB_NAME")
		if dbConfig.Name == "" {
			dbConfig.Name = "clipquery"
		}
	} else {
		dbConfig.SQLitePath = os.Getenv("DB_PATH")
		if dbConfig.SQLitePath == "" {
			dbConfig.SQLitePath = "./clipquery.db"
		}
	}

	localStorage, err := storage.NewLocalStorage(uploadDir)
	if err != nil {
		log.Fatal("Failed to initialize storage:", err)
	}

	db, err := database.NewDB(dbConfig)
	if err != nil {
		log.Fatal("Failed to initialize database:", err)
	}
	defer db.Close()

	migrationsPath := os.Getenv("MIGRATIONS_PATH")
	if migrationsPath == "" {
		migrationsPath = "./migrations"
	}

	log.Printf("Running database migrations from %s", migrationsPath)
	if err := db.RunMigrations(migrationsPath); err != nil {
		log.Fatal("Failed to run migrations:", err)
	}

	videoRepo := database.NewVideoRepository(db)
	segmentRepo := database.NewSegmentRepository(db)

	openAIKey := os.Getenv("OPENAI_API_KEY")
	openAIBaseURL := os.Getenv("OPENAI_BASE_URL")

	var embedder search.Embedder
	var generator chat.Generator
	var transcriber api.Transcriber
	if openAIKey != "" {
		embedder = ai.NewEmbeddingClient(openAIKey, openAIBaseURL)
		generator = ai.NewChatClient(openAIKey, openAIBaseURL)
		transcriber = ai.NewTranscriptionClient(openAIKey, openAIBaseURL)
	} else {
		log.Printf("OPENAI_API_KEY not set: transcription and chat disabled, search is keyword-only")
	}

	var index vector.Index
	indexURL := os.Getenv("VECTOR_INDEX_URL")
	if indexURL != "" {
		index = vector.NewClient(indexURL, os.Getenv("VECTOR_API_KEY"))
	} else {
		log.Printf("VECTOR_INDEX_URL not set: semantic search disabled, falling back to keyword search")
	}

	retriever := search.NewRetriever(embedder, index, segmentRepo)

	app := &api.App{
		Storage:       localStorage,
		VideoRepo:     videoRepo,
		SegmentRepo:   segmentRepo,
		Retriever:     retriever,
		Indexer:       indexer.NewIndexer(segmentRepo, embedder, index),
		Engine:        chat.NewEngine(retriever, generator),
		Transcriber:   transcriber,
		MaxUploadSize: maxSize,
	}

	router := api.NewRouter(app)

	log.Printf("Server starting on port %s", port)
	log.Printf("Upload directory: %s", uploadDir)
	log.Printf("Database type: %s", dbType)
	if dbType == "postgres" {
		log.Printf("Database connection: %s@%s:%d/%s", dbConfig.User, dbConfig.Host, dbConfig.Port, dbConfig.Name)
	} else {
		log.Printf("Database path: %s", dbConfig.SQLitePath)
	}
	log.Printf("Max upload size: %d bytes", maxSize)

	if err := http.ListenAndServe(":"+port, router); err != nil {
		log.Fatal(err)
	}
}
