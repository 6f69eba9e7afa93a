package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/clipquery/clipquery/internal/ai"
	"github.com/clipquery/clipquery/internal/database"
	"github.com/clipquery/clipquery/internal/indexer"
	"github.com/clipquery/clipquery/internal/models"
	"github.com/clipquery/clipquery/internal/search"
	"github.com/clipquery/clipquery/internal/storage"
	"github.com/clipquery/clipquery/internal/transcript"
	"github.com/clipquery/clipquery/internal/vector"
)

// Reprocesses a single video from the command line, useful after a
// failed upload pipeline or when rebuilding the vector index.
func main() {
	var (
		videoID   = flag.String("id", "", "Video id to process")
		uploadDir = flag.String("uploads", "./uploads", "Upload directory")
		timeout   = flag.Duration("timeout", 15*time.Minute, "Processing timeout")
	)
	flag.Parse()

	if *videoID == "" {
		fmt.Fprintln(os.Stderr, "Usage: process-video -id <video-id>")
		os.Exit(1)
	}

	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found, using environment variables")
	}

	dbConfig := database.Config{Type: os.Getenv("DB_TYPE")}
	if dbConfig.Type == "" {
		dbConfig.Type = "sqlite"
	}
	if dbConfig.Type == "sqlite" {
		dbConfig.SQLitePath = os.Getenv("DB_PATH")
		if dbConfig.SQLitePath == "" {
			dbConfig.SQLitePath = "./clipquery.db"
		}
	} else {
		dbConfig.Host = os.Getenv("DB_HOST")
		dbConfig.User = os.Getenv("DB_USER")
		dbConfig.Password = os.Getenv("DB_PASSWORD")
		dbConfig.Name = os.Getenv("DB_NAME")
		dbConfig.Port = 5432
	}

	db, err := database.NewDB(dbConfig)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
	defer db.Close()

	openAIKey := os.Getenv("OPENAI_API_KEY")
	if openAIKey == "" {
		log.Fatal("OPENAI_API_KEY is required for transcription")
	}

	localStorage, err := storage.NewLocalStorage(*uploadDir)
	if err != nil {
		log.Fatal("Failed to open storage:", err)
	}

	var embedder search.Embedder
	var index vector.Index
	if indexURL := os.Getenv("VECTOR_INDEX_URL"); indexURL != "" {
		embedder = ai.NewEmbeddingClient(openAIKey, os.Getenv("OPENAI_BASE_URL"))
		index = vector.NewClient(indexURL, os.Getenv("VECTOR_API_KEY"))
	} else {
		log.Printf("VECTOR_INDEX_URL not set, segments will only be searchable by keyword")
	}

	videoRepo := database.NewVideoRepository(db)
	segmentRepo := database.NewSegmentRepository(db)
	ix := indexer.NewIndexer(segmentRepo, embedder, index)
	transcriber := ai.NewTranscriptionClient(openAIKey, os.Getenv("OPENAI_BASE_URL"))

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	video, err := videoRepo.GetVideoByID(ctx, *videoID)
	if err != nil {
		log.Fatal("Failed to load video:", err)
	}

	if err := videoRepo.UpdateStatus(ctx, video.ID, models.StatusProcessing); err != nil {
		log.Fatal("Failed to update status:", err)
	}

	file, err := localStorage.OpenFile(video.Filename)
	if err != nil {
		videoRepo.UpdateStatus(ctx, video.ID, models.StatusFailed)
		log.Fatal("Failed to open video file:", err)
	}
	defer file.Close()

	log.Printf("Transcribing %s (%s)", video.OriginalName, video.ID)
	fragments, duration, err := transcriber.Transcribe(ctx, file, video.OriginalName)
	if err != nil {
		videoRepo.UpdateStatus(ctx, video.ID, models.StatusFailed)
		log.Fatal("Transcription failed:", err)
	}
	if duration > 0 {
		videoRepo.UpdateDuration(ctx, video.ID, duration)
	}

	segments := transcript.Segment(fragments, transcript.DefaultThresholds())
	res, err := ix.Index(ctx, video.ID, segments)
	if err != nil {
		videoRepo.UpdateStatus(ctx, video.ID, models.StatusFailed)
		log.Fatal("Indexing failed:", err)
	}

	if err := videoRepo.UpdateStatus(ctx, video.ID, models.StatusReady); err != nil {
		log.Fatal("Failed to update status:", err)
	}

	fmt.Printf("Processed %s: %d segments, %d windows\n", video.ID, res.SegmentCount, res.WindowCount)
}
