package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/clipquery/clipquery/internal/chat"
	"github.com/clipquery/clipquery/internal/database"
	"github.com/clipquery/clipquery/internal/indexer"
	"github.com/clipquery/clipquery/internal/models"
	"github.com/clipquery/clipquery/internal/storage"
	"github.com/clipquery/clipquery/internal/transcript"
)

const searchTopK = 3

// Transcriber converts stored media to timestamped text fragments.
type Transcriber interface {
	Transcribe(ctx context.Context, file io.Reader, filename string) ([]models.RawFragment, float64, error)
}

// App holds the handlers' dependencies.
type App struct {
	Storage       storage.Storage
	VideoRepo     *database.VideoRepository
	SegmentRepo   *database.SegmentRepository
	Retriever     chat.Retriever
	Indexer       *indexer.Indexer
	Engine        *chat.Engine
	Transcriber   Transcriber
	MaxUploadSize int64
}

func (app *App) HealthHandler(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (app *App) PingHandler(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"message": "pong"})
}

// UploadHandler accepts a multipart video upload, stores the file and
// registers the video in status uploaded.
func (app *App) UploadHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, app.MaxUploadSize)

	file, header, err := r.FormFile("video")
	if err != nil {
		respondError(w, http.StatusBadRequest, "video file is required")
		return
	}
	defer file.Close()

	if !isVideoUpload(header.Header.Get("Content-Type"), header.Filename) {
		respondError(w, http.StatusBadRequest, "only video files are accepted")
		return
	}

	filename, err := app.Storage.SaveFile(file, storage.FileInfo{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
	})
	if err != nil {
		log.Printf("[API] failed to store upload: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to store file")
		return
	}

	video := models.NewVideo(filename, header.Filename, app.Storage.GetFilePath(filename), header.Size)
	if err := app.VideoRepo.InsertVideo(r.Context(), video); err != nil {
		log.Printf("[API] failed to register video: %v", err)
		app.Storage.DeleteFile(filename)
		respondError(w, http.StatusInternalServerError, "failed to register video")
		return
	}

	respondJSON(w, http.StatusCreated, video)
}

type processRequest struct {
	VideoID string `json:"video_id"`
}

type processResponse struct {
	Success      bool   `json:"success"`
	VideoID      string `json:"video_id"`
	SegmentCount int    `json:"segment_count"`
	WindowCount  int    `json:"window_count"`
}

// ProcessHandler transcribes, segments and indexes an uploaded video.
// The video moves through processing to ready, or to failed.
func (app *App) ProcessHandler(w http.ResponseWriter, r *http.Request) {
	var req processRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.VideoID == "" {
		respondError(w, http.StatusBadRequest, "video_id is required")
		return
	}

	video, err := app.VideoRepo.GetVideoByID(r.Context(), req.VideoID)
	if err != nil {
		if errors.Is(err, database.ErrVideoNotFound) {
			respondError(w, http.StatusNotFound, "video not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to load video")
		return
	}

	if err := app.VideoRepo.UpdateStatus(r.Context(), video.ID, models.StatusProcessing); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to update status")
		return
	}

	res, err := app.processVideo(r.Context(), video)
	if err != nil {
		log.Printf("[API] processing failed for video %s: %v", video.ID, err)
		app.VideoRepo.UpdateStatus(r.Context(), video.ID, models.StatusFailed)
		respondError(w, http.StatusInternalServerError, "processing failed")
		return
	}

	if err := app.VideoRepo.UpdateStatus(r.Context(), video.ID, models.StatusReady); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to update status")
		return
	}

	respondJSON(w, http.StatusOK, processResponse{
		Success:      true,
		VideoID:      video.ID,
		SegmentCount: res.SegmentCount,
		WindowCount:  res.WindowCount,
	})
}

func (app *App) processVideo(ctx context.Context, video *models.Video) (indexer.Result, error) {
	// Re-processing a video keeps its stored transcript.
	count, err := app.SegmentRepo.CountByVideo(ctx, video.ID)
	if err != nil {
		return indexer.Result{}, fmt.Errorf("failed to count segments: %w", err)
	}
	if count > 0 {
		segments, err := app.SegmentRepo.ListByVideo(ctx, video.ID)
		if err != nil {
			return indexer.Result{}, err
		}
		windows := transcript.OverlappingWindows(segments, transcript.DefaultWindowSize, transcript.DefaultWindowStep)
		return indexer.Result{SegmentCount: len(segments), WindowCount: len(windows)}, nil
	}

	if app.Transcriber == nil {
		return indexer.Result{}, fmt.Errorf("transcription service not configured")
	}

	file, err := app.Storage.OpenFile(video.Filename)
	if err != nil {
		return indexer.Result{}, fmt.Errorf("failed to open video file: %w", err)
	}
	defer file.Close()

	fragments, duration, err := app.Transcriber.Transcribe(ctx, file, video.OriginalName)
	if err != nil {
		return indexer.Result{}, fmt.Errorf("transcription failed: %w", err)
	}

	if duration > 0 {
		if err := app.VideoRepo.UpdateDuration(ctx, video.ID, duration); err != nil {
			log.Printf("[API] failed to store duration for video %s: %v", video.ID, err)
		}
	}

	segments := transcript.Segment(fragments, transcript.DefaultThresholds())
	return app.Indexer.Index(ctx, video.ID, segments)
}

func (app *App) ListVideosHandler(w http.ResponseWriter, r *http.Request) {
	videos, err := app.VideoRepo.ListVideos(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list videos")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"videos": videos})
}

func (app *App) GetVideoHandler(w http.ResponseWriter, r *http.Request) {
	video, err := app.VideoRepo.GetVideoByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, database.ErrVideoNotFound) {
			respondError(w, http.StatusNotFound, "video not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to load video")
		return
	}
	respondJSON(w, http.StatusOK, video)
}

func (app *App) TranscriptHandler(w http.ResponseWriter, r *http.Request) {
	videoID := chi.URLParam(r, "id")

	if _, err := app.VideoRepo.GetVideoByID(r.Context(), videoID); err != nil {
		if errors.Is(err, database.ErrVideoNotFound) {
			respondError(w, http.StatusNotFound, "video not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to load video")
		return
	}

	segments, err := app.SegmentRepo.ListByVideo(r.Context(), videoID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load transcript")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"video_id": videoID,
		"segments": segments,
	})
}

type searchRequest struct {
	VideoID string `json:"video_id"`
	Query   string `json:"query"`
}

// SearchHandler runs a hybrid transcript search and returns the top 3
// results.
func (app *App) SearchHandler(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.VideoID == "" {
		respondError(w, http.StatusBadRequest, "video_id is required")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		respondError(w, http.StatusBadRequest, "query is required")
		return
	}

	results, err := app.Retriever.Search(r.Context(), req.VideoID, req.Query, searchTopK)
	if err != nil {
		log.Printf("[API] search failed for video %s: %v", req.VideoID, err)
		respondError(w, http.StatusInternalServerError, "search failed")
		return
	}
	if results == nil {
		results = []models.SearchResult{}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"results": results,
		"count":   len(results),
	})
}

// ServeVideoHandler streams a stored video file with Range support so
// browsers can seek.
func (app *App) ServeVideoHandler(w http.ResponseWriter, r *http.Request) {
	filename := chi.URLParam(r, "filename")

	file, err := app.Storage.OpenFile(filename)
	if err != nil {
		respondError(w, http.StatusNotFound, "video not found")
		return
	}
	defer file.Close()

	w.Header().Set("Content-Type", contentTypeFor(filename))
	http.ServeContent(w, r, filename, time.Time{}, file)
}

func isVideoUpload(contentType, filename string) bool {
	if strings.HasPrefix(contentType, "video/") {
		return true
	}
	// Some browsers send application/octet-stream for mp4 files.
	return strings.EqualFold(filepath.Ext(filename), ".mp4")
}

func contentTypeFor(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".mp4":
		return "video/mp4"
	case ".webm":
		return "video/webm"
	case ".mov":
		return "video/quicktime"
	default:
		return "application/octet-stream"
	}
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("[API] failed to encode response: %v", err)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
