package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/clipquery/clipquery/internal/chat"
	"github.com/clipquery/clipquery/internal/database"
	"github.com/clipquery/clipquery/internal/indexer"
	"github.com/clipquery/clipquery/internal/models"
	"github.com/clipquery/clipquery/internal/search"
	"github.com/clipquery/clipquery/internal/storage"
)

type fakeTranscriber struct {
	fragments []models.RawFragment
	duration  float64
	err       error
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, file io.Reader, filename string) ([]models.RawFragment, float64, error) {
	return f.fragments, f.duration, f.err
}

type fakeGenerator struct {
	deltas []string
}

func (f *fakeGenerator) Stream(ctx context.Context, systemPrompt, userMessage string, onDelta func(string) error) (string, error) {
	var full strings.Builder
	for _, d := range f.deltas {
		full.WriteString(d)
		if onDelta != nil {
			if err := onDelta(d); err != nil {
				return full.String(), err
			}
		}
	}
	return full.String(), nil
}

func newTestApp(t *testing.T, transcriber Transcriber, generator chat.Generator) (*App, http.Handler) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.New().String())
	db, err := database.NewDB(database.Config{Type: "sqlite", SQLitePath: dsn})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	db.Conn().SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	store, err := storage.NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}

	videoRepo := database.NewVideoRepository(db)
	segmentRepo := database.NewSegmentRepository(db)
	retriever := search.NewRetriever(nil, nil, segmentRepo)

	app := &App{
		Storage:       store,
		VideoRepo:     videoRepo,
		SegmentRepo:   segmentRepo,
		Retriever:     retriever,
		Indexer:       indexer.NewIndexer(segmentRepo, nil, nil),
		Engine:        chat.NewEngine(retriever, generator),
		Transcriber:   transcriber,
		MaxUploadSize: 10 << 20,
	}
	return app, NewRouter(app)
}

func uploadTestVideo(t *testing.T, router http.Handler, filename string) *models.Video {
	t.Helper()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("video", filename)
	if err != nil {
		t.Fatalf("Failed to create form file: %v", err)
	}
	part.Write([]byte("fake video bytes"))
	writer.Close()

	req := httptest.NewRequest("POST", "/upload", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("Upload returned status %d: %s", rec.Code, rec.Body.String())
	}

	var video models.Video
	if err := json.NewDecoder(rec.Body).Decode(&video); err != nil {
		t.Fatalf("Failed to decode upload response: %v", err)
	}
	return &video
}

func TestUploadHandler(t *testing.T) {
	_, router := newTestApp(t, nil, nil)

	video := uploadTestVideo(t, router, "lecture.mp4")
	if video.Status != models.StatusUploaded {
		t.Errorf("Expected status uploaded, got %s", video.Status)
	}
	if video.OriginalName != "lecture.mp4" {
		t.Errorf("Unexpected original name: %s", video.OriginalName)
	}
	if video.ID == "" {
		t.Error("Expected video id assigned")
	}
}

func TestUploadHandler_RejectsNonVideo(t *testing.T) {
	_, router := newTestApp(t, nil, nil)

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, _ := writer.CreateFormFile("video", "notes.txt")
	part.Write([]byte("plain text"))
	writer.Close()

	req := httptest.NewRequest("POST", "/upload", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for non-video upload, got %d", rec.Code)
	}
}

func TestProcessHandler(t *testing.T) {
	transcriber := &fakeTranscriber{
		fragments: []models.RawFragment{
			{Text: "Hello world.", Start: 0, End: 2},
			{Text: "Next topic", Start: 5, End: 8.6},
		},
		duration: 8.6,
	}
	app, router := newTestApp(t, transcriber, nil)

	video := uploadTestVideo(t, router, "lecture.mp4")

	body := fmt.Sprintf(`{"video_id":%q}`, video.ID)
	req := httptest.NewRequest("POST", "/process", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Process returned status %d: %s", rec.Code, rec.Body.String())
	}

	var resp processResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if !resp.Success || resp.SegmentCount != 2 {
		t.Errorf("Unexpected process response: %+v", resp)
	}

	updated, err := app.VideoRepo.GetVideoByID(context.Background(), video.ID)
	if err != nil {
		t.Fatalf("Failed to reload video: %v", err)
	}
	if updated.Status != models.StatusReady {
		t.Errorf("Expected status ready, got %s", updated.Status)
	}
	if updated.Duration == nil || *updated.Duration != 8.6 {
		t.Errorf("Expected duration stored, got %v", updated.Duration)
	}
}

func TestProcessHandler_UnknownVideo(t *testing.T) {
	_, router := newTestApp(t, &fakeTranscriber{}, nil)

	req := httptest.NewRequest("POST", "/process", strings.NewReader(`{"video_id":"missing"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown video, got %d", rec.Code)
	}
}

func TestProcessHandler_TranscriptionFailure(t *testing.T) {
	transcriber := &fakeTranscriber{err: errors.New("whisper down")}
	app, router := newTestApp(t, transcriber, nil)

	video := uploadTestVideo(t, router, "lecture.mp4")

	body := fmt.Sprintf(`{"video_id":%q}`, video.ID)
	req := httptest.NewRequest("POST", "/process", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("Expected 500 for failed processing, got %d", rec.Code)
	}

	updated, err := app.VideoRepo.GetVideoByID(context.Background(), video.ID)
	if err != nil {
		t.Fatalf("Failed to reload video: %v", err)
	}
	if updated.Status != models.StatusFailed {
		t.Errorf("Expected status failed, got %s", updated.Status)
	}
}

func TestGetVideoHandler_NotFound(t *testing.T) {
	_, router := newTestApp(t, nil, nil)

	req := httptest.NewRequest("GET", "/videos/missing", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", rec.Code)
	}
}

func TestTranscriptHandler(t *testing.T) {
	transcriber := &fakeTranscriber{
		fragments: []models.RawFragment{{Text: "Hello world.", Start: 0, End: 2}},
		duration:  2,
	}
	_, router := newTestApp(t, transcriber, nil)

	video := uploadTestVideo(t, router, "lecture.mp4")

	req := httptest.NewRequest("POST", "/process", strings.NewReader(fmt.Sprintf(`{"video_id":%q}`, video.ID)))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("Process failed: %s", rec.Body.String())
	}

	req = httptest.NewRequest("GET", "/videos/"+video.ID+"/transcript", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Transcript returned status %d", rec.Code)
	}

	var resp struct {
		VideoID  string                     `json:"video_id"`
		Segments []models.TranscriptSegment `json:"segments"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(resp.Segments) != 1 || resp.Segments[0].Text != "Hello world." {
		t.Errorf("Unexpected transcript: %+v", resp.Segments)
	}
}

func TestSearchHandler(t *testing.T) {
	transcriber := &fakeTranscriber{
		fragments: []models.RawFragment{
			{Text: "Neural networks are powerful.", Start: 5, End: 9},
			{Text: "Gradient descent optimizes them.", Start: 10, End: 14},
		},
		duration: 14,
	}
	_, router := newTestApp(t, transcriber, nil)

	video := uploadTestVideo(t, router, "lecture.mp4")
	req := httptest.NewRequest("POST", "/process", strings.NewReader(fmt.Sprintf(`{"video_id":%q}`, video.ID)))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("Process failed: %s", rec.Body.String())
	}

	body := fmt.Sprintf(`{"video_id":%q,"query":"neural networks"}`, video.ID)
	req = httptest.NewRequest("POST", "/search", strings.NewReader(body))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Search returned status %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Results []models.SearchResult `json:"results"`
		Count   int                   `json:"count"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Count != 1 {
		t.Fatalf("Expected 1 result, got %d", resp.Count)
	}
	if resp.Results[0].StartTime != 5 || resp.Results[0].Confidence != 0.7 {
		t.Errorf("Unexpected result: %+v", resp.Results[0])
	}
}

func TestSearchHandler_EmptyQuery(t *testing.T) {
	_, router := newTestApp(t, nil, nil)

	req := httptest.NewRequest("POST", "/search", strings.NewReader(`{"video_id":"vid-1","query":"  "}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for empty query, got %d", rec.Code)
	}
}

func TestServeVideoHandler_Range(t *testing.T) {
	_, router := newTestApp(t, nil, nil)

	video := uploadTestVideo(t, router, "lecture.mp4")

	req := httptest.NewRequest("GET", "/video/"+video.Filename, nil)
	req.Header.Set("Range", "bytes=0-3")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusPartialContent {
		t.Fatalf("Expected 206 for range request, got %d", rec.Code)
	}
	if got := rec.Body.String(); got != "fake" {
		t.Errorf("Unexpected range body: %q", got)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "video/mp4" {
		t.Errorf("Unexpected content type: %s", ct)
	}
}

func TestHealthAndPing(t *testing.T) {
	_, router := newTestApp(t, nil, nil)

	for _, path := range []string{"/health", "/ping"} {
		req := httptest.NewRequest("GET", path, nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("%s returned status %d", path, rec.Code)
		}
	}
}
