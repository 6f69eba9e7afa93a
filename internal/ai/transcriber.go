package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/clipquery/clipquery/internal/models"
)

const transcriptionModel = "whisper-1"

// TranscriptionClient converts audio or video files to timestamped text
// fragments via the OpenAI transcription API.
type TranscriptionClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

func NewTranscriptionClient(apiKey, baseURL string) *TranscriptionClient {
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	return &TranscriptionClient{
		apiKey:  apiKey,
		baseURL: baseURL,
		httpClient: &http.Client{
			// Transcription of long videos can take a while.
			Timeout: 10 * time.Minute,
		},
	}
}

type transcriptionResponse struct {
	Duration float64 `json:"duration"`
	Segments []struct {
		Text  string  `json:"text"`
		Start float64 `json:"start"`
		End   float64 `json:"end"`
	} `json:"segments"`
	Error *apiError `json:"error"`
}

// Transcribe uploads the media file and returns the raw timestamped
// fragments plus the total media duration in seconds.
func (c *TranscriptionClient) Transcribe(ctx context.Context, file io.Reader, filename string) ([]models.RawFragment, float64, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, 0, fmt.Errorf("failed to copy file: %w", err)
	}

	if err := writer.WriteField("model", transcriptionModel); err != nil {
		return nil, 0, fmt.Errorf("failed to write model field: %w", err)
	}
	if err := writer.WriteField("response_format", "verbose_json"); err != nil {
		return nil, 0, fmt.Errorf("failed to write format field: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, 0, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/v1/audio/transcriptions", &buf)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.apiKey))
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read response: %w", err)
	}

	var trResp transcriptionResponse
	if err := json.Unmarshal(body, &trResp); err != nil {
		return nil, 0, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if trResp.Error != nil {
		return nil, 0, fmt.Errorf("transcription API error: %s", trResp.Error.Message)
	}

	fragments := make([]models.RawFragment, 0, len(trResp.Segments))
	for _, s := range trResp.Segments {
		fragments = append(fragments, models.RawFragment{
			Text:  s.Text,
			Start: s.Start,
			End:   s.End,
		})
	}

	return fragments, trResp.Duration, nil
}
