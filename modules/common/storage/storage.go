package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/supabase-community/supabase-go"
	"md-fashion-studio/modules/common/config"
	"md-fashion-studio/modules/common/model"
)

const exportsTable = "fashion_exports"

type Client struct {
	supabase   *supabase.Client
	httpClient *http.Client
	baseURL    string
	serviceKey string
	bucket     string
}

// NewClient - Storage 클라이언트 생성 (Supabase 미설정 시 nil)
func NewClient(cfg *config.Config) *Client {
	if !cfg.SupabaseEnabled() {
		return nil
	}

	supabaseClient, err := supabase.NewClient(cfg.SupabaseURL, cfg.SupabaseServiceKey, &supabase.ClientOptions{})
	if err != nil {
		log.Printf("❌ Failed to create Supabase client: %v", err)
		return nil
	}

	log.Println("✅ [Storage] Supabase client initialized")
	return &Client{
		supabase:   supabaseClient,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		baseURL:    strings.TrimRight(cfg.SupabaseURL, "/"),
		serviceKey: cfg.SupabaseServiceKey,
		bucket:     cfg.SupabaseBucket,
	}
}

// ObjectPath - 세션별 업로드 경로
func ObjectPath(sessionID, fileName string) string {
	return fmt.Sprintf("exports/session-%s/%s", sessionID, fileName)
}

// UploadObject - Supabase Storage에 파일 업로드
func (c *Client) UploadObject(ctx context.Context, filePath string, data []byte, contentType string) error {
	log.Printf("📤 Uploading %s to storage: %s", contentType, filePath)

	// Supabase Storage API URL
	uploadURL := fmt.Sprintf("%s/storage/v1/object/%s/%s", c.baseURL, c.bucket, filePath)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uploadURL, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create upload request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.serviceKey)
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to upload file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("upload failed with status %d: %s", resp.StatusCode, string(body))
	}

	log.Printf("✅ File uploaded successfully: %s (%d bytes)", filePath, len(data))
	return nil
}

// CreateExportRecord - fashion_exports 테이블에 레코드 생성
func (c *Client) CreateExportRecord(ctx context.Context, record model.ExportRecord) (*model.ExportRecord, error) {
	log.Printf("💾 Creating export record for: %s", record.FilePath)

	insertData := map[string]interface{}{
		"session_id": record.SessionID,
		"file_name":  record.FileName,
		"file_path":  record.FilePath,
		"file_size":  record.FileSize,
		"file_type":  record.FileType,
		"category":   record.Category,
		"bg_prompt":  record.BgPrompt,
	}

	data, _, err := c.supabase.From(exportsTable).
		Insert(insertData, false, "", "", "").
		Execute()
	if err != nil {
		return nil, fmt.Errorf("failed to insert export record: %w", err)
	}

	var records []model.ExportRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to parse export response: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("no export record returned")
	}

	log.Printf("✅ Export record created: ID=%d", records[0].ExportID)
	return &records[0], nil
}
