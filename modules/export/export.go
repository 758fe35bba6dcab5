package export

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"md-fashion-studio/modules/common/model"
	"md-fashion-studio/modules/common/storage"
	"md-fashion-studio/modules/common/utils"
)

const (
	filePrefix  = "md-fashion-studio"
	jpegQuality = 92
	webpQuality = 90
)

// Format - 다운로드 포맷
type Format string

const (
	FormatJPG  Format = "jpg"
	FormatWebP Format = "webp"
)

// ErrArchiveDisabled - Supabase 미설정
var ErrArchiveDisabled = errors.New("export archive is not configured")

// ParseFormat - 쿼리 파라미터 해석 (기본값 jpg)
func ParseFormat(raw string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "jpg", "jpeg":
		return FormatJPG, nil
	case "webp":
		return FormatWebP, nil
	}
	return "", fmt.Errorf("unsupported export format: %q", raw)
}

// ContentType - 포맷별 Content-Type
func (f Format) ContentType() string {
	if f == FormatWebP {
		return "image/webp"
	}
	return "image/jpeg"
}

// Filename - 타임스탬프 기반 파일명 (md-fashion-studio-<unix-ms>.<ext>)
func Filename(now time.Time, format Format) string {
	return fmt.Sprintf("%s-%d.%s", filePrefix, now.UnixMilli(), format)
}

// Render - 결과 이미지를 다운로드 포맷으로 변환
func Render(img model.InlineImage, format Format) ([]byte, error) {
	data, err := img.Bytes()
	if err != nil {
		return nil, fmt.Errorf("invalid result image: %w", err)
	}

	switch format {
	case FormatWebP:
		return utils.ConvertToWebP(data, webpQuality)
	case FormatJPG:
		return utils.ConvertToJPEG(data, jpegQuality)
	}
	return nil, fmt.Errorf("unsupported export format: %q", format)
}

// Store - 보관용 저장소 (storage.Client)
type Store interface {
	UploadObject(ctx context.Context, filePath string, data []byte, contentType string) error
	CreateExportRecord(ctx context.Context, record model.ExportRecord) (*model.ExportRecord, error)
}

// Request - 보관 요청
type Request struct {
	SessionID string
	Image     model.InlineImage
	Category  model.Category
	BgPrompt  string
}

// Archiver - 결과 이미지를 WebP로 Supabase Storage에 보관
type Archiver struct {
	store  Store
	render func(model.InlineImage, Format) ([]byte, error)
	now    func() time.Time
}

// NewArchiver - storage 클라이언트가 없으면 비활성 Archiver
func NewArchiver(client *storage.Client) *Archiver {
	if client == nil {
		return &Archiver{render: Render, now: time.Now}
	}
	return NewArchiverWithStore(client)
}

func NewArchiverWithStore(store Store) *Archiver {
	return &Archiver{store: store, render: Render, now: time.Now}
}

// Enabled - 보관 가능 여부
func (a *Archiver) Enabled() bool {
	return a != nil && a.store != nil
}

// Archive - 업로드 후 fashion_exports 레코드 생성
func (a *Archiver) Archive(ctx context.Context, req Request) (*model.ExportRecord, error) {
	if !a.Enabled() {
		return nil, ErrArchiveDisabled
	}

	data, err := a.render(req.Image, FormatWebP)
	if err != nil {
		return nil, fmt.Errorf("failed to render export: %w", err)
	}

	fileName := Filename(a.now(), FormatWebP)
	filePath := storage.ObjectPath(req.SessionID, fileName)

	if err := a.store.UploadObject(ctx, filePath, data, FormatWebP.ContentType()); err != nil {
		return nil, fmt.Errorf("failed to upload export: %w", err)
	}

	record, err := a.store.CreateExportRecord(ctx, model.ExportRecord{
		SessionID: req.SessionID,
		FileName:  fileName,
		FilePath:  filePath,
		FileSize:  int64(len(data)),
		FileType:  FormatWebP.ContentType(),
		Category:  string(req.Category),
		BgPrompt:  req.BgPrompt,
	})
	if err != nil {
		return nil, err
	}

	log.Printf("✅ [Export] Session %s archived: %s (%d bytes)", req.SessionID, filePath, len(data))
	return record, nil
}
