package intake

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"mime"
	"mime/multipart"
	"net/http"

	"md-fashion-studio/modules/common/model"
	"md-fashion-studio/modules/common/utils"
)

// ErrRead - 선택한 파일을 읽지 못함 (빈 파일 포함)
var ErrRead = errors.New("failed to read selected image")

// Ingest - 업로드된 파일을 InlineImage로 변환
// 타입/크기 검증은 하지 않음. declaredMime이 비어있으면 내용으로 추정
func Ingest(ctx context.Context, r io.Reader, declaredMime string) (model.InlineImage, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRead, err)
	}
	if len(data) == 0 {
		return "", fmt.Errorf("%w: file is empty", ErrRead)
	}

	mimeType := resolveMime(declaredMime, data)
	log.Printf("📥 [Intake] Image ingested: %d bytes (%s)", len(data), mimeType)

	return model.NewInlineImage(mimeType, data), nil
}

// IngestFile - multipart 파일 헤더 기반 Ingest
func IngestFile(ctx context.Context, fh *multipart.FileHeader) (model.InlineImage, error) {
	f, err := fh.Open()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRead, err)
	}
	defer f.Close()

	return Ingest(ctx, f, fh.Header.Get("Content-Type"))
}

// Describe - 미리보기용 메타데이터 (디코딩 불가한 이미지는 nil)
func Describe(img model.InlineImage) *utils.ImageInfo {
	data, err := img.Bytes()
	if err != nil {
		return nil
	}
	info, err := utils.DescribeImage(data)
	if err != nil {
		return nil
	}
	return info
}

func resolveMime(declared string, data []byte) string {
	if declared != "" {
		if mediaType, _, err := mime.ParseMediaType(declared); err == nil && mediaType != "application/octet-stream" {
			return mediaType
		}
	}
	// 브라우저가 타입을 안 보낸 경우 내용으로 추정
	sniffed, _, _ := mime.ParseMediaType(http.DetectContentType(data))
	return sniffed
}
