package utils

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	_ "image/png" // PNG 디코더 등록
	"log"

	"github.com/gen2brain/webp" // WebP 인코더 + 디코더 등록 (cgo 불필요)
)

// webpMethod - 압축 속도/품질 균형 (0=빠름, 6=느림)
const webpMethod = 4

// ImageInfo - 미리보기용 이미지 메타데이터
type ImageInfo struct {
	Format string `json:"format"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// DescribeImage - 헤더만 읽어서 포맷/크기 확인 (JPEG, PNG, WebP)
func DescribeImage(data []byte) (*ImageInfo, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image header: %w", err)
	}
	return &ImageInfo{
		Format: format,
		Width:  cfg.Width,
		Height: cfg.Height,
	}, nil
}

// ConvertToJPEG - 이미지 바이너리를 JPEG로 변환 (이미 JPEG면 그대로 반환)
func ConvertToJPEG(data []byte, quality int) ([]byte, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	if format == "jpeg" {
		return data, nil
	}

	// JPEG는 알파가 없으므로 투명 영역은 흰 배경으로
	canvas := image.NewRGBA(img.Bounds())
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(canvas, canvas.Bounds(), img, img.Bounds().Min, draw.Over)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, canvas, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("failed to encode JPEG: %w", err)
	}

	log.Printf("🔄 %s converted to JPEG: %d bytes → %d bytes", format, len(data), buf.Len())
	return buf.Bytes(), nil
}

// ConvertToWebP - 이미지 바이너리를 WebP로 변환 (이미 WebP면 그대로 반환)
func ConvertToWebP(data []byte, quality int) ([]byte, error) {
	log.Printf("🔄 Converting image to WebP (quality: %d)", quality)

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	if format == "webp" {
		return data, nil
	}

	// WebP 인코딩 (lossy)
	var webpBuffer bytes.Buffer
	if err := webp.Encode(&webpBuffer, img, webp.Options{Quality: quality, Method: webpMethod}); err != nil {
		return nil, fmt.Errorf("failed to encode WebP: %w", err)
	}

	webpData := webpBuffer.Bytes()

	log.Printf("✅ %s converted to WebP: %d bytes → %d bytes (%.1f%% reduction)",
		format, len(data), len(webpData),
		float64(len(data)-len(webpData))/float64(len(data))*100)

	return webpData, nil
}
