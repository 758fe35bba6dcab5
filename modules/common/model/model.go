package model

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"
)

// InlineImage - "data:<mime>;base64,<payload>" 형식의 자체 포함 이미지
// 값 자체가 식별자이며 생성 후 변경하지 않음 (교체만 가능)
type InlineImage string

const dataURIPrefix = "data:"

// NewInlineImage - 바이너리와 mime 타입으로 InlineImage 생성
func NewInlineImage(mimeType string, data []byte) InlineImage {
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	return InlineImage(dataURIPrefix + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data))
}

// IsZero - 비어있는 슬롯 여부
func (i InlineImage) IsZero() bool {
	return i == ""
}

// MimeType - data URI에 포함된 mime 타입
func (i InlineImage) MimeType() string {
	mimeType, _, err := i.split()
	if err != nil {
		return ""
	}
	return mimeType
}

// Bytes - base64 payload 디코딩
func (i InlineImage) Bytes() ([]byte, error) {
	_, payload, err := i.split()
	if err != nil {
		return nil, err
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to decode inline image payload: %w", err)
	}
	return data, nil
}

// Size - 디코딩된 바이트 크기 (추정치)
func (i InlineImage) Size() int {
	_, payload, err := i.split()
	if err != nil {
		return 0
	}
	return base64.StdEncoding.DecodedLen(len(payload))
}

func (i InlineImage) split() (string, string, error) {
	s := string(i)
	if !strings.HasPrefix(s, dataURIPrefix) {
		return "", "", fmt.Errorf("inline image must start with %q", dataURIPrefix)
	}
	header, payload, ok := strings.Cut(s[len(dataURIPrefix):], ",")
	if !ok {
		return "", "", fmt.Errorf("inline image has no payload separator")
	}
	mimeType, ok := strings.CutSuffix(header, ";base64")
	if !ok {
		return "", "", fmt.Errorf("inline image must be base64 encoded")
	}
	return mimeType, payload, nil
}

// ExportRecord - fashion_exports 테이블 구조
type ExportRecord struct {
	ExportID  int64     `json:"export_id,omitempty"`
	SessionID string    `json:"session_id"`
	FileName  string    `json:"file_name"`
	FilePath  string    `json:"file_path"`
	FileSize  int64     `json:"file_size"`
	FileType  string    `json:"file_type"`
	Category  string    `json:"category"`
	BgPrompt  string    `json:"bg_prompt,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// Category - 시착 카테고리
type Category string

const (
	CategoryFullLook    Category = "full_look"
	CategoryShirts      Category = "shirts"
	CategoryPants       Category = "pants"
	CategoryAccessories Category = "accessories"
)

// Categories - 화면 탭 순서
var Categories = []Category{CategoryFullLook, CategoryPants, CategoryShirts, CategoryAccessories}

var categoryLabels = map[Category]string{
	CategoryFullLook:    "Look Completo",
	CategoryPants:       "Calças",
	CategoryShirts:      "Blusas",
	CategoryAccessories: "Acessórios",
}

// ParseCategory - 식별자 또는 화면 라벨로 카테고리 조회
func ParseCategory(raw string) (Category, error) {
	raw = strings.TrimSpace(raw)
	for _, c := range Categories {
		if string(c) == raw || categoryLabels[c] == raw {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown category: %q", raw)
}

// Label - 화면 표시용 라벨 (pt-BR)
func (c Category) Label() string {
	return categoryLabels[c]
}

// Valid - 정의된 카테고리인지 확인
func (c Category) Valid() bool {
	_, ok := categoryLabels[c]
	return ok
}

// UsesUpper / UsesLower / UsesAccessory - 카테고리별 사용 슬롯
func (c Category) UsesUpper() bool {
	return c == CategoryFullLook || c == CategoryShirts
}

func (c Category) UsesLower() bool {
	return c == CategoryFullLook || c == CategoryPants
}

func (c Category) UsesAccessory() bool {
	return c == CategoryFullLook || c == CategoryAccessories
}

// GarmentSelection - 시착 요청에 포함할 의상 슬롯
type GarmentSelection struct {
	Upper     InlineImage `json:"upper,omitempty"`
	Lower     InlineImage `json:"lower,omitempty"`
	Accessory InlineImage `json:"accessory,omitempty"`
}

// Count - 채워진 슬롯 수
func (g GarmentSelection) Count() int {
	n := 0
	for _, img := range []InlineImage{g.Upper, g.Lower, g.Accessory} {
		if !img.IsZero() {
			n++
		}
	}
	return n
}
