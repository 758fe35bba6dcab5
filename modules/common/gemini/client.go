package gemini

import (
	"context"
	"errors"
	"fmt"
	"log"

	"google.golang.org/genai"
)

// ErrNoImage - 응답에 이미지 파트가 없음
var ErrNoImage = errors.New("no image data in response")

// Models - genai.Client.Models 중 사용하는 부분 (테스트에서 대체 가능)
type Models interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// NewClient - Gemini API 클라이언트 생성
func NewClient(ctx context.Context, apiKey string) (*genai.Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is empty")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Genai client: %w", err)
	}

	log.Println("✅ [Gemini] Client initialized")
	return client, nil
}

// ExtractImage - 응답 후보 중 첫 번째 InlineData 이미지 추출
func ExtractImage(result *genai.GenerateContentResponse) ([]byte, string, error) {
	if result == nil || len(result.Candidates) == 0 {
		return nil, "", fmt.Errorf("no candidates in response")
	}

	for _, candidate := range result.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}

		for _, part := range candidate.Content.Parts {
			// 이미지는 InlineData로 반환됨
			if part != nil && part.InlineData != nil && len(part.InlineData.Data) > 0 {
				mimeType := part.InlineData.MIMEType
				if mimeType == "" {
					mimeType = "image/png"
				}
				log.Printf("✅ [Gemini] Received image: %d bytes (%s)", len(part.InlineData.Data), mimeType)
				return part.InlineData.Data, mimeType, nil
			}
		}
	}

	return nil, "", ErrNoImage
}

// FloatPtr - float64를 *float32로 변환
func FloatPtr(f float64) *float32 {
	f32 := float32(f)
	return &f32
}
