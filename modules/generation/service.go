package generation

import (
	"context"
	"fmt"
	"log"
	"strings"

	"google.golang.org/genai"

	"md-fashion-studio/modules/common/config"
	"md-fashion-studio/modules/common/gemini"
	"md-fashion-studio/modules/common/model"
)

const (
	tryOnTemperature      = 0.45
	backgroundTemperature = 0.7
)

type Service struct {
	models      gemini.Models
	modelName   string
	aspectRatio string
}

// NewService - Gemini 클라이언트로 생성 서비스 초기화
func NewService(ctx context.Context, cfg *config.Config) (*Service, error) {
	client, err := gemini.NewClient(ctx, cfg.GeminiAPIKey)
	if err != nil {
		return nil, err
	}

	log.Printf("✅ [Generation] Service initialized (model: %s)", cfg.GeminiModel)
	return NewServiceWithModels(client.Models, cfg.GeminiModel, cfg.AspectRatio), nil
}

// NewServiceWithModels - 임의의 Models 구현으로 서비스 생성
func NewServiceWithModels(models gemini.Models, modelName, aspectRatio string) *Service {
	if aspectRatio == "" {
		aspectRatio = "3:4"
	}
	return &Service{
		models:      models,
		modelName:   modelName,
		aspectRatio: aspectRatio,
	}
}

// ComposeLook - 인물 이미지에 선택한 의상/액세서리를 입힌 합성 이미지 생성
// 준비 상태 검증은 호출자 책임. 실패 시 *GenerationError (ErrTryOn)
func (s *Service) ComposeLook(ctx context.Context, person model.InlineImage, sel model.GarmentSelection, category model.Category) (model.InlineImage, error) {
	log.Printf("🎨 [Generation] ComposeLook - category: %s, garments: %d", category, sel.Count())

	if person.IsZero() {
		return "", tryOnError(fmt.Errorf("person image is required"))
	}

	// 순서: Person → Upper → Lower → Accessory → 지시문
	tagged := []struct {
		role Role
		img  model.InlineImage
	}{
		{RolePerson, person},
		{RoleUpper, sel.Upper},
		{RoleLower, sel.Lower},
		{RoleAccessory, sel.Accessory},
	}

	var parts []*genai.Part
	var roles []Role
	for _, t := range tagged {
		if t.img.IsZero() {
			continue
		}
		part, err := imagePart(t.img)
		if err != nil {
			return "", tryOnError(fmt.Errorf("invalid %s image: %w", t.role, err))
		}
		parts = append(parts, part)
		roles = append(roles, t.role)
		log.Printf("📎 Added %s image (%s)", t.role, t.img.MimeType())
	}

	prompt := buildTryOnPrompt(roles, category)
	parts = append(parts, genai.NewPartFromText(prompt))
	log.Printf("📝 Generated try-on prompt (%d chars)", len(prompt))

	img, err := s.generate(ctx, parts, tryOnTemperature)
	if err != nil {
		return "", tryOnError(err)
	}
	return img, nil
}

// EditBackground - 결과 이미지의 배경을 장면 설명으로 교체
// 실패 시 *GenerationError (ErrBackgroundEdit)
func (s *Service) EditBackground(ctx context.Context, source model.InlineImage, prompt string) (model.InlineImage, error) {
	scene := strings.TrimSpace(prompt)
	if scene == "" {
		return "", ErrEmptyPrompt
	}

	log.Printf("🌆 [Generation] EditBackground - scene: %s", truncateString(scene, 50))

	part, err := imagePart(source)
	if err != nil {
		return "", backgroundError(fmt.Errorf("invalid source image: %w", err))
	}

	parts := []*genai.Part{
		part,
		genai.NewPartFromText(buildBackgroundPrompt(scene)),
	}

	img, err := s.generate(ctx, parts, backgroundTemperature)
	if err != nil {
		return "", backgroundError(err)
	}
	return img, nil
}

// generate - Gemini 호출 후 첫 번째 이미지를 InlineImage로 변환 (재시도 없음)
func (s *Service) generate(ctx context.Context, parts []*genai.Part, temperature float64) (model.InlineImage, error) {
	content := &genai.Content{
		Role:  "user",
		Parts: parts,
	}

	log.Printf("📤 Sending request to Gemini API with %d parts (aspect-ratio: %s)...", len(parts), s.aspectRatio)
	result, err := s.models.GenerateContent(
		ctx,
		s.modelName,
		[]*genai.Content{content},
		&genai.GenerateContentConfig{
			ResponseModalities: []string{"TEXT", "IMAGE"},
			ImageConfig: &genai.ImageConfig{
				AspectRatio: s.aspectRatio,
			},
			Temperature: gemini.FloatPtr(temperature),
		},
	)
	if err != nil {
		log.Printf("❌ [Generation] Gemini API error: %v", err)
		return "", fmt.Errorf("Gemini API call failed: %w", err)
	}

	data, mimeType, err := gemini.ExtractImage(result)
	if err != nil {
		log.Printf("❌ [Generation] Undecodable response: %v", err)
		return "", err
	}

	return model.NewInlineImage(mimeType, data), nil
}

func imagePart(img model.InlineImage) (*genai.Part, error) {
	data, err := img.Bytes()
	if err != nil {
		return nil, err
	}
	return genai.NewPartFromBytes(data, img.MimeType()), nil
}

// truncateString - 로그용 자르기 (rune 단위, UTF-8 보존)
func truncateString(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}
