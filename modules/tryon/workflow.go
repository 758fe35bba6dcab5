package tryon

import (
	"errors"
	"fmt"
	"strings"

	"md-fashion-studio/modules/common/model"
	"md-fashion-studio/modules/common/utils"
	"md-fashion-studio/modules/generation"
)

var (
	ErrNotReady        = errors.New("model image and a garment for the active category are required")
	ErrBusy            = errors.New("a generation request is already in progress")
	ErrInvalidStep     = errors.New("operation not allowed in the current step")
	ErrCategoryLocked  = errors.New("category can only be changed in the upload step")
	ErrInvalidSlot     = errors.New("unknown image slot")
	ErrInvalidCategory = errors.New("unknown category")
	ErrNoResult        = errors.New("generation returned an empty image")
	ErrEmptyPrompt     = generation.ErrEmptyPrompt
)

// EventType - 상태 전이 트리거
type EventType string

const (
	EventCategorySelected    EventType = "category_selected"
	EventImageProvided       EventType = "image_provided"
	EventPromptChanged       EventType = "prompt_changed"
	EventTryOnStarted        EventType = "try_on_started"
	EventTryOnSucceeded      EventType = "try_on_succeeded"
	EventTryOnFailed         EventType = "try_on_failed"
	EventBackgroundStarted   EventType = "background_started"
	EventBackgroundSucceeded EventType = "background_succeeded"
	EventBackgroundFailed    EventType = "background_failed"
	EventSkipped             EventType = "skipped"
	EventReset               EventType = "reset"
)

// Event - 전이 입력. Type에 따라 필요한 필드만 사용
type Event struct {
	Type     EventType
	Category model.Category
	Slot     Slot
	Image    model.InlineImage
	Info     *utils.ImageInfo // EventImageProvided: 업로드 시 한 번 계산한 미리보기 정보
	Prompt   string
}

// IsReady - 인물 이미지 + 카테고리에 맞는 의상이 있는지
func IsReady(s State) bool {
	if s.ModelImage.IsZero() {
		return false
	}
	switch s.ActiveCategory {
	case model.CategoryFullLook:
		return !s.UpperImage.IsZero() || !s.LowerImage.IsZero() || !s.AccImage.IsZero()
	case model.CategoryShirts:
		return !s.UpperImage.IsZero()
	case model.CategoryPants:
		return !s.LowerImage.IsZero()
	case model.CategoryAccessories:
		return !s.AccImage.IsZero()
	}
	return false
}

// SelectionFor - 활성 카테고리로 걸러낸 의상 선택 (요청마다 새로 생성)
func SelectionFor(s State) model.GarmentSelection {
	var sel model.GarmentSelection
	if s.ActiveCategory.UsesUpper() {
		sel.Upper = s.UpperImage
	}
	if s.ActiveCategory.UsesLower() {
		sel.Lower = s.LowerImage
	}
	if s.ActiveCategory.UsesAccessory() {
		sel.Accessory = s.AccImage
	}
	return sel
}

func exportable(s State) bool {
	return (s.Step == StepBackground || s.Step == StepResult) && !s.ResultImage.IsZero()
}

// Apply - 순수 상태 전이 함수. 에러면 입력 상태를 그대로 돌려줌
func Apply(s State, e Event) (State, error) {
	next := s

	switch e.Type {
	case EventCategorySelected:
		if s.Step != StepUpload {
			return s, ErrCategoryLocked
		}
		if !e.Category.Valid() {
			return s, fmt.Errorf("%w: %q", ErrInvalidCategory, e.Category)
		}
		// 카테고리를 바꿔도 올린 이미지는 유지
		next.ActiveCategory = e.Category

	case EventImageProvided:
		if s.Step != StepUpload {
			return s, ErrInvalidStep
		}
		if _, err := ParseSlot(string(e.Slot)); err != nil {
			return s, err
		}
		if e.Image.IsZero() {
			return s, errors.New("image is empty")
		}
		next = next.withImage(e.Slot, e.Image, e.Info)

	case EventPromptChanged:
		if s.Step != StepBackground {
			return s, ErrInvalidStep
		}
		if s.Processing.IsProcessing {
			return s, ErrBusy
		}
		next.BgPrompt = e.Prompt

	case EventTryOnStarted:
		if s.Processing.IsProcessing {
			return s, ErrBusy
		}
		if s.Step != StepUpload {
			return s, ErrInvalidStep
		}
		if !IsReady(s) {
			return s, ErrNotReady
		}
		next.Step = StepTryOn
		next.Processing = ProcessingState{IsProcessing: true, Message: MessageTryOn}

	case EventTryOnSucceeded:
		if s.Step != StepTryOn {
			return s, ErrInvalidStep
		}
		if e.Image.IsZero() {
			return s, ErrNoResult
		}
		next.ResultImage = e.Image
		next.Step = StepBackground
		next.Processing = ProcessingState{}

	case EventTryOnFailed:
		if s.Step != StepTryOn {
			return s, ErrInvalidStep
		}
		next.Step = StepUpload
		next.Processing = ProcessingState{}

	case EventBackgroundStarted:
		if s.Processing.IsProcessing {
			return s, ErrBusy
		}
		if s.Step != StepBackground {
			return s, ErrInvalidStep
		}
		if strings.TrimSpace(s.BgPrompt) == "" {
			return s, ErrEmptyPrompt
		}
		next.Processing = ProcessingState{IsProcessing: true, Message: MessageBackground}

	case EventBackgroundSucceeded:
		if s.Step != StepBackground || !s.Processing.IsProcessing {
			return s, ErrInvalidStep
		}
		if e.Image.IsZero() {
			return s, ErrNoResult
		}
		next.ResultImage = e.Image
		next.Step = StepResult
		next.Processing = ProcessingState{}

	case EventBackgroundFailed:
		if s.Step != StepBackground || !s.Processing.IsProcessing {
			return s, ErrInvalidStep
		}
		next.Processing = ProcessingState{}

	case EventSkipped:
		if s.Processing.IsProcessing {
			return s, ErrBusy
		}
		if s.Step != StepBackground {
			return s, ErrInvalidStep
		}
		next.Step = StepResult

	case EventReset:
		if s.Processing.IsProcessing {
			return s, ErrBusy
		}
		if s.Step != StepBackground && s.Step != StepResult {
			return s, ErrInvalidStep
		}
		next.ResultImage = ""
		next.BgPrompt = ""
		next.Step = StepUpload

	default:
		return s, errors.New("unknown event: " + string(e.Type))
	}

	return next, nil
}
