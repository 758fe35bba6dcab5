package tryon

import (
	"fmt"
	"strings"

	"md-fashion-studio/modules/common/model"
	"md-fashion-studio/modules/common/utils"
)

// Step - 화면 단계
type Step string

const (
	StepUpload     Step = "UPLOAD"
	StepTryOn      Step = "TRY_ON" // 합성 요청 중에만 잠시 머무는 단계
	StepBackground Step = "BACKGROUND"
	StepResult     Step = "RESULT"
)

// Slot - 이미지 슬롯
type Slot string

const (
	SlotModel     Slot = "model"
	SlotUpper     Slot = "upper"
	SlotLower     Slot = "lower"
	SlotAccessory Slot = "accessory"
)

// ParseSlot - URL 경로의 슬롯 이름 검증
func ParseSlot(raw string) (Slot, error) {
	switch s := Slot(strings.ToLower(strings.TrimSpace(raw))); s {
	case SlotModel, SlotUpper, SlotLower, SlotAccessory:
		return s, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidSlot, raw)
}

// 화면 문구 (pt-BR 고정)
const (
	MessageTryOn      = "Criando o look perfeito..."
	MessageBackground = "Transformando o ambiente..."

	NoticeNotReady         = "Por favor, carregue pelo menos uma peça de roupa para o look."
	NoticeTryOnFailed      = "Falha ao gerar o look. Tente imagens mais claras."
	NoticeBackgroundFailed = "Falha ao alterar o fundo. Tente descrever de outra forma."
	NoticeReadFailed       = "Não foi possível ler a imagem selecionada."
)

// ProcessingState - 진행 중 표시 (IsProcessing=false면 Message는 항상 빈 문자열)
type ProcessingState struct {
	IsProcessing bool   `json:"isProcessing"`
	Message      string `json:"message"`
}

// State - 한 세션(페이지 방문)의 전체 상태
type State struct {
	ActiveCategory model.Category
	ModelImage     model.InlineImage
	UpperImage     model.InlineImage
	LowerImage     model.InlineImage
	AccImage       model.InlineImage
	ResultImage    model.InlineImage
	BgPrompt       string
	Processing     ProcessingState
	Step           Step
	Infos          SlotInfos
}

// SlotInfos - 슬롯별 미리보기 메타데이터 (이미지 저장 시점에 채움)
type SlotInfos struct {
	Model     *utils.ImageInfo
	Upper     *utils.ImageInfo
	Lower     *utils.ImageInfo
	Accessory *utils.ImageInfo
}

// NewState - 초기 상태 (Look Completo, Upload)
func NewState() State {
	return State{
		ActiveCategory: model.CategoryFullLook,
		Step:           StepUpload,
	}
}

// Image - 슬롯에 담긴 이미지
func (s State) Image(slot Slot) model.InlineImage {
	switch slot {
	case SlotModel:
		return s.ModelImage
	case SlotUpper:
		return s.UpperImage
	case SlotLower:
		return s.LowerImage
	case SlotAccessory:
		return s.AccImage
	}
	return ""
}

// Info - 슬롯 이미지의 미리보기 메타데이터 (없으면 nil)
func (s State) Info(slot Slot) *utils.ImageInfo {
	switch slot {
	case SlotModel:
		return s.Infos.Model
	case SlotUpper:
		return s.Infos.Upper
	case SlotLower:
		return s.Infos.Lower
	case SlotAccessory:
		return s.Infos.Accessory
	}
	return nil
}

func (s State) withImage(slot Slot, img model.InlineImage, info *utils.ImageInfo) State {
	switch slot {
	case SlotModel:
		s.ModelImage, s.Infos.Model = img, info
	case SlotUpper:
		s.UpperImage, s.Infos.Upper = img, info
	case SlotLower:
		s.LowerImage, s.Infos.Lower = img, info
	case SlotAccessory:
		s.AccImage, s.Infos.Accessory = img, info
	}
	return s
}

// Notice - 사용자에게 한 번 보여주는 알림
type Notice struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Snapshot - 클라이언트로 내려가는 세션 상태
type Snapshot struct {
	SessionID     string                     `json:"sessionId"`
	Category      model.Category             `json:"category"`
	CategoryLabel string                     `json:"categoryLabel"`
	VisibleSlots  []Slot                     `json:"visibleSlots"`
	Step          Step                       `json:"step"`
	Processing    ProcessingState            `json:"processing"`
	Ready         bool                       `json:"ready"`
	Exportable    bool                       `json:"exportable"`
	Images        map[Slot]model.InlineImage `json:"images"`
	Previews      map[Slot]*utils.ImageInfo  `json:"previews,omitempty"`
	ResultImage   model.InlineImage          `json:"resultImage,omitempty"`
	BgPrompt      string                     `json:"bgPrompt"`
}

// VisibleSlots - 카테고리별로 화면에 노출되는 슬롯
func VisibleSlots(c model.Category) []Slot {
	slots := []Slot{SlotModel}
	if c.UsesUpper() {
		slots = append(slots, SlotUpper)
	}
	if c.UsesLower() {
		slots = append(slots, SlotLower)
	}
	if c.UsesAccessory() {
		slots = append(slots, SlotAccessory)
	}
	return slots
}

func newSnapshot(sessionID string, s State) Snapshot {
	snap := Snapshot{
		SessionID:     sessionID,
		Category:      s.ActiveCategory,
		CategoryLabel: s.ActiveCategory.Label(),
		VisibleSlots:  VisibleSlots(s.ActiveCategory),
		Step:          s.Step,
		Processing:    s.Processing,
		Ready:         IsReady(s),
		Exportable:    exportable(s),
		Images:        make(map[Slot]model.InlineImage),
		Previews:      make(map[Slot]*utils.ImageInfo),
		ResultImage:   s.ResultImage,
		BgPrompt:      s.BgPrompt,
	}
	for _, slot := range []Slot{SlotModel, SlotUpper, SlotLower, SlotAccessory} {
		img := s.Image(slot)
		if img.IsZero() {
			continue
		}
		snap.Images[slot] = img
		// 스냅샷마다 디코딩하지 않고 저장 시점 정보를 재사용
		if info := s.Info(slot); info != nil {
			snap.Previews[slot] = info
		}
	}
	return snap
}
