package tryon

import (
	"context"
	"errors"
	"log"
	"mime/multipart"
	"sync"

	"md-fashion-studio/modules/common/model"
	"md-fashion-studio/modules/generation"
	"md-fashion-studio/modules/intake"
)

// Generator - 외부 이미지 생성 서비스 (generation.Service)
type Generator interface {
	ComposeLook(ctx context.Context, person model.InlineImage, sel model.GarmentSelection, category model.Category) (model.InlineImage, error)
	EditBackground(ctx context.Context, source model.InlineImage, prompt string) (model.InlineImage, error)
}

// Publisher - 상태/알림 전달 (realtime.Hub)
type Publisher interface {
	Publish(sessionID, msgType string, payload any)
	Disconnect(sessionID string)
}

// 메시지 타입
const (
	MessageTypeState  = "state"
	MessageTypeNotice = "notice"
)

// Controller - 세션 상태와 단계 전이의 유일한 소유자
type Controller struct {
	id    string
	gen   Generator
	guard Guard
	pub   Publisher

	mu    sync.Mutex
	state State
}

func NewController(id string, gen Generator, guard Guard, pub Publisher) *Controller {
	if guard == nil {
		guard = NewMemoryGuard()
	}
	return &Controller{
		id:    id,
		gen:   gen,
		guard: guard,
		pub:   pub,
		state: NewState(),
	}
}

// State - 현재 상태 복사본
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Snapshot - 현재 상태의 클라이언트용 표현
func (c *Controller) Snapshot() Snapshot {
	return newSnapshot(c.id, c.State())
}

// Exportable - Background/Result 단계의 결과 이미지
func (c *Controller) Exportable() (model.InlineImage, bool) {
	s := c.State()
	if !exportable(s) {
		return "", false
	}
	return s.ResultImage, true
}

// SelectCategory - Upload 단계에서만 카테고리 변경 (그 외 단계는 ErrCategoryLocked, 상태 유지)
func (c *Controller) SelectCategory(category model.Category) (Snapshot, error) {
	return c.apply(Event{Type: EventCategorySelected, Category: category})
}

// SetImage - 이미 변환된 이미지를 슬롯에 저장
// 미리보기 정보는 여기서 한 번만 계산
func (c *Controller) SetImage(slot Slot, img model.InlineImage) (Snapshot, error) {
	info := intake.Describe(img)
	log.Printf("🖼️ [TryOn] Session %s: %s image set (%d bytes, decodable: %v)", c.id, slot, img.Size(), info != nil)
	return c.apply(Event{Type: EventImageProvided, Slot: slot, Image: img, Info: info})
}

// IngestImage - 업로드 파일을 읽어 슬롯에 저장. 읽기 실패 시 알림 후 슬롯은 그대로
func (c *Controller) IngestImage(ctx context.Context, slot Slot, fh *multipart.FileHeader) (Snapshot, error) {
	if step := c.State().Step; step != StepUpload {
		return c.Snapshot(), ErrInvalidStep
	}

	img, err := intake.IngestFile(ctx, fh)
	if err != nil {
		log.Printf("❌ [TryOn] Session %s: failed to read %s image: %v", c.id, slot, err)
		if errors.Is(err, intake.ErrRead) {
			c.notify(Notice{Kind: "read_failed", Message: NoticeReadFailed})
		}
		return c.Snapshot(), err
	}

	return c.SetImage(slot, img)
}

// SetPrompt - 배경 설명 입력
func (c *Controller) SetPrompt(prompt string) (Snapshot, error) {
	return c.apply(Event{Type: EventPromptChanged, Prompt: prompt})
}

// Skip - 배경 변경 없이 결과 단계로
func (c *Controller) Skip() (Snapshot, error) {
	return c.apply(Event{Type: EventSkipped})
}

// Reset - 결과와 프롬프트만 지우고 Upload로 (입력 이미지 유지)
func (c *Controller) Reset() (Snapshot, error) {
	return c.apply(Event{Type: EventReset})
}

// TryOn - 준비 상태 검증 후 의상 합성. 성공 시 Background 단계
func (c *Controller) TryOn(ctx context.Context) (Snapshot, error) {
	release, err := c.guard.Acquire(ctx, c.id)
	if err != nil {
		return c.Snapshot(), err
	}
	defer release()

	c.mu.Lock()
	started, err := Apply(c.state, Event{Type: EventTryOnStarted})
	if err != nil {
		c.mu.Unlock()
		if errors.Is(err, ErrNotReady) {
			c.notify(Notice{Kind: "not_ready", Message: NoticeNotReady})
		}
		return c.Snapshot(), err
	}
	c.state = started
	c.mu.Unlock()
	c.publish(started)

	sel := SelectionFor(started)
	log.Printf("🚀 [TryOn] Session %s: composing look (category: %s, garments: %d)", c.id, started.ActiveCategory, sel.Count())

	// 잠금 밖에서 호출. 입력은 시작 시점 상태로 고정
	// 요청이 끊겨도 생성은 끝까지 진행해 세션이 TRY_ON에 머물지 않게 함
	result, genErr := c.gen.ComposeLook(context.WithoutCancel(ctx), started.ModelImage, sel, started.ActiveCategory)

	event := Event{Type: EventTryOnSucceeded, Image: result}
	if genErr == nil && result.IsZero() {
		genErr = &generation.GenerationError{Kind: generation.KindTryOn, Err: ErrNoResult}
	}
	if genErr != nil {
		event = Event{Type: EventTryOnFailed}
	}

	snap, err := c.apply(event)
	if err != nil {
		return snap, err
	}

	if genErr != nil {
		log.Printf("❌ [TryOn] Session %s: try-on failed: %v", c.id, genErr)
		c.notify(Notice{Kind: string(generation.KindTryOn), Message: NoticeTryOnFailed})
		return snap, genErr
	}

	log.Printf("✅ [TryOn] Session %s: look ready", c.id)
	return snap, nil
}

// EditBackground - 결과 이미지의 배경 변경. 성공 시 Result 단계
func (c *Controller) EditBackground(ctx context.Context) (Snapshot, error) {
	release, err := c.guard.Acquire(ctx, c.id)
	if err != nil {
		return c.Snapshot(), err
	}
	defer release()

	c.mu.Lock()
	started, err := Apply(c.state, Event{Type: EventBackgroundStarted})
	if err != nil {
		c.mu.Unlock()
		return c.Snapshot(), err
	}
	c.state = started
	c.mu.Unlock()
	c.publish(started)

	log.Printf("🌆 [TryOn] Session %s: editing background", c.id)

	result, genErr := c.gen.EditBackground(context.WithoutCancel(ctx), started.ResultImage, started.BgPrompt)

	event := Event{Type: EventBackgroundSucceeded, Image: result}
	if genErr == nil && result.IsZero() {
		genErr = &generation.GenerationError{Kind: generation.KindBackground, Err: ErrNoResult}
	}
	if genErr != nil {
		event = Event{Type: EventBackgroundFailed}
	}

	snap, err := c.apply(event)
	if err != nil {
		return snap, err
	}

	if genErr != nil {
		log.Printf("❌ [TryOn] Session %s: background edit failed: %v", c.id, genErr)
		c.notify(Notice{Kind: string(generation.KindBackground), Message: NoticeBackgroundFailed})
		return snap, genErr
	}

	log.Printf("✅ [TryOn] Session %s: background applied", c.id)
	return snap, nil
}

func (c *Controller) apply(e Event) (Snapshot, error) {
	c.mu.Lock()
	next, err := Apply(c.state, e)
	if err != nil {
		current := c.state
		c.mu.Unlock()
		return newSnapshot(c.id, current), err
	}
	c.state = next
	c.mu.Unlock()

	return c.publish(next), nil
}

func (c *Controller) publish(s State) Snapshot {
	snap := newSnapshot(c.id, s)
	if c.pub != nil {
		c.pub.Publish(c.id, MessageTypeState, snap)
	}
	return snap
}

func (c *Controller) notify(n Notice) {
	if c.pub != nil {
		c.pub.Publish(c.id, MessageTypeNotice, n)
	}
}

// NoticeFor - 에러에 대응하는 사용자 알림 문구 (없으면 빈 문자열)
func NoticeFor(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotReady):
		return NoticeNotReady
	case errors.Is(err, intake.ErrRead):
		return NoticeReadFailed
	case errors.Is(err, generation.ErrBackgroundEdit):
		return NoticeBackgroundFailed
	case errors.Is(err, generation.ErrTryOn):
		return NoticeTryOnFailed
	}
	return ""
}
