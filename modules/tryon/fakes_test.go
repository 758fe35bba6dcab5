package tryon

import (
	"context"
	"sync"

	"md-fashion-studio/modules/common/model"
)

type fakeGenerator struct {
	mu sync.Mutex

	composeCalls int
	lastPerson   model.InlineImage
	lastSel      model.GarmentSelection
	lastCategory model.Category
	composeImg   model.InlineImage
	composeErr   error

	editCalls  int
	lastSource model.InlineImage
	lastPrompt string
	editImg    model.InlineImage
	editErr    error

	// 설정되면 호출이 started에 신호를 보내고 release까지 대기
	started chan struct{}
	release chan struct{}
}

// wait - 실제 클라이언트처럼 ctx가 먼저 끝나면 ctx 에러로 실패
func (f *fakeGenerator) wait(ctx context.Context) error {
	if f.started == nil {
		return ctx.Err()
	}
	f.started <- struct{}{}
	select {
	case <-f.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeGenerator) ComposeLook(ctx context.Context, person model.InlineImage, sel model.GarmentSelection, category model.Category) (model.InlineImage, error) {
	f.mu.Lock()
	f.composeCalls++
	f.lastPerson, f.lastSel, f.lastCategory = person, sel, category
	img, err := f.composeImg, f.composeErr
	f.mu.Unlock()

	if werr := f.wait(ctx); werr != nil {
		return "", werr
	}
	return img, err
}

func (f *fakeGenerator) EditBackground(ctx context.Context, source model.InlineImage, prompt string) (model.InlineImage, error) {
	f.mu.Lock()
	f.editCalls++
	f.lastSource, f.lastPrompt = source, prompt
	img, err := f.editImg, f.editErr
	f.mu.Unlock()

	if werr := f.wait(ctx); werr != nil {
		return "", werr
	}
	return img, err
}

type published struct {
	sessionID string
	msgType   string
	payload   any
}

type recordingPublisher struct {
	mu           sync.Mutex
	messages     []published
	disconnected []string
}

func (p *recordingPublisher) Publish(sessionID, msgType string, payload any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, published{sessionID, msgType, payload})
}

func (p *recordingPublisher) Disconnect(sessionID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.disconnected = append(p.disconnected, sessionID)
}

func (p *recordingPublisher) notices() []Notice {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []Notice
	for _, m := range p.messages {
		if n, ok := m.payload.(Notice); ok && m.msgType == MessageTypeNotice {
			out = append(out, n)
		}
	}
	return out
}

func (p *recordingPublisher) states() []Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []Snapshot
	for _, m := range p.messages {
		if s, ok := m.payload.(Snapshot); ok && m.msgType == MessageTypeState {
			out = append(out, s)
		}
	}
	return out
}
