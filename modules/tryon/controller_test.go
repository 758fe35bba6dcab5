package tryon

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"md-fashion-studio/modules/common/model"
	"md-fashion-studio/modules/generation"
	"md-fashion-studio/modules/intake"
)

func newTestController(gen *fakeGenerator) (*Controller, *recordingPublisher) {
	pub := &recordingPublisher{}
	return NewController("s1", gen, NewMemoryGuard(), pub), pub
}

func mustSet(t *testing.T, c *Controller, slot Slot, img model.InlineImage) {
	t.Helper()
	_, err := c.SetImage(slot, img)
	require.NoError(t, err)
}

func TestControllerShirtsScenario(t *testing.T) {
	gen := &fakeGenerator{composeImg: imgR}
	c, pub := newTestController(gen)

	_, err := c.SelectCategory(model.CategoryShirts)
	require.NoError(t, err)
	mustSet(t, c, SlotModel, imgA)
	mustSet(t, c, SlotUpper, imgB)

	assert.True(t, c.Snapshot().Ready)

	snap, err := c.TryOn(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, gen.composeCalls)
	assert.Equal(t, imgA, gen.lastPerson)
	assert.Equal(t, model.GarmentSelection{Upper: imgB}, gen.lastSel)
	assert.Equal(t, model.CategoryShirts, gen.lastCategory)

	assert.Equal(t, StepBackground, snap.Step)
	assert.Equal(t, imgR, snap.ResultImage)
	assert.False(t, snap.Processing.IsProcessing)
	assert.True(t, snap.Exportable)

	img, ok := c.Exportable()
	assert.True(t, ok)
	assert.Equal(t, imgR, img)
	assert.Empty(t, pub.notices())

	// 처리 중 상태가 먼저 발행됨
	var sawProcessing bool
	for _, s := range pub.states() {
		if s.Processing.IsProcessing {
			sawProcessing = true
			assert.Equal(t, StepTryOn, s.Step)
			assert.Equal(t, MessageTryOn, s.Processing.Message)
		}
	}
	assert.True(t, sawProcessing)
}

func TestControllerFullLookNotReady(t *testing.T) {
	gen := &fakeGenerator{composeImg: imgR}
	c, pub := newTestController(gen)
	mustSet(t, c, SlotModel, imgA)
	before := c.State()

	_, err := c.TryOn(context.Background())
	assert.ErrorIs(t, err, ErrNotReady)
	assert.Equal(t, 0, gen.composeCalls)
	assert.Equal(t, before, c.State())

	notices := pub.notices()
	require.Len(t, notices, 1)
	assert.Equal(t, NoticeNotReady, notices[0].Message)
	assert.Equal(t, NoticeNotReady, NoticeFor(err))
}

func TestControllerTryOnFailure(t *testing.T) {
	gen := &fakeGenerator{composeErr: &generation.GenerationError{Kind: generation.KindTryOn, Err: errors.New("503")}}
	c, pub := newTestController(gen)
	mustSet(t, c, SlotModel, imgA)
	mustSet(t, c, SlotLower, imgC)

	snap, err := c.TryOn(context.Background())
	assert.ErrorIs(t, err, generation.ErrTryOn)

	assert.Equal(t, StepUpload, snap.Step)
	assert.True(t, snap.ResultImage.IsZero())
	assert.Equal(t, ProcessingState{}, snap.Processing)

	notices := pub.notices()
	require.Len(t, notices, 1)
	assert.Equal(t, NoticeTryOnFailed, notices[0].Message)
	assert.Equal(t, NoticeTryOnFailed, NoticeFor(err))

	// 실패 후 다시 시도 가능
	gen.composeErr = nil
	gen.composeImg = imgR
	snap, err = c.TryOn(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StepBackground, snap.Step)
}

func TestControllerEmptyResultIsFailure(t *testing.T) {
	gen := &fakeGenerator{}
	c, pub := newTestController(gen)
	mustSet(t, c, SlotModel, imgA)
	mustSet(t, c, SlotAccessory, imgD)

	snap, err := c.TryOn(context.Background())
	assert.ErrorIs(t, err, generation.ErrTryOn)
	assert.ErrorIs(t, err, ErrNoResult)
	assert.Equal(t, StepUpload, snap.Step)
	assert.Len(t, pub.notices(), 1)
}

func TestControllerRejectsConcurrentTryOn(t *testing.T) {
	gen := &fakeGenerator{
		composeImg: imgR,
		started:    make(chan struct{}),
		release:    make(chan struct{}),
	}
	c, _ := newTestController(gen)
	mustSet(t, c, SlotModel, imgA)
	mustSet(t, c, SlotUpper, imgB)

	done := make(chan error, 1)
	go func() {
		_, err := c.TryOn(context.Background())
		done <- err
	}()
	<-gen.started

	snap, err := c.TryOn(context.Background())
	assert.ErrorIs(t, err, ErrBusy)
	assert.True(t, snap.Processing.IsProcessing)

	_, err = c.SelectCategory(model.CategoryPants)
	assert.ErrorIs(t, err, ErrCategoryLocked)

	close(gen.release)
	require.NoError(t, <-done)
	assert.Equal(t, 1, gen.composeCalls)
	assert.Equal(t, StepBackground, c.State().Step)
}

func toBackground(t *testing.T, c *Controller) {
	t.Helper()
	mustSet(t, c, SlotModel, imgA)
	mustSet(t, c, SlotUpper, imgB)
	_, err := c.TryOn(context.Background())
	require.NoError(t, err)
}

func TestControllerEditBackground(t *testing.T) {
	edited := model.NewInlineImage("image/png", []byte("paris"))
	gen := &fakeGenerator{composeImg: imgR, editImg: edited}
	c, _ := newTestController(gen)
	toBackground(t, c)

	_, err := c.EditBackground(context.Background())
	assert.ErrorIs(t, err, ErrEmptyPrompt)
	assert.Equal(t, 0, gen.editCalls)

	_, err = c.SetPrompt("   ")
	require.NoError(t, err)
	_, err = c.EditBackground(context.Background())
	assert.ErrorIs(t, err, ErrEmptyPrompt)
	assert.Equal(t, 0, gen.editCalls)

	_, err = c.SetPrompt("Um café em Paris")
	require.NoError(t, err)
	snap, err := c.EditBackground(context.Background())
	require.NoError(t, err)

	assert.Equal(t, imgR, gen.lastSource)
	assert.Equal(t, "Um café em Paris", gen.lastPrompt)
	assert.Equal(t, StepResult, snap.Step)
	assert.Equal(t, edited, snap.ResultImage)
	assert.True(t, snap.Exportable)
}

func TestControllerEditBackgroundFailure(t *testing.T) {
	gen := &fakeGenerator{
		composeImg: imgR,
		editErr:    &generation.GenerationError{Kind: generation.KindBackground, Err: errors.New("timeout")},
	}
	c, pub := newTestController(gen)
	toBackground(t, c)
	_, err := c.SetPrompt("Praia")
	require.NoError(t, err)

	snap, err := c.EditBackground(context.Background())
	assert.ErrorIs(t, err, generation.ErrBackgroundEdit)
	assert.Equal(t, StepBackground, snap.Step)
	assert.Equal(t, imgR, snap.ResultImage)
	assert.False(t, snap.Processing.IsProcessing)

	notices := pub.notices()
	require.Len(t, notices, 1)
	assert.Equal(t, NoticeBackgroundFailed, notices[0].Message)
}

func TestControllerSkipAndReset(t *testing.T) {
	gen := &fakeGenerator{composeImg: imgR}
	c, _ := newTestController(gen)
	toBackground(t, c)
	_, err := c.SetPrompt("Loja")
	require.NoError(t, err)

	snap, err := c.Skip()
	require.NoError(t, err)
	assert.Equal(t, StepResult, snap.Step)
	assert.Equal(t, imgR, snap.ResultImage)

	snap, err = c.Reset()
	require.NoError(t, err)
	assert.Equal(t, StepUpload, snap.Step)
	assert.True(t, snap.ResultImage.IsZero())
	assert.Empty(t, snap.BgPrompt)
	assert.False(t, snap.Exportable)
	assert.Equal(t, imgA, snap.Images[SlotModel])
	assert.Equal(t, imgB, snap.Images[SlotUpper])

	_, ok := c.Exportable()
	assert.False(t, ok)
}

func TestControllerIngestImage(t *testing.T) {
	c, pub := newTestController(&fakeGenerator{})

	snap, err := c.IngestImage(context.Background(), SlotUpper, fileHeader(t, "image/png", []byte("blouse-bytes")))
	require.NoError(t, err)
	assert.Equal(t, model.NewInlineImage("image/png", []byte("blouse-bytes")), snap.Images[SlotUpper])

	snap, err = c.IngestImage(context.Background(), SlotLower, fileHeader(t, "image/png", nil))
	assert.ErrorIs(t, err, intake.ErrRead)
	_, filled := snap.Images[SlotLower]
	assert.False(t, filled)

	notices := pub.notices()
	require.Len(t, notices, 1)
	assert.Equal(t, NoticeReadFailed, notices[0].Message)
}

func TestControllerLockedOutsideUpload(t *testing.T) {
	c, _ := newTestController(&fakeGenerator{composeImg: imgR})
	toBackground(t, c)
	before := c.State()

	_, err := c.SelectCategory(model.CategoryAccessories)
	assert.ErrorIs(t, err, ErrCategoryLocked)

	_, err = c.IngestImage(context.Background(), SlotModel, fileHeader(t, "image/png", []byte("x")))
	assert.ErrorIs(t, err, ErrInvalidStep)

	assert.Equal(t, before, c.State())
}

func TestControllerTryOnSurvivesCancelledRequest(t *testing.T) {
	gen := &fakeGenerator{
		composeImg: imgR,
		started:    make(chan struct{}),
		release:    make(chan struct{}),
	}
	c, pub := newTestController(gen)
	mustSet(t, c, SlotModel, imgA)
	mustSet(t, c, SlotUpper, imgB)

	ctx, cancel := context.WithCancel(context.Background())
	type outcome struct {
		snap Snapshot
		err  error
	}
	done := make(chan outcome, 1)
	go func() {
		snap, err := c.TryOn(ctx)
		done <- outcome{snap, err}
	}()
	<-gen.started

	// 클라이언트가 연결을 끊어도 생성은 계속됨
	cancel()
	assert.Equal(t, StepTryOn, c.State().Step)
	close(gen.release)

	res := <-done
	require.NoError(t, res.err)
	assert.Equal(t, StepBackground, res.snap.Step)
	assert.Equal(t, imgR, res.snap.ResultImage)
	assert.False(t, c.State().Processing.IsProcessing)
	assert.Empty(t, pub.notices())

	// 잠금도 풀려 있어야 함
	_, err := c.Skip()
	require.NoError(t, err)
}

func TestControllerEditBackgroundSurvivesCancelledRequest(t *testing.T) {
	edited := model.NewInlineImage("image/png", []byte("praia"))
	gen := &fakeGenerator{composeImg: imgR, editImg: edited}
	c, _ := newTestController(gen)
	toBackground(t, c)
	_, err := c.SetPrompt("Praia")
	require.NoError(t, err)

	gen.mu.Lock()
	gen.started = make(chan struct{})
	gen.release = make(chan struct{})
	gen.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := c.EditBackground(ctx)
		done <- err
	}()
	<-gen.started
	cancel()
	close(gen.release)

	require.NoError(t, <-done)
	s := c.State()
	assert.Equal(t, StepResult, s.Step)
	assert.Equal(t, edited, s.ResultImage)
	assert.False(t, s.Processing.IsProcessing)
}

func TestControllerPreviewsComputedOnce(t *testing.T) {
	c, pub := newTestController(&fakeGenerator{})
	jpg := model.NewInlineImage("image/jpeg", jpegBytes(t))

	mustSet(t, c, SlotModel, jpg)
	mustSet(t, c, SlotUpper, imgB) // 디코딩 불가 바이트

	s := c.State()
	require.NotNil(t, s.Infos.Model)
	assert.Equal(t, "jpeg", s.Infos.Model.Format)
	assert.Nil(t, s.Infos.Upper)

	snap := c.Snapshot()
	require.Contains(t, snap.Previews, SlotModel)
	assert.Equal(t, 4, snap.Previews[SlotModel].Width)
	assert.NotContains(t, snap.Previews, SlotUpper)
	assert.Equal(t, imgB, snap.Images[SlotUpper])

	states := pub.states()
	require.NotEmpty(t, states)
	assert.Equal(t, s.Infos.Model, states[len(states)-1].Previews[SlotModel])
}
