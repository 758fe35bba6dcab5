package generation

import (
	"errors"
	"fmt"
)

// Kind - 실패한 작업 종류
type Kind string

const (
	KindTryOn      Kind = "try_on"
	KindBackground Kind = "background"
)

var (
	// ErrTryOn - 시착 합성 실패 (GenerationError)
	ErrTryOn = errors.New("try-on generation failed")
	// ErrBackgroundEdit - 배경 변경 실패 (BackgroundEditError)
	ErrBackgroundEdit = errors.New("background edit failed")
	// ErrEmptyPrompt - 공백 제거 후 빈 프롬프트
	ErrEmptyPrompt = errors.New("background prompt is empty")
)

// GenerationError - 원격 서비스 오류, 디코딩 실패 등을 한 종류로 묶음
type GenerationError struct {
	Kind Kind
	Err  error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("%s: %v", e.sentinel(), e.Err)
}

func (e *GenerationError) Unwrap() []error {
	return []error{e.sentinel(), e.Err}
}

func (e *GenerationError) sentinel() error {
	if e.Kind == KindBackground {
		return ErrBackgroundEdit
	}
	return ErrTryOn
}

func tryOnError(err error) error {
	return &GenerationError{Kind: KindTryOn, Err: err}
}

func backgroundError(err error) error {
	return &GenerationError{Kind: KindBackground, Err: err}
}
