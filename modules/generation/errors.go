package generation

import (
	"errors"
	"fmt"
)

var (
	// ErrGenerationInProgress - 보드에서 이미 생성이 실행 중
	ErrGenerationInProgress = errors.New("a generation is already running for this session")
	// ErrMissingCredential - API 자격 증명 없음
	ErrMissingCredential = errors.New("API key not found. Please configure a key")
	// ErrSnapshotNotFound - 저장된 스냅샷 없음
	ErrSnapshotNotFound = errors.New("snapshot not found")
)

const (
	msgNoTarget       = "Please select at least one platform or enable video."
	msgNoInput        = "Please enter an idea or upload an image."
	msgInvalidTone    = "Please choose a supported tone."
	msgNoPosts        = "We couldn't generate posts for your selected platforms. Please try a different idea or try again."
	msgGenericFailure = "An error occurred while generating content. Please try again."
	msgCancelled      = "Generation was cancelled."
	msgVideoQuota     = "Video generation limit reached. Try again in a minute! ⏳"
)

// PreconditionError - 원격 호출 전에 거부된 요청 (입력 수정으로 복구 가능)
type PreconditionError struct {
	Message string
	Err     error
}

func (e *PreconditionError) Error() string { return e.Message }

func (e *PreconditionError) Unwrap() error { return e.Err }

// FatalError - 텍스트 단계 실패로 전체 생성이 중단됨
type FatalError struct {
	Message string
	Err     error
}

func (e *FatalError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *FatalError) Unwrap() error { return e.Err }
