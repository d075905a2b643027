package generation

import (
	"sync"
	"time"

	"omnipost-server/modules/common/model"
	"omnipost-server/modules/platform"
)

// Observer - 보드 변경 시 호출 (보드 메서드를 다시 호출하면 안 됨)
type Observer func(snapshot model.Snapshot)

// Board - 세션 하나의 결과 상태. 모든 변경은 대상 키만 수정하는 병합 연산
type Board struct {
	mu              sync.Mutex
	notifyMu        sync.Mutex
	sessionID       string
	generationID    string
	phase           model.Phase
	results         *model.ResultSet
	errMsg          string
	warning         string
	generating      bool
	videoGenerating bool
	pending         map[model.Platform]bool
	draft           model.Draft
	updatedAt       time.Time
	observers       []Observer
}

// NewBoard - 빈 보드 생성
func NewBoard(sessionID string) *Board {
	return &Board{
		sessionID: sessionID,
		phase:     model.PhaseIdle,
		pending:   make(map[model.Platform]bool),
		updatedAt: time.Now(),
	}
}

// Subscribe - 변경 관찰자 등록
func (b *Board) Subscribe(o Observer) {
	b.mu.Lock()
	b.observers = append(b.observers, o)
	b.mu.Unlock()
}

// Begin - 새 생성 시작. 이전 결과는 병합하지 않고 비움
func (b *Board) Begin(generationID string, includeVideo bool) error {
	b.mu.Lock()
	if b.generating {
		b.mu.Unlock()
		return ErrGenerationInProgress
	}
	b.generationID = generationID
	b.phase = model.PhaseValidating
	b.results = nil
	b.errMsg = ""
	b.warning = ""
	b.generating = true
	b.videoGenerating = includeVideo
	b.pending = make(map[model.Platform]bool)
	b.commit()
	return nil
}

// SetPhase - 상태 머신 단계 갱신
func (b *Board) SetPhase(phase model.Phase) {
	b.mu.Lock()
	b.phase = phase
	b.commit()
}

// PublishText - 텍스트 결과 최초 게시 (이미지 대기 상태)
func (b *Board) PublishText(posts map[model.Platform]*model.PlatformPost) {
	b.mu.Lock()
	results := model.NewResultSet()
	for p, post := range posts {
		results.Posts[p] = post.Clone()
		b.pending[p] = true
	}
	b.results = results
	b.phase = model.PhaseFanout
	b.commit()
}

// MergeImages - 해당 플랫폼의 이미지 URL만 갱신. 카드가 없으면 무시
func (b *Board) MergeImages(p model.Platform, urls []string) bool {
	b.mu.Lock()
	delete(b.pending, p)
	post, ok := b.lookup(p)
	if ok {
		post.ImageURLs = append([]string{}, urls...)
	}
	b.commit()
	return ok
}

// ImagesFailed - 이미지 브랜치 실패. 대기 표시만 해제
func (b *Board) ImagesFailed(p model.Platform) {
	b.mu.Lock()
	delete(b.pending, p)
	b.commit()
}

// MergeVideo - 영상 결과 추가. 결과셋이 없으면 무시
func (b *Board) MergeVideo(v *model.VideoPost) bool {
	b.mu.Lock()
	ok := b.results != nil && v != nil
	if ok {
		copied := *v
		b.results.Video = &copied
	}
	b.commit()
	return ok
}

// VideoSettled - 영상 브랜치 종료 (성공/실패 무관)
func (b *Board) VideoSettled() {
	b.mu.Lock()
	b.videoGenerating = false
	b.commit()
}

// SetWarning - 비차단 경고 표시
func (b *Board) SetWarning(msg string) {
	b.mu.Lock()
	b.warning = msg
	b.commit()
}

// Fail - 치명적 실패. 부분 결과 없이 에러 배너만 표시
func (b *Board) Fail(msg string) {
	b.mu.Lock()
	b.results = nil
	b.errMsg = msg
	b.generating = false
	b.videoGenerating = false
	b.pending = make(map[model.Platform]bool)
	b.phase = model.PhaseSettled
	b.commit()
}

// Settle - 모든 브랜치 종료. clearDraft면 입력 폼 비움
func (b *Board) Settle(clearDraft bool) {
	b.mu.Lock()
	b.generating = false
	b.videoGenerating = false
	b.pending = make(map[model.Platform]bool)
	b.phase = model.PhaseSettled
	if clearDraft {
		b.draft = model.Draft{}
	}
	b.commit()
}

// RemovePost - 카드 제거. 마지막 카드면 결과셋 자체를 nil로
func (b *Board) RemovePost(p model.Platform) bool {
	b.mu.Lock()
	if b.results == nil {
		b.mu.Unlock()
		return false
	}

	removed := false
	if p == model.PlatformVideo {
		removed = b.results.Video != nil
		b.results.Video = nil
	} else if _, ok := b.results.Posts[p]; ok {
		delete(b.results.Posts, p)
		delete(b.pending, p)
		removed = true
	}
	if b.results.Len() == 0 {
		b.results = nil
	}
	b.commit()
	return removed
}

// SetDraft - 입력 폼 상태 저장
func (b *Board) SetDraft(d model.Draft) {
	b.mu.Lock()
	d.HasImage = d.ReferenceImage != nil
	b.draft = d
	b.commit()
}

// Draft - 현재 입력 폼 상태
func (b *Board) Draft() model.Draft {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.draft
}

// Generating - 생성 실행 중 여부
func (b *Board) Generating() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.generating
}

// Restore - 저장된 스냅샷으로 결과 복원 (실행 중이면 무시)
func (b *Board) Restore(s model.Snapshot) {
	b.mu.Lock()
	if b.generating || s.Generating {
		b.mu.Unlock()
		return
	}
	b.generationID = s.GenerationID
	b.phase = s.Phase
	b.results = s.Results.Clone()
	b.errMsg = s.Error
	b.warning = s.Warning
	b.draft.Idea = s.Draft.Idea
	b.updatedAt = s.UpdatedAt
	b.mu.Unlock()
}

// Snapshot - 현재 상태의 깊은 복사
func (b *Board) Snapshot() model.Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snapshotLocked()
}

func (b *Board) lookup(p model.Platform) (*model.PlatformPost, bool) {
	if b.results == nil {
		return nil, false
	}
	post, ok := b.results.Posts[p]
	return post, ok
}

func (b *Board) snapshotLocked() model.Snapshot {
	var pending []model.Platform
	if len(b.pending) > 0 {
		pending = platform.Ordered(b.pending)
	}
	return model.Snapshot{
		SessionID:       b.sessionID,
		GenerationID:    b.generationID,
		Phase:           b.phase,
		Results:         b.results.Clone(),
		Error:           b.errMsg,
		Warning:         b.warning,
		Generating:      b.generating,
		VideoGenerating: b.videoGenerating,
		PendingImages:   pending,
		Draft:           model.Draft{Idea: b.draft.Idea, HasImage: b.draft.ReferenceImage != nil},
		UpdatedAt:       b.updatedAt,
	}
}

// commit - b.mu 를 잡은 상태에서 호출. 스냅샷을 만들고 잠금을 푼 뒤 순서대로 관찰자에게 전달
func (b *Board) commit() {
	b.updatedAt = time.Now()
	snap := b.snapshotLocked()
	observers := append([]Observer(nil), b.observers...)

	b.notifyMu.Lock()
	b.mu.Unlock()
	defer b.notifyMu.Unlock()

	for _, o := range observers {
		o(snap)
	}
}
