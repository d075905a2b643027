package generation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"omnipost-server/modules/common/gemini"
	"omnipost-server/modules/common/model"
	"omnipost-server/modules/image"
	"omnipost-server/modules/platform"
)

const (
	defaultImageIdea = "Create a caption for this image"
	defaultCaption   = "Check this out!"
)

// CredentialChecker - 원격 호출 전에 확인하는 자격 증명 상태
type CredentialChecker interface {
	HasCredential() bool
}

// TextGenerator - 텍스트 유닛
type TextGenerator interface {
	Generate(ctx context.Context, idea string, tone model.Tone, selected map[model.Platform]bool) (map[model.Platform]*model.PlatformPost, error)
}

// ImageGenerator - 이미지 유닛 (best effort, 에러 없음)
type ImageGenerator interface {
	Generate(ctx context.Context, req image.Request) []string
}

// VideoGenerator - 영상 유닛
type VideoGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// BranchResult - fan-out 브랜치 하나의 결과 (Key == video 이면 영상 브랜치)
type BranchResult struct {
	Key    model.Platform
	Images []string
	Video  *model.VideoPost
	Err    error
}

// Outcome - 생성 1회의 최종 결과
type Outcome struct {
	GenerationID string
	Branches     []BranchResult
	Snapshot     model.Snapshot
}

type Orchestrator struct {
	credentials CredentialChecker
	text        TextGenerator
	images      ImageGenerator
	video       VideoGenerator
	timeout     time.Duration
}

// NewOrchestrator - 오케스트레이터 생성. timeout <= 0 이면 생성 전체 제한 없음
func NewOrchestrator(credentials CredentialChecker, text TextGenerator, images ImageGenerator, video VideoGenerator, timeout time.Duration) *Orchestrator {
	return &Orchestrator{
		credentials: credentials,
		text:        text,
		images:      images,
		video:       video,
		timeout:     timeout,
	}
}

// Validate - 원격 호출 없이 요청 검사 (req 는 정규화됨)
func (o *Orchestrator) Validate(req *model.GenerationRequest) error {
	req.Normalize()
	req.Platforms = platform.Canonical(req.Platforms)

	if len(req.SelectedPlatforms()) == 0 && !req.IncludeVideo {
		return &PreconditionError{Message: msgNoTarget}
	}
	if req.Idea == "" && req.ReferenceImage == nil {
		return &PreconditionError{Message: msgNoInput}
	}
	if !req.Tone.IsValid() {
		return &PreconditionError{Message: msgInvalidTone}
	}
	if o.credentials == nil || !o.credentials.HasCredential() {
		return &PreconditionError{Message: ErrMissingCredential.Error(), Err: ErrMissingCredential}
	}
	return nil
}

// Begin - 검사 후 보드를 점유하고 생성 ID 반환
func (o *Orchestrator) Begin(board *Board, req *model.GenerationRequest) (string, error) {
	if err := o.Validate(req); err != nil {
		return "", err
	}

	generationID := uuid.New().String()
	if err := board.Begin(generationID, req.IncludeVideo); err != nil {
		return "", err
	}
	return generationID, nil
}

// Run - Begin + Execute
func (o *Orchestrator) Run(ctx context.Context, board *Board, req *model.GenerationRequest) (*Outcome, error) {
	generationID, err := o.Begin(board, req)
	if err != nil {
		return nil, err
	}
	return o.Execute(ctx, board, generationID, req)
}

// Execute - 텍스트 단계 → fan-out → settled. Begin 으로 점유한 보드에서만 호출
func (o *Orchestrator) Execute(ctx context.Context, board *Board, generationID string, req *model.GenerationRequest) (*Outcome, error) {
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	started := time.Now()
	idea := req.Idea
	if idea == "" {
		idea = defaultImageIdea
	}
	selected := req.SelectedPlatforms()

	log.Printf("🚀 [Generation] %s started - platforms: %v, video: %v, copies: %d",
		generationID, platform.Ordered(selected), req.IncludeVideo, req.ImageCount)

	// 1. 텍스트 단계 (유일한 치명적 단계)
	board.SetPhase(model.PhaseText)
	posts, err := o.text.Generate(ctx, idea, req.Tone, selected)
	for p := range posts {
		if !selected[p] {
			delete(posts, p)
		}
	}
	noPosts := err == nil && len(selected) > 0 && len(posts) == 0
	if noPosts {
		err = errors.New("text generation returned no posts")
	}
	if err != nil {
		msg := fatalMessage(ctx, err, noPosts)
		log.Printf("❌ [Generation] %s text phase failed: %v", generationID, err)
		board.Fail(msg)
		return &Outcome{GenerationID: generationID, Snapshot: board.Snapshot()}, &FatalError{Message: msg, Err: err}
	}

	for p, post := range posts {
		post.Platform = p
		post.AspectRatio = effectiveRatio(post.AspectRatio, req.AspectRatio)
		post.ImageURLs = []string{}
	}
	board.PublishText(posts)

	// 2. fan-out: 플랫폼별 이미지 + 영상, 모두 동시에 실행
	order := platform.Ordered(keysOf(posts))
	results := make(chan BranchResult, len(order)+1)
	var wg sync.WaitGroup

	for _, p := range order {
		post := posts[p].Clone()
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- o.runImageBranch(ctx, board, post, idea, req)
		}()
	}

	if req.IncludeVideo {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- o.runVideoBranch(ctx, board, posts, order, idea)
		}()
	}

	wg.Wait()
	close(results)

	branches := make([]BranchResult, 0, len(order)+1)
	failed := 0
	for r := range results {
		if r.Err != nil {
			failed++
		}
		branches = append(branches, r)
	}

	// 3. settled: 현재 요청이 치명적 에러 없이 끝났고 취소되지 않았을 때만 입력을 비움
	board.Settle(ctx.Err() == nil)

	log.Printf("✅ [Generation] %s settled in %s - %d branches, %d failed",
		generationID, time.Since(started).Round(time.Millisecond), len(branches), failed)

	return &Outcome{GenerationID: generationID, Branches: branches, Snapshot: board.Snapshot()}, nil
}

func (o *Orchestrator) runImageBranch(ctx context.Context, board *Board, post *model.PlatformPost, idea string, req *model.GenerationRequest) (result BranchResult) {
	result.Key = post.Platform
	defer func() {
		if r := recover(); r != nil {
			result.Err = fmt.Errorf("image branch panicked: %v", r)
		}
		if result.Err != nil {
			log.Printf("⚠️  [Generation] Image branch %s failed: %v", post.Platform, result.Err)
			board.ImagesFailed(post.Platform)
			return
		}
		board.MergeImages(post.Platform, result.Images)
	}()

	prompt := post.ImagePrompt
	if prompt == "" {
		prompt = fmt.Sprintf("%s. %s style.", idea, req.Tone)
	}

	urls := o.images.Generate(ctx, image.Request{
		Prompt:             prompt,
		DefaultAspectRatio: post.AspectRatio,
		Size:               req.ImageSize,
		Override:           req.AspectRatio,
		Reference:          req.ReferenceImage,
		Count:              req.ImageCount,
	})
	if len(urls) == 0 && ctx.Err() != nil {
		result.Err = ctx.Err()
		return result
	}

	result.Images = urls
	return result
}

func (o *Orchestrator) runVideoBranch(ctx context.Context, board *Board, posts map[model.Platform]*model.PlatformPost, order []model.Platform, idea string) (result BranchResult) {
	result.Key = model.PlatformVideo
	defer func() {
		if r := recover(); r != nil {
			result.Err = fmt.Errorf("video branch panicked: %v", r)
		}
		if result.Err != nil {
			log.Printf("⚠️  [Generation] Video branch failed: %v", result.Err)
			if gemini.IsQuotaError(result.Err) {
				board.SetWarning(msgVideoQuota)
			}
		} else {
			board.MergeVideo(result.Video)
		}
		board.VideoSettled()
	}()

	base, caption := idea, defaultCaption
	if len(order) > 0 {
		first := posts[order[0]]
		if first.ImagePrompt != "" {
			base = first.ImagePrompt
		}
		if first.Content != "" {
			caption = first.Content
		}
	}
	prompt := fmt.Sprintf("Create a cinematic video based on this visual description: %s. Scenes should include dynamic camera movements and professional lighting.", base)

	url, err := o.video.Generate(ctx, prompt)
	if err != nil {
		result.Err = err
		return result
	}

	result.Video = &model.VideoPost{URL: url, Prompt: prompt, Content: caption}
	return result
}

// effectiveRatio - 카드에 표시할 비율 (Auto 면 플랫폼 기본값 유지)
func effectiveRatio(defaultRatio string, override model.AspectRatio) string {
	if override == "" || override == model.AspectRatioAuto {
		return defaultRatio
	}
	return string(override)
}

func fatalMessage(ctx context.Context, err error, emptyResult bool) string {
	switch {
	case errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled):
		return msgCancelled
	case emptyResult:
		return msgNoPosts
	case err.Error() != "":
		return err.Error()
	}
	return msgGenericFailure
}

func keysOf(posts map[model.Platform]*model.PlatformPost) map[model.Platform]bool {
	keys := make(map[model.Platform]bool, len(posts))
	for p := range posts {
		keys[p] = true
	}
	return keys
}
