// Package service 实现人格对话的编排：一次消息经过校验、持久化、事实抽取与合并、
// 提示词构建、生成回复、再次持久化后返回。
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"PersonaGen/backend/go/internal/config"
	"PersonaGen/backend/go/internal/events"
	"PersonaGen/backend/go/internal/llm"
	"PersonaGen/backend/go/internal/memory/store"
	"PersonaGen/backend/go/internal/models"
	"PersonaGen/backend/go/internal/persona_service/prompt"
	"PersonaGen/backend/go/pkg/logger"
)

// 调用方可以用 errors.Is 区分的错误类别。
var (
	ErrBadRequest = errors.New("bad request")
	ErrNotFound   = errors.New("personality profile not found")
	ErrStore      = errors.New("storage failure")
)

// FactExtractor 从一句话中抽取事实，失败时返回空集合。
type FactExtractor interface {
	Extract(ctx context.Context, utterance string) models.FactSet
}

// ProfileMerger 把事实合并进档案。
type ProfileMerger interface {
	Merge(ctx context.Context, profileID string, facts models.FactSet) (*models.Profile, error)
}

// Completer 是补全服务的归一化入口，见 llm.Completer。
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Service 封装了人格档案与对话的业务逻辑。
// 它是唯一同时访问存储和补全服务的组件。
type Service struct {
	store     store.Store
	extractor FactExtractor
	merger    ProfileMerger
	completer Completer
	publisher events.Publisher
	cfg       config.ConversationConfig
	log       *logger.Logger
}

// NewService 创建一个新的 Service 实例。publisher 为 nil 时不发布对话事件。
func NewService(st store.Store, ex FactExtractor, mg ProfileMerger, c Completer, publisher events.Publisher, cfg config.ConversationConfig, log *logger.Logger) *Service {
	if publisher == nil {
		publisher = events.Noop{}
	}
	if cfg.FallbackNoResult == "" {
		cfg.FallbackNoResult = config.DefaultFallbackNoResult
	}
	if cfg.FallbackError == "" {
		cfg.FallbackError = config.DefaultFallbackError
	}
	if cfg.ExtractionTimeoutDuration() <= 0 {
		cfg.ExtractionTimeout = "15s"
	}
	return &Service{
		store:     st,
		extractor: ex,
		merger:    mg,
		completer: c,
		publisher: publisher,
		cfg:       cfg,
		log:       log,
	}
}

// --- Profiles ---

// CreateProfile 校验并保存一份新的人格档案。
// 键和值会去掉首尾空白，空键或空值的条目被忽略；没有剩余条目时返回 ErrBadRequest。
func (s *Service) CreateProfile(ctx context.Context, answers *models.Answers) (*models.Profile, error) {
	cleaned := models.NewAnswers()
	if answers != nil {
		for pair := answers.Oldest(); pair != nil; pair = pair.Next() {
			key, value := strings.TrimSpace(pair.Key), strings.TrimSpace(pair.Value)
			if key == "" || value == "" {
				continue
			}
			cleaned.Set(key, value)
		}
	}
	if cleaned.Len() == 0 {
		return nil, fmt.Errorf("%w: personality answers are required", ErrBadRequest)
	}

	p, err := s.store.CreateProfile(ctx, cleaned)
	if err != nil {
		return nil, storeError("create profile", err)
	}
	s.log.WithField("profile_id", p.ID).WithField("answers", p.Answers.Len()).Info("personality profile created")
	return p, nil
}

// GetProfile 返回档案；不存在时返回 ErrNotFound。
func (s *Service) GetProfile(ctx context.Context, profileID string) (*models.Profile, error) {
	profileID = strings.TrimSpace(profileID)
	if profileID == "" {
		return nil, fmt.Errorf("%w: profile ID is required", ErrBadRequest)
	}
	p, err := s.store.GetProfile(ctx, profileID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, profileID)
	}
	if err != nil {
		return nil, storeError("get profile", err)
	}
	return p, nil
}

// --- Chat history ---

// History 按时间顺序返回聊天记录。档案不存在时返回空记录。
func (s *Service) History(ctx context.Context, profileID string) ([]*models.ChatMessage, error) {
	history, err := s.store.GetHistory(ctx, strings.TrimSpace(profileID))
	if err != nil {
		return nil, storeError("get history", err)
	}
	return history, nil
}

// ClearHistory 清空聊天记录，可重复调用；档案本身保留。
func (s *Service) ClearHistory(ctx context.Context, profileID string) error {
	if err := s.store.ClearHistory(ctx, strings.TrimSpace(profileID)); err != nil {
		return storeError("clear history", err)
	}
	s.log.WithField("profile_id", profileID).Info("chat history cleared")
	return nil
}

// --- Conversation ---

// HandleMessage 处理一条用户消息并返回已持久化的回复。
//
// 事实抽取与合并是尽力而为的，失败只记录日志；补全失败时回复兜底文案；
// 只有存储失败会使本轮对话失败（ErrStore）。
func (s *Service) HandleMessage(ctx context.Context, profileID, message string) (*models.ChatMessage, error) {
	// Validate
	profileID = strings.TrimSpace(profileID)
	if profileID == "" || strings.TrimSpace(message) == "" {
		return nil, fmt.Errorf("%w: profile ID and message are required", ErrBadRequest)
	}
	profile, err := s.GetProfile(ctx, profileID)
	if err != nil {
		return nil, err
	}
	log := s.log.WithField("profile_id", profileID)

	// PersistUser
	userMsg := models.NewChatMessage(models.SenderUser, message)
	if err := s.store.AppendMessage(ctx, profileID, userMsg); err != nil {
		return nil, storeError("persist user message", err)
	}

	// ExtractAndMerge
	current, facts := s.extractAndMerge(ctx, profile, message, log)

	// BuildPrompt
	personaPrompt, err := prompt.Build(current, message)
	if err != nil {
		return nil, fmt.Errorf("build prompt: %w", err)
	}

	// Generate
	reply, degraded := s.generate(ctx, personaPrompt, log)

	// PersistBot 不随请求取消，已经生成的回复仍应写入记录。
	persistCtx := context.WithoutCancel(ctx)
	botMsg := models.NewChatMessage(models.SenderBot, reply)
	if err := s.store.AppendMessage(persistCtx, profileID, botMsg); err != nil {
		return nil, storeError("persist bot message", err)
	}

	s.publish(persistCtx, &models.TurnEvent{
		ProfileID:    profileID,
		UserMessage:  userMsg,
		BotMessage:   botMsg,
		FactsLearned: facts,
		Degraded:     degraded,
		OccurredAt:   time.Now().UTC(),
	}, log)

	// Respond
	return botMsg, nil
}

// extractAndMerge is the skippable stage of a turn. It returns the profile to
// prompt with, falling back to profile, and the facts that were merged.
func (s *Service) extractAndMerge(ctx context.Context, profile *models.Profile, message string, log *logger.Logger) (current *models.Profile, merged models.FactSet) {
	current = profile
	defer func() {
		if r := recover(); r != nil {
			log.WithError(models.ErrorInfo{Message: fmt.Sprint(r), Type: "extraction_panic"}).Error("fact extraction skipped")
			current, merged = profile, nil
		}
	}()

	ectx, cancel := context.WithTimeout(ctx, s.cfg.ExtractionTimeoutDuration())
	defer cancel()

	facts := s.extractor.Extract(ectx, message)
	updated, err := s.merger.Merge(ectx, profile.ID, facts)
	if err != nil {
		log.WithError(models.NewErrorInfo(err, "merge_error")).Warn("fact merge skipped")
		return profile, nil
	}
	if len(facts) > 0 {
		log.WithPayload(map[string]interface{}{"facts": facts.Keys()}).Debug("profile updated from conversation")
	}
	return updated, facts
}

// generate returns the reply text and whether it is a fallback.
func (s *Service) generate(ctx context.Context, personaPrompt string, log *logger.Logger) (string, bool) {
	text, err := s.completer.Complete(ctx, personaPrompt)
	if err == nil {
		return text, false
	}
	if errors.Is(err, llm.ErrEmptyResponse) {
		log.Warn("completion returned no text, using fallback reply")
		return s.cfg.FallbackNoResult, true
	}
	log.WithError(models.NewErrorInfo(err, "llm_error")).Error("completion failed, using fallback reply")
	return s.cfg.FallbackError, true
}

func (s *Service) publish(ctx context.Context, event *models.TurnEvent, log *logger.Logger) {
	if err := s.publisher.PublishTurn(ctx, event); err != nil {
		log.WithError(models.NewErrorInfo(err, "publish_error")).Warn("failed to publish turn event")
	}
}

func storeError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStore, op, err)
}
