// Package usecase contains the request-mediation pipeline: quota gating,
// upstream orchestration and the taxonomy-driven mapping that guarantees a
// complete CoachResponse on every path.
package usecase

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/fairyhunter13/rehearsal-coach/internal/adapter/observability"
	"github.com/fairyhunter13/rehearsal-coach/internal/config"
	"github.com/fairyhunter13/rehearsal-coach/internal/domain"
)

// Truncation bounds applied to forwarded chat logs.
const (
	chatLogKeep   = 12
	reportLogKeep = 20
)

// ChatRequest is the decoded chat-turn body.
type ChatRequest struct {
	Setup   domain.ChatSetup   `json:"setup"`
	Message string             `json:"message"`
	ChatLog []domain.ChatEntry `json:"chatLog"`
}

// ReportRequest is the decoded report-turn body.
type ReportRequest struct {
	Setup           domain.ChatSetup   `json:"setup"`
	ChatLog         []domain.ChatEntry `json:"chatLog"`
	LastUserMessage string             `json:"lastUserMessage"`
}

// Sanitizer is the safety-filter contract consumed by the service.
type Sanitizer func(text string) domain.SanitizedMessage

// CoachService orchestrates one inbound turn: sanitize, quota-check, call
// upstream, record usage on success, and map every failure onto a complete
// response. Usage may be nil when no storage backend is bound; every
// operation then short-circuits with a config error.
type CoachService struct {
	Usage    domain.UsageRepository
	AI       domain.AIClient
	Sanitize Sanitizer
	Prompts  config.Prompts
	Limit    int
	Loc      *time.Location
	Now      func() time.Time
}

// NewCoachService wires the service; loc fixes the quota day boundary.
func NewCoachService(usage domain.UsageRepository, ai domain.AIClient, sanitize Sanitizer, prompts config.Prompts, limit int, loc *time.Location) CoachService {
	return CoachService{
		Usage:    usage,
		AI:       ai,
		Sanitize: sanitize,
		Prompts:  prompts,
		Limit:    limit,
		Loc:      loc,
		Now:      time.Now,
	}
}

// DayKey returns the current calendar date in the quota timezone.
func (s CoachService) DayKey() string {
	return s.Now().In(s.Loc).Format("2006-01-02")
}

func (s CoachService) zeroUsage(dayKey string) domain.UsageSnapshot {
	return domain.NewUsageSnapshot(s.Limit, 0, dayKey)
}

// configError is the shared short-circuit for a missing or failing storage
// backend: nothing was sanitized or spent yet, so usage reads as zero.
func (s CoachService) configError(dayKey, personaReply string) (domain.CoachResponse, int) {
	resp := Normalize(
		map[string]any{"personaReply": personaReply},
		s.zeroUsage(dayKey),
		[]string{domain.FlagServerConfigError},
	)
	return resp, http.StatusInternalServerError
}

// InvalidBody produces the 400 response for a malformed request body; the
// two endpoints differ only in apology text.
func (s CoachService) InvalidBody(personaReply string) (domain.CoachResponse, int) {
	resp := Normalize(
		map[string]any{"personaReply": personaReply},
		s.zeroUsage(s.DayKey()),
		[]string{domain.FlagInvalidJSON},
	)
	return resp, http.StatusBadRequest
}

// Chat runs one chat turn. Quota is checked before any paid call and
// incremented only after a successful upstream response.
func (s CoachService) Chat(ctx domain.Context, clientID string, req ChatRequest) (domain.CoachResponse, int) {
	dayKey := s.DayKey()

	if s.Usage == nil {
		return s.configError(dayKey, "서버 설정 오류로 응답을 만들 수 없습니다.")
	}

	msg := s.Sanitize(req.Message)

	usage, err := s.Usage.Read(ctx, dayKey, clientID, s.Limit)
	if err != nil {
		slog.Error("usage read failed", slog.String("client_id", clientID), slog.Any("error", err))
		observability.QuotaDecisionsTotal.WithLabelValues("chat", "error").Inc()
		return s.configError(dayKey, "서버 설정 오류로 응답을 만들 수 없습니다.")
	}
	if usage.Used >= s.Limit {
		observability.QuotaDecisionsTotal.WithLabelValues("chat", "exhausted").Inc()
		exhausted := usage
		exhausted.Remaining = 0
		resp := Normalize(
			map[string]any{"personaReply": "오늘 무료 턴이 소진되었습니다. 리포트를 확인하거나 내일 다시 시도해 주세요."},
			exhausted,
			mergeFlags([]string{domain.FlagDailyLimitReached}, msg.Flags),
		)
		return resp, http.StatusTooManyRequests
	}
	observability.QuotaDecisionsTotal.WithLabelValues("chat", "allowed").Inc()

	payload := map[string]any{
		"setup": map[string]string{
			"conversationType": orDefault(req.Setup.ConversationType, "child"),
			"ageGroup":         orDefault(req.Setup.AgeGroup, "20대"),
			"gender":           req.Setup.Gender,
			"mbti":             req.Setup.MBTI,
			"personaPreset":    orDefault(req.Setup.PersonaPreset, "예민"),
		},
		"message": msg.Text,
		"chatLog": tail(req.ChatLog, chatLogKeep),
		"policy":  "확정 금지, 가능성 기반 리허설 톤 유지",
	}

	raw, err := s.AI.Ask(ctx, s.Prompts.Chat, payload)
	if err != nil {
		return s.chatFailure(ctx, err, msg, usage)
	}

	// The upstream call succeeded, so the turn is spent. At-least-once is
	// the contract here; a cancelled request after this point keeps its
	// increment.
	if ierr := s.Usage.Increment(ctx, dayKey, clientID); ierr != nil {
		slog.Error("usage increment failed after successful upstream call",
			slog.String("client_id", clientID), slog.Any("error", ierr))
		return s.configError(dayKey, "서버 설정 오류로 응답을 만들 수 없습니다.")
	}
	snap, rerr := s.Usage.Read(ctx, dayKey, clientID, s.Limit)
	if rerr != nil {
		// The increment committed; report the locally known count rather
		// than failing a successful turn. Concurrent turns can make the
		// estimate low, so log it for later reconciliation.
		slog.Warn("usage re-read failed; reporting local estimate",
			slog.String("client_id", clientID),
			slog.Int("estimated_used", usage.Used+1),
			slog.Any("error", rerr))
		snap = domain.NewUsageSnapshot(s.Limit, usage.Used+1, dayKey)
	}

	flags := mergeFlags(flagsFromPayload(raw), msg.Flags)
	return Normalize(raw, snap, flags), http.StatusOK
}

// chatFailure maps a classified upstream failure onto a response. Quota is
// never incremented on any failure path.
func (s CoachService) chatFailure(_ domain.Context, err error, msg domain.SanitizedMessage, usage domain.UsageSnapshot) (domain.CoachResponse, int) {
	detail := err.Error()
	classified := domain.ClassifyUpstreamError(detail)
	slog.Error("upstream chat call failed",
		slog.String("flag", classified.Flag),
		slog.Int("status", classified.Status),
		slog.String("detail", detail))

	flags := mergeFlags(msg.Flags, []string{classified.Flag})

	if classified.Flag == domain.FlagUpstreamQuotaError {
		// Provider-side exhaustion degrades to a still-useful offline
		// answer; a degraded turn is a success from the caller's side.
		observability.FallbackResponsesTotal.WithLabelValues("chat", domain.FlagLocalFallback).Inc()
		resp := Normalize(
			LocalChatFallback(msg.Text),
			usage,
			mergeFlags(flags, []string{domain.FlagLocalFallback}),
		)
		return resp, http.StatusOK
	}

	resp := Normalize(map[string]any{"personaReply": classified.Message}, usage, flags)
	return resp, classified.Status
}

// Report runs one report turn. It reads quota for display but never
// increments it, and never surfaces a hard upstream error to the caller.
func (s CoachService) Report(ctx domain.Context, clientID string, req ReportRequest) (domain.CoachResponse, int) {
	dayKey := s.DayKey()

	if s.Usage == nil {
		return s.configError(dayKey, "서버 설정 오류로 리포트를 만들 수 없습니다.")
	}

	usage, err := s.Usage.Read(ctx, dayKey, clientID, s.Limit)
	if err != nil {
		slog.Error("usage read failed", slog.String("client_id", clientID), slog.Any("error", err))
		observability.QuotaDecisionsTotal.WithLabelValues("report", "error").Inc()
		return s.configError(dayKey, "서버 설정 오류로 리포트를 만들 수 없습니다.")
	}
	observability.QuotaDecisionsTotal.WithLabelValues("report", "allowed").Inc()

	last := s.Sanitize(req.LastUserMessage)
	log := tail(req.ChatLog, reportLogKeep)

	payload := map[string]any{
		"setup":           req.Setup,
		"chatLog":         log,
		"lastUserMessage": last.Text,
		"task":            "감정 가능성/니즈 가능성/개선 포인트/대안 문장 3개",
	}

	raw, err := s.AI.Ask(ctx, s.Prompts.Report, payload)
	if err != nil {
		detail := err.Error()
		classified := domain.ClassifyUpstreamError(detail)
		slog.Error("upstream report call failed",
			slog.String("flag", classified.Flag),
			slog.String("detail", detail))

		if classified.Flag == domain.FlagUpstreamQuotaError {
			observability.FallbackResponsesTotal.WithLabelValues("report", domain.FlagLocalFallback).Inc()
			resp := Normalize(
				LocalReportFallback(log, last.Text),
				usage,
				mergeFlags(last.Flags, []string{classified.Flag, domain.FlagLocalFallback}),
			)
			return resp, http.StatusOK
		}

		observability.FallbackResponsesTotal.WithLabelValues("report", domain.FlagUpstreamError).Inc()
		resp := Normalize(
			map[string]any{"personaReply": "리포트 생성 중 오류가 발생했습니다. 가능성 기준으로 보면 상대는 존중/안전감 니즈가 있었을 수 있습니다. 입력을 더 구체화해 다시 시도해 주세요."},
			usage,
			last.Flags,
		)
		return resp, http.StatusOK
	}

	flags := mergeFlags(flagsFromPayload(raw), last.Flags)
	return Normalize(raw, usage, flags), http.StatusOK
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func tail(entries []domain.ChatEntry, keep int) []domain.ChatEntry {
	if len(entries) <= keep {
		if entries == nil {
			return []domain.ChatEntry{}
		}
		return entries
	}
	return entries[len(entries)-keep:]
}
