// Package domain holds the core types and ports of the rehearsal coach.
package domain

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Error taxonomy (sentinels)
var (
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrInternal           = errors.New("internal error")
)

// Safety and fault flags carried in CoachResponse.SafetyFlags.
const (
	FlagPossiblePII        = "possible_pii"
	FlagManipulationRisk   = "manipulation_risk"
	FlagInvalidJSON        = "invalid_json"
	FlagServerConfigError  = "server_config_error"
	FlagUpstreamQuotaError = "upstream_quota_error"
	FlagModelConfigError   = "model_config_error"
	FlagUpstreamReqError   = "upstream_request_error"
	FlagUpstreamError      = "upstream_error"
	FlagDailyLimitReached  = "daily_limit_reached"
	FlagLocalFallback      = "local_fallback_active"
)

// Rewrite suggestion labels. Exactly these three, in this order, always.
const (
	RewriteEmpathetic = "공감형"
	RewriteFirm       = "단호형"
	RewriteBrief      = "짧게"
)

// UsageRecord is the persisted daily counter for one (day, client) pair.
// count only increases within a day; absence of a record means zero.
type UsageRecord struct {
	DayKey    string
	ClientID  string
	Count     int
	UpdatedAt time.Time
}

// UsageSnapshot is the derived, never-persisted quota view returned to callers.
type UsageSnapshot struct {
	Limit     int    `json:"limit"`
	Used      int    `json:"used"`
	Remaining int    `json:"remaining"`
	DayKey    string `json:"dayKey"`
}

// NewUsageSnapshot clamps remaining so it is never negative.
func NewUsageSnapshot(limit, used int, dayKey string) UsageSnapshot {
	remaining := limit - used
	if remaining < 0 {
		remaining = 0
	}
	return UsageSnapshot{Limit: limit, Used: used, Remaining: remaining, DayKey: dayKey}
}

// SanitizedMessage is the ephemeral output of the safety filter.
type SanitizedMessage struct {
	Text  string
	Flags []string
}

// RewriteSuggestion is one labeled alternative phrasing.
type RewriteSuggestion struct {
	Label string `json:"label"`
	Text  string `json:"text"`
}

// CoachResponse is the canonical output shape. Every code path, including
// total upstream failure, yields a value conforming to it.
type CoachResponse struct {
	PersonaReply       string              `json:"personaReply"`
	EmotionGuess       []string            `json:"emotionGuess"`
	NeedsGuess         []string            `json:"needsGuess"`
	RewriteSuggestions []RewriteSuggestion `json:"rewriteSuggestions"`
	SafetyFlags        []string            `json:"safetyFlags"`
	Usage              UsageSnapshot       `json:"usage"`
}

// ChatSetup describes the rehearsal persona the client configured.
type ChatSetup struct {
	ConversationType string `json:"conversationType"`
	AgeGroup         string `json:"ageGroup"`
	Gender           string `json:"gender"`
	MBTI             string `json:"mbti"`
	PersonaPreset    string `json:"personaPreset"`
}

// ChatEntry is one prior turn forwarded back by the client.
type ChatEntry struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// UsageRepository (port) tracks the per-(day, client) counter.
// Increment must be a single atomic upsert at the storage layer: two
// concurrent increments for the same key must never lose an update.
type UsageRepository interface {
	Read(ctx Context, dayKey, clientID string, limit int) (UsageSnapshot, error)
	Increment(ctx Context, dayKey, clientID string) error
}

// AIClient (port) asks the upstream provider for a structured object.
// A failed call returns an *ai.UpstreamError-shaped error after the client's
// internal model/format fallback is exhausted.
type AIClient interface {
	Ask(ctx Context, systemPrompt string, payload any) (map[string]any, error)
}

// NormalizeClientID applies the self-reported identity rules: empty or
// whitespace becomes "anonymous", anything longer than 120 chars is cut.
func NormalizeClientID(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return "anonymous"
	}
	if r := []rune(v); len(r) > 120 {
		v = string(r[:120])
	}
	return v
}

// Context is an alias so the domain package stays decoupled from adapters;
// everything passes context.Context through.
type Context = context.Context
