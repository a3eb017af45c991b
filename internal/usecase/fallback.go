package usecase

import (
	"fmt"
	"strings"

	"github.com/fairyhunter13/rehearsal-coach/internal/domain"
)

// Fixed defaults used whenever the upstream payload is missing a field.
const defaultPersonaReply = "가능성 기반 리허설 답변을 생성하지 못했습니다. 입력을 더 구체적으로 적어 다시 시도해 주세요."

var (
	defaultEmotions = []string{"혼란", "방어적"}
	defaultNeeds    = []string{"존중", "안전감"}

	defaultRewrites = map[string]string{
		domain.RewriteEmpathetic: "네 마음이 힘들 수 있겠다고 느껴. 내 의도도 차분히 설명해볼게.",
		domain.RewriteFirm:       "서로 존중은 필요해. 이 선은 지키고 이야기하고 싶어.",
		domain.RewriteBrief:      "지금은 감정 정리 후 다시 말하자.",
	}

	rewriteLabels = []string{domain.RewriteEmpathetic, domain.RewriteFirm, domain.RewriteBrief}
)

// maxGuesses caps emotionGuess and needsGuess.
const maxGuesses = 5

// Normalize rebuilds any AI-supplied or partial payload into the canonical
// response shape. It is total: an empty map yields a fully defaulted
// response with exactly three labeled rewrite suggestions.
func Normalize(raw map[string]any, usage domain.UsageSnapshot, flags []string) domain.CoachResponse {
	if raw == nil {
		raw = map[string]any{}
	}
	if flags == nil {
		flags = []string{}
	}
	return domain.CoachResponse{
		PersonaReply:       stringOr(raw["personaReply"], defaultPersonaReply),
		EmotionGuess:       stringsOr(raw["emotionGuess"], defaultEmotions),
		NeedsGuess:         stringsOr(raw["needsGuess"], defaultNeeds),
		RewriteSuggestions: normalizeRewrites(raw["rewriteSuggestions"]),
		SafetyFlags:        flags,
		Usage:              usage,
	}
}

// normalizeRewrites looks up each fixed label in the raw suggestion list and
// substitutes the default text when the label is absent or empty.
func normalizeRewrites(v any) []domain.RewriteSuggestion {
	byLabel := map[string]string{}
	if items, ok := v.([]any); ok {
		for _, it := range items {
			m, ok := it.(map[string]any)
			if !ok {
				continue
			}
			label, _ := m["label"].(string)
			text, _ := m["text"].(string)
			if label != "" && text != "" {
				byLabel[label] = text
			}
		}
	}
	out := make([]domain.RewriteSuggestion, 0, len(rewriteLabels))
	for _, label := range rewriteLabels {
		text := byLabel[label]
		if text == "" {
			text = defaultRewrites[label]
		}
		out = append(out, domain.RewriteSuggestion{Label: label, Text: text})
	}
	return out
}

// mood buckets for the offline fallbacks.
type moodProfile struct {
	keywords []string
	emotions []string
	needs    []string
	chatLine string
	report   string
}

var moodProfiles = []moodProfile{
	{
		keywords: []string{"미안", "사과", "잘못", "후회"},
		emotions: []string{"미안함", "후회"},
		needs:    []string{"이해", "화해"},
		chatLine: "네가 먼저 미안한 마음을 꺼낸 것 자체가 큰 걸음일 수 있어. 그 마음을 구체적인 한 문장으로 전해보면 어떨까.",
		report:   "상대에게 사과와 화해의 니즈가 있었을 가능성이 있습니다.",
	},
	{
		keywords: []string{"화", "짜증", "분노", "열받"},
		emotions: []string{"분노", "답답함"},
		needs:    []string{"존중", "인정"},
		chatLine: "지금은 화가 올라와 있는 상태일 수 있어. 감정이 가라앉은 뒤에 핵심만 짧게 전하는 쪽이 안전할 수 있어.",
		report:   "상대가 존중받지 못했다고 느꼈을 가능성이 있습니다.",
	},
	{
		keywords: []string{"불안", "걱정", "무서", "두려"},
		emotions: []string{"불안", "걱정"},
		needs:    []string{"안심", "확신"},
		chatLine: "불안이 느껴지는 내용이야. 먼저 스스로를 안심시키는 문장을 고른 뒤에 대화를 이어가 보자.",
		report:   "상대에게 안심과 확신의 니즈가 있었을 가능성이 있습니다.",
	},
}

func matchMood(text string) *moodProfile {
	for i := range moodProfiles {
		for _, kw := range moodProfiles[i].keywords {
			if strings.Contains(text, kw) {
				return &moodProfiles[i]
			}
		}
	}
	return nil
}

// LocalChatFallback synthesizes a chat reply without any network call. The
// message text is keyword-matched against three emotional categories to pick
// a plausible emotion/needs pair; rewrite suggestions fall back to the fixed
// defaults via Normalize.
func LocalChatFallback(messageText string) map[string]any {
	reply := "지금은 AI 연결 없이 준비된 리허설 문장으로 답할게. "
	emotions, needs := defaultEmotions, defaultNeeds
	if m := matchMood(messageText); m != nil {
		reply += m.chatLine
		emotions, needs = m.emotions, m.needs
	} else {
		reply += "상대의 마음은 확정할 수 없지만, 존중과 안전감을 지키는 문장부터 연습해 보자."
	}
	return map[string]any{
		"personaReply": reply,
		"emotionGuess": toAny(emotions),
		"needsGuess":   toAny(needs),
	}
}

// LocalReportFallback synthesizes an offline report from the turn count and
// the same keyword matching applied to the last user message.
func LocalReportFallback(chatLog []domain.ChatEntry, lastMessage string) map[string]any {
	summary := fmt.Sprintf("리포트를 AI 없이 요약합니다. 이번 리허설은 %d턴 진행되었습니다. ", len(chatLog))
	emotions, needs := defaultEmotions, defaultNeeds
	if m := matchMood(lastMessage); m != nil {
		summary += m.report
		emotions, needs = m.emotions, m.needs
	} else {
		summary += "가능성 기준으로 보면 상대는 존중/안전감 니즈가 있었을 수 있습니다."
	}
	summary += " 입력을 더 구체화해 다시 시도해 주세요."
	return map[string]any{
		"personaReply": summary,
		"emotionGuess": toAny(emotions),
		"needsGuess":   toAny(needs),
	}
}

func stringOr(v any, def string) string {
	if s, ok := v.(string); ok && s != "" {
		return s
	}
	return def
}

func stringsOr(v any, def []string) []string {
	items, ok := v.([]any)
	if !ok {
		return def
	}
	// An empty list from upstream stays empty; defaults only cover a
	// missing or non-list field.
	out := make([]string, 0, maxGuesses)
	for _, it := range items {
		if s, ok := it.(string); ok {
			out = append(out, s)
		}
		if len(out) == maxGuesses {
			break
		}
	}
	return out
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

// mergeFlags deduplicates while preserving first-seen order.
func mergeFlags(groups ...[]string) []string {
	out := []string{}
	seen := map[string]bool{}
	for _, g := range groups {
		for _, f := range g {
			if f != "" && !seen[f] {
				seen[f] = true
				out = append(out, f)
			}
		}
	}
	return out
}

// flagsFromPayload pulls upstream-declared safety flags out of a raw object.
func flagsFromPayload(raw map[string]any) []string {
	if raw == nil {
		return nil
	}
	return stringsOrEmpty(raw["safetyFlags"])
}

func stringsOrEmpty(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		if s, ok := it.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
