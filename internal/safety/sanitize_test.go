package safety_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/rehearsal-coach/internal/domain"
	"github.com/fairyhunter13/rehearsal-coach/internal/safety"
)

func TestSanitize_PhoneNumberMasked(t *testing.T) {
	t.Parallel()
	got := safety.Sanitize("연락처는 010-1234-5678 이야")
	assert.NotContains(t, got.Text, "010-1234-5678")
	assert.NotContains(t, got.Text, "1234")
	assert.Contains(t, got.Text, safety.RedactionMarker)
	assert.Contains(t, got.Flags, domain.FlagPossiblePII)
}

func TestSanitize_EmailMasked(t *testing.T) {
	t.Parallel()
	got := safety.Sanitize("메일은 someone@example.com 으로 보내줘")
	assert.NotContains(t, got.Text, "someone@example.com")
	assert.NotContains(t, got.Text, "example.com")
	assert.Contains(t, got.Text, safety.RedactionMarker)
	assert.Contains(t, got.Flags, domain.FlagPossiblePII)
}

func TestSanitize_EveryOccurrenceMasked(t *testing.T) {
	t.Parallel()
	// Repeated matches of the same pattern must all be replaced.
	got := safety.Sanitize("010-1111-2222 하고 010-3333-4444 둘 다 내 번호야")
	assert.NotContains(t, got.Text, "1111")
	assert.NotContains(t, got.Text, "3333")
	assert.Equal(t, 2, strings.Count(got.Text, safety.RedactionMarker))
}

func TestSanitize_KeywordMentionsMasked(t *testing.T) {
	t.Parallel()
	for _, kw := range []string{"실명", "학교", "연락처", "주소", "카카오톡", "인스타", "instagram", "Instagram"} {
		got := safety.Sanitize("내 " + kw + " 알려줄게")
		assert.NotContains(t, got.Text, kw, "keyword %q should be masked", kw)
		assert.Contains(t, got.Flags, domain.FlagPossiblePII)
	}
}

func TestSanitize_ManipulationFlagsWithoutRedaction(t *testing.T) {
	t.Parallel()
	got := safety.Sanitize("이건 가스라이팅 아니야?")
	assert.Contains(t, got.Text, "가스라이팅")
	assert.Contains(t, got.Flags, domain.FlagManipulationRisk)
	assert.NotContains(t, got.Flags, domain.FlagPossiblePII)
}

func TestSanitize_TruncatesTo1200(t *testing.T) {
	t.Parallel()
	long := strings.Repeat("가", 5000)
	got := safety.Sanitize(long)
	assert.LessOrEqual(t, len([]rune(got.Text)), 1200)
}

func TestSanitize_RedactionNeverExpandsPastLimit(t *testing.T) {
	t.Parallel()
	// The marker is longer than the keyword it replaces, so a keyword-dense
	// input would grow threefold without the post-redaction clamp.
	dense := strings.Repeat("학교", 600)
	got := safety.Sanitize(dense)
	assert.LessOrEqual(t, len([]rune(got.Text)), 1200)
	assert.Contains(t, got.Flags, domain.FlagPossiblePII)

	// Mixed input just under the limit stays bounded too.
	mixed := strings.Repeat("가", 1100) + strings.Repeat("주소 ", 40)
	got = safety.Sanitize(mixed)
	assert.LessOrEqual(t, len([]rune(got.Text)), 1200)
}

func TestSanitize_FlagsDeduplicated(t *testing.T) {
	t.Parallel()
	got := safety.Sanitize("이메일 a@b.co 전화 010-1234-5678 학교 주소")
	count := 0
	for _, f := range got.Flags {
		if f == domain.FlagPossiblePII {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestSanitize_CleanInput(t *testing.T) {
	t.Parallel()
	got := safety.Sanitize("오늘 좀 힘들었어")
	require.Equal(t, "오늘 좀 힘들었어", got.Text)
	assert.Empty(t, got.Flags)
}
