package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Prompts carries the system prompts sent upstream. The defaults ship with
// the binary; a YAML file can override either one for prompt iteration
// without a rebuild.
type Prompts struct {
	Chat   string `yaml:"chat"`
	Report string `yaml:"report"`
}

const defaultChatPrompt = `너는 대화 리허설 코치다.
- 절대 상대의 마음/의도를 확정하지 말고, 가능성/가정 표현만 사용한다.
- 조종, 기만, 가스라이팅, 복수, 협박을 돕는 조언을 금지한다.
- 미성년(자녀 유형)일 때 성적/선정적/연애 유도 문장을 생성하지 않는다.
- 개인정보를 요구하거나 유도하지 않는다.
- 한국어로 답한다.
반드시 JSON으로만 응답하고 키는 아래를 사용:
personaReply(string), emotionGuess(string[]), needsGuess(string[]), rewriteSuggestions([{label,text}]), safetyFlags(string[]).
rewriteSuggestions는 label을 반드시 공감형/단호형/짧게 3개로 반환.`

const defaultReportPrompt = `너는 대화 리허설 리포트 코치다.
- 상대의 감정/의도를 확정하지 않고 가능성으로만 표현한다.
- 조종/기만/가스라이팅/복수/위협성 조언을 금지한다.
- 미성년(자녀 유형)일 때 성적/선정적 연애 문장 금지.
- 결과는 간결한 한국어.
반드시 JSON만 반환하고 키는:
personaReply(string: 잘한 점/개선점 요약), emotionGuess(string[]), needsGuess(string[]), rewriteSuggestions([{label,text}]), safetyFlags(string[]).
rewriteSuggestions는 label을 반드시 공감형/단호형/짧게 3개로 반환.`

// DefaultPrompts returns the embedded prompt set.
func DefaultPrompts() Prompts {
	return Prompts{Chat: defaultChatPrompt, Report: defaultReportPrompt}
}

// LoadPrompts returns the defaults merged with overrides from path, if set.
// Empty fields in the file keep their default.
func LoadPrompts(path string) (Prompts, error) {
	p := DefaultPrompts()
	if path == "" {
		return p, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Prompts{}, fmt.Errorf("op=config.LoadPrompts: %w", err)
	}
	var override Prompts
	if err := yaml.Unmarshal(b, &override); err != nil {
		return Prompts{}, fmt.Errorf("op=config.LoadPrompts: %w", err)
	}
	if override.Chat != "" {
		p.Chat = override.Chat
	}
	if override.Report != "" {
		p.Report = override.Report
	}
	return p, nil
}
