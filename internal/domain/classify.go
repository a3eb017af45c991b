package domain

import "strings"

// Classification maps a raw upstream error detail onto the fixed taxonomy.
type Classification struct {
	Flag    string
	Status  int
	Message string
}

// ClassifyUpstreamError is a pure function of the raw error text. Matching is
// ordered by specificity: a credential-shaped message must win before the
// generic buckets, since a 401 body often also mentions the request itself.
func ClassifyUpstreamError(detail string) Classification {
	d := strings.ToLower(detail)

	switch {
	case strings.Contains(d, "openai_api_key is missing"),
		strings.Contains(d, "invalid_api_key"),
		strings.Contains(d, "incorrect api key"),
		strings.Contains(d, " 401"),
		strings.HasPrefix(d, "401"):
		return Classification{
			Flag:    FlagServerConfigError,
			Status:  500,
			Message: "서버 설정 문제로 응답을 만들 수 없습니다. 잠시 후 다시 시도해 주세요.",
		}
	case strings.Contains(d, "insufficient_quota"),
		strings.Contains(d, "rate limit"),
		strings.Contains(d, "rate_limit"),
		strings.Contains(d, " 429"),
		strings.HasPrefix(d, "429"):
		return Classification{
			Flag:    FlagUpstreamQuotaError,
			Status:  502,
			Message: "AI 사용량이 일시적으로 초과되었습니다. 잠시 후 다시 시도해 주세요.",
		}
	case strings.Contains(d, "model_not_found"),
		strings.Contains(d, "does not exist"),
		strings.Contains(d, "unknown model"):
		return Classification{
			Flag:    FlagModelConfigError,
			Status:  500,
			Message: "모델 설정 문제로 응답을 만들 수 없습니다.",
		}
	case strings.Contains(d, "response_format"):
		return Classification{
			Flag:    FlagUpstreamReqError,
			Status:  502,
			Message: "AI 응답 형식 협상에 실패했습니다. 잠시 후 다시 시도해 주세요.",
		}
	default:
		return Classification{
			Flag:    FlagUpstreamError,
			Status:  502,
			Message: "AI 응답 생성에 실패했습니다. 잠시 후 다시 시도해 주세요.",
		}
	}
}
