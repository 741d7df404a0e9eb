package tts

import (
	"sort"
	"strings"
)

// ScoreVoice rates how well v suits langHint. Mandarin voices are preferred
// when nothing better matches.
func ScoreVoice(v VoiceInfo, langHint string) int {
	name := strings.ToLower(v.Name)
	lang := strings.ToLower(v.Language)
	hint := strings.ToLower(langHint)

	score := 0
	if hint != "" {
		if lang == hint {
			score += 80
		}
		if base, _, _ := strings.Cut(hint, "-"); strings.HasPrefix(lang, base) {
			score += 40
		}
	}

	if strings.HasPrefix(lang, "zh-cn") {
		score += 60
	}
	if strings.Contains(lang, "cmn") {
		score += 55
	}
	if strings.HasPrefix(lang, "zh") {
		score += 25
	}

	if strings.Contains(name, "mandarin") || strings.Contains(name, "putonghua") || strings.Contains(name, "普通") {
		score += 40
	}
	if strings.Contains(name, "enhanced") || strings.Contains(name, "premium") || strings.Contains(name, "neural") || v.Natural {
		score += 8
	}
	return score
}

// RankVoices returns a copy of voices ordered best first for langHint.
// Ties keep their original order.
func RankVoices(voices []VoiceInfo, langHint string) []VoiceInfo {
	ranked := make([]VoiceInfo, len(voices))
	copy(ranked, voices)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ScoreVoice(ranked[i], langHint) > ScoreVoice(ranked[j], langHint)
	})
	return ranked
}

// FindVoice returns the voice with the given ID.
func FindVoice(voices []VoiceInfo, id string) (VoiceInfo, bool) {
	for _, v := range voices {
		if v.ID == id {
			return v, true
		}
	}
	return VoiceInfo{}, false
}
