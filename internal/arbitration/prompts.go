package arbitration

import (
	"fmt"
	"strings"

	"github.com/fairguard/backend/internal/classifier"
	"github.com/fairguard/backend/internal/models"
)

const abuseSystem = `You review warnings issued by moderators and decide whether the warning is an abuse of moderator power.

A warning is ABUSE when:
1. The reason is vague or insufficient. A reason that is only an emotional word ("annoying", "gross", "うざい", "キモい") is ABUSE.
2. The reason is a personal feeling followed by a causal connector ("because annoying", "うざいから") and nothing else.
3. The same moderator keeps warning the same user in a short time without new grounds.
4. The warning ignores what the conversation shows.

A warning is NOT abuse when the reason cites an objective rule violation that the message or context supports.

Reply with JSON only:
{"is_abuse": true or false, "reason": "short reason", "concerns": ["concern", ...]}`

func abusePrompt(w ManualWarn, content, snapshot string, recentWarns int, lookbackHint bool) classifier.Prompt {
	var b strings.Builder
	fmt.Fprintf(&b, `[moderator]: %s
[target]: %s
[stated reason]: %s
[message]: %s
[context]:
%s
`, w.ModeratorID, w.TargetID, w.Reason, content, snapshot)
	if lookbackHint {
		fmt.Fprintf(&b, "\n[note]: this moderator already warned this user %d times in the last hour.\n", recentWarns)
	}
	return classifier.Prompt{System: abuseSystem, User: b.String()}
}

const appealSystem = `You are a fair judge reviewing a user's appeal against a moderation warning.

Rules:
1. Mentioning is protected. If the message discussed or quoted a forbidden word, ACCEPT even though the word itself is bad.
2. The past does not count. If this message and the appeal are legitimate, ACCEPT regardless of earlier behavior.
3. Lies are rejected. An excuse clearly contradicted by the context is REJECTED.
4. A plausible appeal that the context does not contradict is ACCEPTED.

Reply with JSON only:
{"status": "ACCEPTED" or "REJECTED", "reason": "short reason"}`

func appealPrompt(entry *models.ModLog, appealText string) classifier.Prompt {
	return classifier.Prompt{
		System: appealSystem,
		User: fmt.Sprintf(`[warning reason]: %s
[appeal]: %s
[original message]: %s
[context]:
%s`, entry.Reason, appealText, entry.Content, entry.ContextSnapshot),
	}
}
