package moderation

import (
	"fmt"
	"time"

	"github.com/fairguard/backend/internal/classifier"
)

const graylistSystem = `You are a fair moderator. Decide whether the [target message] is an abusive remark that should be punished, given its context.

Rules:
1. Meta discussion is protected. Quoting or talking about a banned word (for example "saying 'die' is not ok") is SAFE.
2. Judge this message only. If the author behaved badly earlier but this message is harmless, it is SAFE.
3. UNSAFE only when the word is clearly used to hurt someone.

Reply with JSON only:
{"verdict": "SAFE" or "UNSAFE", "reason": "short reason"}`

func graylistPrompt(snapshot, content string) classifier.Prompt {
	return classifier.Prompt{
		System: graylistSystem,
		User: fmt.Sprintf(`[context]:
%s

[target message]: %s`, snapshot, content),
	}
}

// spamSystem takes the length limit
const spamSystem = `You are a fair moderator. Decide whether this message should be punished as a long post or as spam.

Criteria:
1. Long post: over %d characters is normally PUNISH, but it is SAFE when it is a technical explanation with code or quotes, a legitimate summary of important information, or creative writing.
2. Spam: many messages in a short time is normally PUNISH, but it is SAFE when it is a natural run of replies in a conversation, an answer split over several messages, or important information sent in parts.
3. Consider the context. With a legitimate reason, answer SAFE.

Reply with JSON only:
{"verdict": "PUNISH" or "SAFE", "reason": "short reason", "type": "LONG_MESSAGE" or "SPAM" or "BOTH"}`

func spamPrompt(content string, length, recent int, window time.Duration, maxLength int) classifier.Prompt {
	return classifier.Prompt{
		System: fmt.Sprintf(spamSystem, maxLength),
		User: fmt.Sprintf(`[message]: %s
[length]: %d characters
[messages in the last %s]: %d`, content, length, window, recent),
	}
}
