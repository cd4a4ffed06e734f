package chat

import (
	"fmt"
	"strings"
)

// defaultSystemPrompt はアシスタントのシステムプロンプト。
// ユーザープロフィール文脈と検索文書が実行時に埋め込まれる。
const defaultSystemPrompt = `You are Jeeves, a friendly health and nutrition assistant.
Help the user make better food choices, plan meals, and track calories.
You are not a replacement for health professionals; remind the user to
consult a doctor for medical advice when relevant.

User profile:
- Dietary restrictions: %s
- Primary goal: %s
- Conditions and allergies: %s

Use the following reference material when it is relevant to the question.
If it is not relevant, answer from general knowledge and say so.

%s`

// auditSummaryPrompt は監査レポート（degree audit）要約のプロンプト。
const auditSummaryPrompt = `Summarize the following advisement report for the student.
List completed requirements, remaining requirements, and any notable risks.
Be concise and use plain language.

Report:
%s`

// auditSeedMessage は監査レポートのアップロードを履歴上で表すユーザーメッセージ。
const auditSeedMessage = "*You uploaded your advisement report*"

// StarterPrompts は初回表示用のおすすめプロンプト。
var StarterPrompts = []string{
	"Hi Jeeves, what can you do?",
	"What should I eat for lunch today?",
	"Help me plan a high-protein low carb day tomorrow",
}

// buildSystemPrompt はプロフィール文脈と検索文書からシステムプロンプトを構築する。
func buildSystemPrompt(dietary, goals, conditions string, docs []string) string {
	reference := "(no reference material)"
	if len(docs) > 0 {
		reference = strings.Join(docs, "\n\n")
	}
	return fmt.Sprintf(defaultSystemPrompt,
		orUnspecified(dietary),
		orUnspecified(goals),
		orUnspecified(conditions),
		reference,
	)
}

func orUnspecified(s string) string {
	if strings.TrimSpace(s) == "" {
		return "unspecified"
	}
	return s
}
