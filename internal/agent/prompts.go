package agent

import "strings"

const systemPromptTemplate = `You are an AI assistant helping the user manage their Slack communications.

Your role is to:
1. Help the user understand what needs their attention in Slack
2. Summarize and prioritize messages and threads
3. Find relevant context when asked about specific topics
4. Remember important facts and follow-ups the user tells you

## Tools Available

You have access to tools that let you:
- **get_status**: Get a prioritized list of items needing attention (mentions, DMs, thread replies)
- **search**: Search for messages matching a query
- **get_thread**: Get all messages in a specific thread for full context
- **find_context**: Find messages related to a given message
- **manage_preferences**: Remember facts and rules the user tells you

## How to Respond

- Be concise and actionable
- Present information in a scannable format
- When showing messages, include who sent them and when
- Always include Slack links so the user can easily jump to messages
- When the user asks you to remember something, use the manage_preferences tool

## Priority Levels

Items are prioritized as:
- **CRITICAL**: You were directly @-mentioned (needs response)
- **HIGH**: Direct messages from others
- **MEDIUM**: New replies in threads you participated in
- **LOW**: Mentions you've already replied to

## User Context

{user_context}

{session_context}

{custom_rules}

{remembered_facts}

{emoji_patterns}
`

// PromptContext carries the user-specific sections of the system
// prompt. Empty fields get neutral fallbacks.
type PromptContext struct {
	UserContext     string
	SessionContext  string
	CustomRules     string
	RememberedFacts string
	EmojiPatterns   string
}

// BuildSystemPrompt renders the system prompt with the user's
// preferences and session state filled in.
func BuildSystemPrompt(pc PromptContext) string {
	return strings.NewReplacer(
		"{user_context}", fallback(pc.UserContext, "No specific user context."),
		"{session_context}", fallback(pc.SessionContext, ""),
		"{custom_rules}", fallback(pc.CustomRules, "No custom rules defined."),
		"{remembered_facts}", fallback(pc.RememberedFacts, "No remembered facts."),
		"{emoji_patterns}", fallback(pc.EmojiPatterns, "No emoji patterns defined."),
	).Replace(systemPromptTemplate)
}

func fallback(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// InitialStatusPrompt opens a fresh session with a status check.
const InitialStatusPrompt = `Please check my Slack status and give me a summary of what needs my attention.
Group items by priority and be concise.`

// ResumeStatusPrompt opens a resumed session that carries a saved
// conversation summary.
const ResumeStatusPrompt = `I'm back. Briefly recap where we left off based on the saved session context,
then check my Slack status for anything new. Group items by priority and be concise.`
