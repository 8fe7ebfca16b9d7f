package agent

import (
	"fmt"
	"strings"
)

// Capability 智能体能力描述，用于拼装意图分类提示词。
type Capability struct {
	Description string
	Keywords    []string
	Examples    []string
	UseWhen     string
}

// capabilities 内置智能体的能力表。
var capabilities = map[Type]Capability{
	TypeChat: {
		Description: "General conversation, greetings, clarifications and open-ended questions.",
		Keywords:    []string{"chat", "hello", "help", "explain", "talk"},
		Examples:    []string{"Hello, how are you?", "Can you explain what this system does?"},
		UseWhen:     "No other agent clearly matches the request.",
	},
	TypeGraphQuery: {
		Description: "Questions about entities and relationships stored in the graph database, answered via Cypher queries.",
		Keywords:    []string{"graph", "relationship", "connected", "node", "cypher", "database"},
		Examples:    []string{"Which companies are connected to Acme Corp?", "How many nodes of type Person exist?"},
		UseWhen:     "The question concerns structured entities, relationships or aggregates over the graph.",
	},
	TypeRetrieval: {
		Description: "Questions answered from the document knowledge base via semantic retrieval.",
		Keywords:    []string{"document", "documentation", "article", "knowledge", "search", "find"},
		Examples:    []string{"What does the onboarding guide say about VPN access?", "Find documents about quarterly planning."},
		UseWhen:     "The answer likely lives in indexed documents rather than the graph or general knowledge.",
	},
}

// intentPrompt 拼装意图分类提示词。
// 输出约定：第一个词为智能体类型，第二个词为置信度。
func intentPrompt(query string) string {
	var b strings.Builder
	b.WriteString("You are an intent classifier for a conversational system. ")
	b.WriteString("Classify the user message into exactly one agent type.\n\nAgents:\n")
	for _, t := range BuiltinTypes() {
		cap := capabilities[t]
		fmt.Fprintf(&b, "- %s: %s\n  Keywords: %s\n  Use when: %s\n  Examples: %s\n",
			t, cap.Description,
			strings.Join(cap.Keywords, ", "),
			cap.UseWhen,
			strings.Join(cap.Examples, " | "))
	}
	b.WriteString("\nRespond with exactly two tokens: the agent type and a confidence between 0 and 1.\n")
	b.WriteString("Example response: graphquery 0.85\n\nUser message: ")
	b.WriteString(query)
	return b.String()
}

// chatSystemPrompt 聊天智能体默认系统提示词。
const chatSystemPrompt = `You are a helpful, concise assistant. Answer in the language the user writes in. If you do not know something, say so instead of guessing.`

// analysisPrompt 图查询意图分析提示词。
func analysisPrompt(query string, schema string) string {
	return fmt.Sprintf(`Analyze the user question against the graph schema and describe, in two or three sentences, which labels, relationship types and properties are relevant to answering it.

Graph schema:
%s

Question: %s`, schema, query)
}

// cypherPrompt 生成 Cypher 的提示词。
// priorErrors 非空时附带上一次失败的校验信息做纠偏。
func cypherPrompt(query, analysis, schema string, priorCypher string, priorErrors []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, `Generate a single read-only Cypher query answering the question.
Rules:
- Use only labels, relationship types and properties from the schema.
- Return a bare Cypher statement, no explanation.
- Limit results to at most 50 rows.

Graph schema:
%s

Analysis:
%s

Question: %s`, schema, analysis, query)
	if len(priorErrors) > 0 {
		fmt.Fprintf(&b, "\n\nYour previous query failed validation.\nPrevious query:\n%s\nValidation errors:\n", priorCypher)
		for _, e := range priorErrors {
			fmt.Fprintf(&b, "- %s\n", e)
		}
		b.WriteString("Produce a corrected query.")
	}
	return b.String()
}

// evaluationPrompt 结果评估提示词。执行错误非空时一并给到
// 评估器。输出约定：RETRY: <原因> 或 SUCCESS。
func evaluationPrompt(query, cypher string, resultSummary string, execErr string) string {
	var b strings.Builder
	fmt.Fprintf(&b, `You are evaluating whether query results answer the user's question.

Question: %s
Cypher executed:
%s
Results:
%s
`, query, cypher, resultSummary)
	if execErr != "" {
		fmt.Fprintf(&b, "Execution error: %s\n", execErr)
	}
	b.WriteString(`
If the results plausibly answer the question, respond with the single word SUCCESS.
If the query should be regenerated, respond with RETRY: followed by a short reason.`)
	return b.String()
}

// thinkingPrompt 检索前的思考提示词。
func thinkingPrompt(query string) string {
	return fmt.Sprintf(`Think step by step about what the user is really asking and what information would be needed to answer it well. Keep it under five sentences.

Question: %s`, query)
}

// planningPrompt 检索计划提示词。
func planningPrompt(query, thinking string) string {
	return fmt.Sprintf(`Based on the analysis below, produce a short numbered plan (2-4 steps) for retrieving and synthesizing an answer.

Analysis:
%s

Question: %s`, thinking, query)
}

// answerPrompt 基于检索上下文生成回答的提示词。
func answerPrompt(query string, contexts []string) string {
	var b strings.Builder
	b.WriteString("Answer the question using only the context below. If the context is insufficient, say what is missing.\n\nContext:\n")
	for i, c := range contexts {
		fmt.Fprintf(&b, "[%d] %s\n\n", i+1, c)
	}
	b.WriteString("Question: ")
	b.WriteString(query)
	return b.String()
}

// stripCodeFence 剥离模型输出中的代码围栏。
func stripCodeFence(text string) string {
	s := strings.TrimSpace(text)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	// 去掉语言标注行，如 cypher
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		first := strings.TrimSpace(s[:idx])
		if len(first) <= 12 && !strings.ContainsAny(first, " (){}") {
			s = s[idx+1:]
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
