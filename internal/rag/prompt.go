package rag

import (
	"fmt"
	"strings"
)

// contextSeparator 上下文分块之间的分隔符
const contextSeparator = "\n\n---\n\n"

// SyllabusFocusPrefix 教学大纲模式下附加在问题前的固定引导语
const SyllabusFocusPrefix = "Based on the course syllabus: "

// systemPromptTemplate 系统提示词模板，%s 为课程名称
// 要求模型只依据上下文作答，并原样给出日期、百分比等关键事实
const systemPromptTemplate = `You are an AI teaching assistant for %s.

Your job is to help students by answering questions using ONLY the course materials provided below.

INSTRUCTIONS:
1. Answer using ONLY information from the provided context
2. Use EXACT dates, percentages, and details from the context
3. If asked about exams/midterms, provide the exam date, the modules/topics covered, and the weight in grading
4. If asked about assignments, list the specific due dates
5. If asked about grading, give exact percentages
6. Format answers with bullet points for clarity
7. If the specific answer truly isn't in the context, say what related information IS available

Remember: Students need specific dates and facts, not general advice.`

// BuildSystemPrompt 生成课程助教系统提示词
func BuildSystemPrompt(courseTitle string) string {
	return fmt.Sprintf(systemPromptTemplate, courseTitle)
}

// FormatContext 将检索结果拼接为上下文块
func FormatContext(results []*SearchResult) string {
	parts := make([]string, 0, len(results))
	for _, r := range results {
		parts = append(parts, r.Chunk.Content)
	}
	return strings.Join(parts, contextSeparator)
}
