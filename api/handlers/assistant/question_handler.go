package assistant

import (
	"context"
	"errors"
	"io"
	"net/http"

	"backend/internal/logger"
	"backend/internal/rag"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// AssistantService 问答服务接口，便于测试替换实现
type AssistantService interface {
	Answer(ctx context.Context, req *rag.AnswerRequest) (string, error)
	AnswerStream(ctx context.Context, req *rag.AnswerRequest) (<-chan rag.StreamChunk, <-chan error)
	BuildIndex(ctx context.Context, force bool) error
	Index() *rag.VectorIndex
}

// QuestionHandler 课程问答处理器
type QuestionHandler struct {
	service AssistantService
}

// NewQuestionHandler 创建问答处理器
func NewQuestionHandler(service AssistantService) *QuestionHandler {
	return &QuestionHandler{service: service}
}

// QuestionRequest 问答请求
type QuestionRequest struct {
	Question string `json:"question" binding:"required"`
	Stream   bool   `json:"stream"`
	TopK     int    `json:"k"`
}

// AnswerResponse 问答响应
type AnswerResponse struct {
	Answer   string `json:"answer"`
	Question string `json:"question"`
}

// Ask 课程资料问答
// POST /api/question
func (h *QuestionHandler) Ask(c *gin.Context) {
	h.handleQuestion(c, false)
}

// AskSyllabus 教学大纲问答（附加引导语，检索范围更大）
// POST /api/syllabus
func (h *QuestionHandler) AskSyllabus(c *gin.Context) {
	h.handleQuestion(c, true)
}

// handleQuestion 处理问答请求，根据 stream 字段选择同步或流式响应
func (h *QuestionHandler) handleQuestion(c *gin.Context, syllabusFocus bool) {
	var req QuestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "请求参数错误: " + err.Error()})
		return
	}

	answerReq := &rag.AnswerRequest{
		Question:      req.Question,
		TopK:          req.TopK,
		SyllabusFocus: syllabusFocus,
	}

	if req.Stream {
		h.streamAnswer(c, answerReq)
		return
	}

	answer, err := h.service.Answer(c.Request.Context(), answerReq)
	if err != nil {
		status := answerErrorStatus(err)
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, AnswerResponse{Answer: answer, Question: req.Question})
}

// streamAnswer 以 SSE 推送答案片段
func (h *QuestionHandler) streamAnswer(c *gin.Context, req *rag.AnswerRequest) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	chunkChan, errChan := h.service.AnswerStream(c.Request.Context(), req)

	c.Stream(func(w io.Writer) bool {
		select {
		case chunk, ok := <-chunkChan:
			if !ok {
				// 片段通道关闭后仍需确认没有挂起的错误，避免把中断当作正常结束
				if err, pending := <-errChan; pending && err != nil {
					c.SSEvent("error", gin.H{"error": err.Error()})
					return false
				}
				c.SSEvent("done", gin.H{"done": true})
				return false
			}
			if chunk.Done {
				c.SSEvent("done", gin.H{"done": true})
				return false
			}
			c.SSEvent("message", gin.H{"content": chunk.Content})
			return true

		case err, ok := <-errChan:
			if ok && err != nil {
				c.SSEvent("error", gin.H{"error": err.Error()})
			}
			return false
		}
	})
}

// Reindex 重建向量索引（丢弃旧索引，全量重建）
// POST /api/index
func (h *QuestionHandler) Reindex(c *gin.Context) {
	if err := h.service.BuildIndex(c.Request.Context(), true); err != nil {
		logger.Error("重建索引失败", zap.Error(err))
		status := http.StatusInternalServerError
		if errors.Is(err, rag.ErrNoDocumentsFound) {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	index := h.service.Index()
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"chunks": index.Len(),
	})
}

// Health 健康检查
// GET /api/health
func (h *QuestionHandler) Health(c *gin.Context) {
	indexReady := h.service.Index() != nil
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"index_ready": indexReady,
	})
}

// answerErrorStatus 将 RAG 错误映射为 HTTP 状态码
func answerErrorStatus(err error) int {
	switch {
	case errors.Is(err, rag.ErrIndexUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, rag.ErrEmbeddingSpaceMismatch):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
