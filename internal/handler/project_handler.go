package handler

import (
	"errors"
	"net/http"

	"datapilot-go/internal/service"
	"datapilot-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// ProjectHandler 处理项目级操作，包括令牌签发和租户数据清理。
type ProjectHandler struct {
	projectService service.ProjectService
}

// NewProjectHandler 创建一个新的 ProjectHandler 实例。
func NewProjectHandler(projectService service.ProjectService) *ProjectHandler {
	return &ProjectHandler{projectService: projectService}
}

type tokenRequest struct {
	TenantID string `json:"tenantId" binding:"required"`
	APIKey   string `json:"apiKey" binding:"required"`
}

// IssueToken 用租户的 API Key 换取访问令牌。
func (h *ProjectHandler) IssueToken(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tenantId 和 apiKey 为必填字段"})
		return
	}

	accessToken, err := h.projectService.IssueToken(req.TenantID, req.APIKey)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "租户或 API Key 不正确"})
			return
		}
		log.Errorf("[ProjectHandler] 签发令牌失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "令牌签发失败"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": 200, "data": gin.H{"accessToken": accessToken}, "message": "success"})
}

// Purge 删除当前租户的全部数据，包括示例、记录、会话和项目本身。
func (h *ProjectHandler) Purge(c *gin.Context) {
	tenantID := c.GetString("tenantID")
	if err := h.projectService.Purge(c.Request.Context(), tenantID); err != nil {
		log.Errorf("[ProjectHandler] 清理租户数据失败, tenant: %s: %v", tenantID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "租户数据清理失败"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": 200, "message": "success"})
}
