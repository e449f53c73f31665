package handler

import (
	"net/http"

	"datapilot-go/internal/model"
	"datapilot-go/internal/service"
	"datapilot-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// SchemaHandler 处理租户数据库结构元数据的上报。
type SchemaHandler struct {
	schemaService service.SchemaService
}

// NewSchemaHandler 创建一个新的 SchemaHandler 实例。
func NewSchemaHandler(schemaService service.SchemaService) *SchemaHandler {
	return &SchemaHandler{schemaService: schemaService}
}

// Upsert 接收并保存租户的表结构定义，供提示词组装使用。
func (h *SchemaHandler) Upsert(c *gin.Context) {
	var meta model.SchemaMetadata
	if err := c.ShouldBindJSON(&meta); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "表结构格式不正确"})
		return
	}

	tenantID := c.GetString("tenantID")
	if err := h.schemaService.Upsert(tenantID, &meta); err != nil {
		log.Errorf("[SchemaHandler] 保存表结构失败, tenant: %s: %v", tenantID, err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": 200, "message": "success"})
}
