package service

import (
	"context"
	"errors"
	"fmt"

	"datapilot-go/internal/repository"
	"datapilot-go/pkg/log"
	"datapilot-go/pkg/token"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// ErrInvalidCredentials 表示租户 ID 或 API Key 不正确。
var ErrInvalidCredentials = errors.New("invalid tenant id or api key")

// ProjectService 定义了租户（项目）级别的操作。
type ProjectService interface {
	// IssueToken 校验 API Key 并签发租户访问令牌。
	IssueToken(tenantID, apiKey string) (string, error)
	// Purge 级联清除一个租户的全部数据：向量库示例、关系记录、schema 定义与对话历史。
	Purge(ctx context.Context, tenantID string) error
}

type projectService struct {
	projectRepo      repository.ProjectRepository
	recordRepo       repository.RecordRepository
	schemaRepo       repository.SchemaRepository
	exampleRepo      repository.ExampleRepository
	conversationRepo repository.ConversationRepository
	jwtManager       *token.JWTManager
}

// NewProjectService 创建一个新的 ProjectService 实例。
func NewProjectService(
	projectRepo repository.ProjectRepository,
	recordRepo repository.RecordRepository,
	schemaRepo repository.SchemaRepository,
	exampleRepo repository.ExampleRepository,
	conversationRepo repository.ConversationRepository,
	jwtManager *token.JWTManager,
) ProjectService {
	return &projectService{
		projectRepo:      projectRepo,
		recordRepo:       recordRepo,
		schemaRepo:       schemaRepo,
		exampleRepo:      exampleRepo,
		conversationRepo: conversationRepo,
		jwtManager:       jwtManager,
	}
}

// IssueToken 用 bcrypt 校验 API Key，通过后签发带租户声明的 JWT。
func (s *projectService) IssueToken(tenantID, apiKey string) (string, error) {
	project, err := s.projectRepo.FindByTenantID(tenantID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrInvalidCredentials
		}
		return "", fmt.Errorf("failed to find project: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(project.APIKeyHash), []byte(apiKey)); err != nil {
		return "", ErrInvalidCredentials
	}

	return s.jwtManager.GenerateToken(project.TenantID, project.Name)
}

// Purge 清除租户的所有数据。向量库清除失败会中止，关系侧保持可重试。
func (s *projectService) Purge(ctx context.Context, tenantID string) error {
	if err := s.exampleRepo.DeleteByTenant(ctx, tenantID); err != nil {
		return fmt.Errorf("failed to purge examples: %w", err)
	}
	if err := s.recordRepo.DeleteByTenant(tenantID); err != nil {
		return fmt.Errorf("failed to purge records: %w", err)
	}
	if err := s.schemaRepo.DeleteByTenant(tenantID); err != nil {
		return fmt.Errorf("failed to purge schema: %w", err)
	}
	if err := s.conversationRepo.DeleteByTenant(ctx, tenantID); err != nil {
		log.Errorf("[Project] 清除对话历史失败, tenant=%s: %v", tenantID, err)
	}
	if err := s.projectRepo.DeleteByTenantID(tenantID); err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}
	log.Infof("[Project] 租户 '%s' 数据已全部清除", tenantID)
	return nil
}
