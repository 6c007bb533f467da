package memorybackend

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/google/uuid"
	"github.com/murtihash94/kasal/internal/databricks"
	"github.com/murtihash94/kasal/internal/models"
	"github.com/murtihash94/kasal/internal/secret"
	"github.com/murtihash94/kasal/pkg/db"
	"github.com/murtihash94/kasal/pkg/env"
	"github.com/murtihash94/kasal/pkg/log"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// ErrNotFound marks a lookup against an unknown backend config.
var ErrNotFound = errors.New("memory backend not found")

// VectorSearchAPI is the slice of the Databricks client the
// provisioning service needs; tests substitute a fake.
type VectorSearchAPI interface {
	Ping(ctx context.Context) error
	CreateEndpoint(ctx context.Context, req *databricks.CreateEndpointRequest) (*databricks.Endpoint, error)
	GetEndpoint(ctx context.Context, name string) (*databricks.Endpoint, error)
	CreateIndex(ctx context.Context, req *databricks.CreateIndexRequest) (*databricks.Index, error)
	GetIndex(ctx context.Context, name string) (*databricks.Index, error)
	ListIndexes(ctx context.Context, endpointName string) ([]databricks.Index, error)
	DeleteIndex(ctx context.Context, name string) error
}

// ClientFactory builds a workspace client for a resolved token.
type ClientFactory func(workspaceURL, token string) (VectorSearchAPI, error)

func defaultClientFactory(workspaceURL, token string) (VectorSearchAPI, error) {
	return databricks.New(workspaceURL, token)
}

// MemoryBackend manages per-group memory backend configs and
// provisions their Databricks Vector Search resources.
type MemoryBackend interface {
	WithDatabase(*gorm.DB) MemoryBackend
	WithClientFactory(ClientFactory) MemoryBackend
	WithResolver(secret.Resolver) MemoryBackend

	List(groupID string) (models.MemoryBackends, error)
	Get(id uuid.UUID) (*models.MemoryBackend, error)
	GetDefault(groupID string) (*models.MemoryBackend, error)
	Create(req *CreateRequest) (*models.MemoryBackend, error)
	Update(id uuid.UUID, req *UpdateRequest) (*models.MemoryBackend, error)
	Delete(id uuid.UUID) error
	SetDefault(id uuid.UUID) (*models.MemoryBackend, error)

	Validate(cfg *models.DatabricksMemoryConfig) *ValidationResult
	TestConnection(req *ConnectionRequest) *ConnectionResult
	GetIndexes(req *ConnectionRequest) (*IndexListResult, error)
	CreateIndex(req *CreateIndexRequest) (*databricks.Index, error)
	DeleteIndexByName(req *DeleteIndexRequest) error
	EndpointStatus(req *ConnectionRequest) (*databricks.Endpoint, error)
	OneClickSetup(req *OneClickRequest) (*SetupResult, error)
	VerifyResources(req *ConnectionRequest) (*VerifyResult, error)

	DeleteAllDatabricksConfigs(groupID string) (int64, error)
	SwitchToDisabledMode(groupID string) (*models.MemoryBackend, error)
	CleanupDisabledConfigs(groupID string) (int64, error)
}

type backendService struct {
	ctx      context.Context
	db       *gorm.DB
	factory  ClientFactory
	resolver secret.Resolver
}

// Service returns a memory backend service bound to the
// context.
func Service(ctx context.Context) MemoryBackend {
	return &backendService{
		ctx:      ctx,
		db:       db.Connection(),
		factory:  defaultClientFactory,
		resolver: processResolver(),
	}
}

var (
	resolverOnce   sync.Once
	sharedResolver secret.Resolver
)

func processResolver() secret.Resolver {
	resolverOnce.Do(func() {
		resolver, err := secret.FromEnvironment(env.Variables())
		if err != nil {
			log.Error("secret resolver init failed, using env-only resolution", "error", err)
			sharedResolver = secret.NewMultiResolver(map[string]secret.Resolver{
				"env": secret.NewEnvResolver(),
			})
			return
		}
		sharedResolver = resolver
	})
	return sharedResolver
}

func (s *backendService) WithDatabase(conn *gorm.DB) MemoryBackend {
	s.db = conn
	return s
}

func (s *backendService) WithClientFactory(factory ClientFactory) MemoryBackend {
	s.factory = factory
	return s
}

func (s *backendService) WithResolver(resolver secret.Resolver) MemoryBackend {
	s.resolver = resolver
	return s
}

func (s *backendService) List(groupID string) (models.MemoryBackends, error) {
	backends := make(models.MemoryBackends, 0)

	q := s.db.WithContext(s.ctx).Order("created_at asc")
	if groupID != "" {
		q = q.Where("group_id = ?", groupID)
	}

	if err := q.Find(&backends).Error; err != nil {
		return nil, errors.Wrap(err, "list memory backends")
	}
	return backends, nil
}

func (s *backendService) Get(id uuid.UUID) (*models.MemoryBackend, error) {
	backend := &models.MemoryBackend{}

	err := s.db.WithContext(s.ctx).First(backend, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "load memory backend")
	}
	return backend, nil
}

// GetDefault returns the group's default backend, or nil when
// the group has none configured.
func (s *backendService) GetDefault(groupID string) (*models.MemoryBackend, error) {
	backend := &models.MemoryBackend{}

	err := s.db.WithContext(s.ctx).
		First(backend, "group_id = ? AND is_default = ?", groupID, true).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "load default memory backend")
	}
	return backend, nil
}

// CreateRequest parameterizes backend creation.
type CreateRequest struct {
	GroupID     string                          `json:"group_id"`
	Name        string                          `json:"name"`
	BackendType models.MemoryBackendType        `json:"backend_type"`
	IsDefault   bool                            `json:"is_default"`
	Databricks  *models.DatabricksMemoryConfig  `json:"databricks_config,omitempty"`
}

func (s *backendService) Create(req *CreateRequest) (*models.MemoryBackend, error) {
	backendType := req.BackendType
	if backendType == "" {
		backendType = models.MemoryBackendTypeDefault
	}

	if backendType == models.MemoryBackendTypeDatabricks {
		if result := s.Validate(req.Databricks); !result.Valid {
			return nil, errors.Errorf("invalid databricks config: %s", strings.Join(result.Errors, "; "))
		}
	}

	now := time.Now().UTC()
	backend := &models.MemoryBackend{
		ID:          uuid.New(),
		GroupID:     req.GroupID,
		Name:        req.Name,
		BackendType: backendType,
		IsDefault:   req.IsDefault,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if req.Databricks != nil {
		if err := backend.SetDatabricksConfig(req.Databricks); err != nil {
			return nil, errors.Wrap(err, "encode databricks config")
		}
	}

	err := s.db.WithContext(s.ctx).Transaction(func(tx *gorm.DB) error {
		if backend.IsDefault {
			if err := clearDefaults(tx, req.GroupID); err != nil {
				return err
			}
		}
		return tx.Create(backend).Error
	})
	if err != nil {
		return nil, errors.Wrap(err, "create memory backend")
	}

	return backend, nil
}

// UpdateRequest carries the mutable backend fields; nil fields
// are left untouched.
type UpdateRequest struct {
	Name       *string                        `json:"name,omitempty"`
	Databricks *models.DatabricksMemoryConfig `json:"databricks_config,omitempty"`
}

func (s *backendService) Update(id uuid.UUID, req *UpdateRequest) (*models.MemoryBackend, error) {
	backend, err := s.Get(id)
	if err != nil {
		return nil, err
	}

	changed := false
	if req.Name != nil && *req.Name != backend.Name {
		backend.Name = *req.Name
		changed = true
	}
	if req.Databricks != nil {
		if backend.BackendType == models.MemoryBackendTypeDatabricks {
			if result := s.Validate(req.Databricks); !result.Valid {
				return nil, errors.Errorf("invalid databricks config: %s", strings.Join(result.Errors, "; "))
			}
		}
		stored, err := backend.DatabricksConfig()
		if err != nil || !cmp.Equal(stored, req.Databricks, cmpopts.EquateEmpty()) {
			if err := backend.SetDatabricksConfig(req.Databricks); err != nil {
				return nil, errors.Wrap(err, "encode databricks config")
			}
			changed = true
		}
	}
	if !changed {
		return backend, nil
	}
	backend.UpdatedAt = time.Now().UTC()

	if err := s.db.WithContext(s.ctx).Save(backend).Error; err != nil {
		return nil, errors.Wrap(err, "update memory backend")
	}
	return backend, nil
}

func (s *backendService) Delete(id uuid.UUID) error {
	result := s.db.WithContext(s.ctx).Delete(&models.MemoryBackend{}, "id = ?", id)
	if result.Error != nil {
		return errors.Wrap(result.Error, "delete memory backend")
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SetDefault makes the backend its group's default, clearing
// the flag from every sibling in the same transaction.
func (s *backendService) SetDefault(id uuid.UUID) (*models.MemoryBackend, error) {
	backend, err := s.Get(id)
	if err != nil {
		return nil, err
	}

	err = s.db.WithContext(s.ctx).Transaction(func(tx *gorm.DB) error {
		if err := clearDefaults(tx, backend.GroupID); err != nil {
			return err
		}
		backend.IsDefault = true
		backend.UpdatedAt = time.Now().UTC()
		return tx.Save(backend).Error
	})
	if err != nil {
		return nil, errors.Wrap(err, "set default memory backend")
	}

	return backend, nil
}

func clearDefaults(tx *gorm.DB, groupID string) error {
	return tx.Model(&models.MemoryBackend{}).
		Where("group_id = ? AND is_default = ?", groupID, true).
		Update("is_default", false).Error
}

// DeleteAllDatabricksConfigs removes every Databricks-backed
// config in the group, returning how many were deleted.
func (s *backendService) DeleteAllDatabricksConfigs(groupID string) (int64, error) {
	result := s.db.WithContext(s.ctx).
		Where("group_id = ? AND backend_type = ?", groupID, models.MemoryBackendTypeDatabricks).
		Delete(&models.MemoryBackend{})
	if result.Error != nil {
		return 0, errors.Wrap(result.Error, "delete databricks configs")
	}
	return result.RowsAffected, nil
}

// SwitchToDisabledMode replaces the group's entire config set
// with a single disabled default entry.
func (s *backendService) SwitchToDisabledMode(groupID string) (*models.MemoryBackend, error) {
	now := time.Now().UTC()
	disabled := &models.MemoryBackend{
		ID:          uuid.New(),
		GroupID:     groupID,
		Name:        "Disabled",
		BackendType: models.MemoryBackendTypeDefault,
		IsDefault:   true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err := s.db.WithContext(s.ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("group_id = ?", groupID).Delete(&models.MemoryBackend{}).Error; err != nil {
			return err
		}
		return tx.Create(disabled).Error
	})
	if err != nil {
		return nil, errors.Wrap(err, "switch to disabled mode")
	}

	return disabled, nil
}

// CleanupDisabledConfigs deletes the group's disabled-mode rows.
// Running it again is a no-op returning zero.
func (s *backendService) CleanupDisabledConfigs(groupID string) (int64, error) {
	result := s.db.WithContext(s.ctx).
		Where("group_id = ? AND backend_type = ?", groupID, models.MemoryBackendTypeDefault).
		Delete(&models.MemoryBackend{})
	if result.Error != nil {
		return 0, errors.Wrap(result.Error, "cleanup disabled configs")
	}
	return result.RowsAffected, nil
}
