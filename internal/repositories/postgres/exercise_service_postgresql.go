package postgres

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/rage/secret-project-331-sub001/internal/cache"
	"github.com/rage/secret-project-331-sub001/internal/models"
	"github.com/rage/secret-project-331-sub001/internal/repositories"
)

// ExerciseServicePostgreSQL serves the grader registry through a read-through redis cache.
type ExerciseServicePostgreSQL struct {
	db           *gorm.DB
	cacheManager *cache.CacheManager
}

func NewExerciseServicePostgreSQL(db *gorm.DB, cacheManager *cache.CacheManager) repositories.ExerciseServiceRepository {
	return &ExerciseServicePostgreSQL{
		db:           db,
		cacheManager: cacheManager,
	}
}

func (e *ExerciseServicePostgreSQL) List(ctx context.Context) ([]*models.ExerciseService, error) {
	var services []*models.ExerciseService
	if err := e.db.WithContext(ctx).Order("slug ASC").Find(&services).Error; err != nil {
		return nil, fmt.Errorf("failed to list exercise services: %w", err)
	}
	return services, nil
}

func (e *ExerciseServicePostgreSQL) GetDescriptorBySlug(ctx context.Context, slug string) (*models.ExerciseServiceDescriptor, error) {
	var descriptor models.ExerciseServiceDescriptor
	err := e.cacheManager.ExerciseService.CacheOrExecute(ctx, "slug:"+slug, &descriptor, cache.ExerciseServiceCacheConfig.TTL, func() (interface{}, error) {
		return e.loadDescriptor(ctx, slug)
	})
	if err != nil {
		return nil, err
	}
	return &descriptor, nil
}

func (e *ExerciseServicePostgreSQL) loadDescriptor(ctx context.Context, slug string) (*models.ExerciseServiceDescriptor, error) {
	var service models.ExerciseService
	if err := e.db.WithContext(ctx).First(&service, "slug = ?", slug).Error; err != nil {
		return nil, notFoundOr(err, "exercise service")
	}

	var info models.ExerciseServiceInfo
	if err := e.db.WithContext(ctx).First(&info, "exercise_service_id = ?", service.ID).Error; err != nil {
		return nil, notFoundOr(err, "exercise service info")
	}

	return &models.ExerciseServiceDescriptor{Service: service, Info: info}, nil
}

// GetDescriptorsBySlugs skips slugs that have no registered service; callers detect them by absence.
func (e *ExerciseServicePostgreSQL) GetDescriptorsBySlugs(ctx context.Context, slugs []string) (map[string]*models.ExerciseServiceDescriptor, error) {
	result := make(map[string]*models.ExerciseServiceDescriptor, len(slugs))
	for _, slug := range slugs {
		if _, ok := result[slug]; ok {
			continue
		}
		descriptor, err := e.GetDescriptorBySlug(ctx, slug)
		if err != nil {
			if repositories.IsNotFoundError(err) {
				continue
			}
			return nil, err
		}
		result[slug] = descriptor
	}
	return result, nil
}

func (e *ExerciseServicePostgreSQL) InvalidateCache(ctx context.Context, slug string) error {
	cache.InvalidateExerciseServiceCache(ctx, e.cacheManager, slug)
	return nil
}
