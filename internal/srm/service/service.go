package service

import (
	"time"

	"github.com/bitfantasy/vendo/internal/shared/cache"
	"github.com/bitfantasy/vendo/internal/shared/export"
	"github.com/bitfantasy/vendo/internal/srm/lifecycle"
	"github.com/bitfantasy/vendo/internal/srm/repository"
	"github.com/bitfantasy/vendo/internal/srm/scoring"
	"go.uber.org/zap"
)

// Services SRM服务集合
type Services struct {
	Supplier   *SupplierService
	Evaluation *EvaluationService
}

// Options 服务可选依赖：缓存、对象存储、中继均可缺省
type Options struct {
	Relay        lifecycle.Dispatcher
	Cache        *cache.ScoreCache
	Uploader     *export.Uploader
	RelayTimeout time.Duration
}

// NewServices 创建SRM服务集合
func NewServices(repos *repository.Repositories, registry *scoring.Registry, logger *zap.Logger, opts Options) *Services {
	evalSvc := NewEvaluationService(repos, registry, logger, opts)
	return &Services{
		Supplier:   NewSupplierService(repos.Supplier),
		Evaluation: evalSvc,
	}
}
