package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/openisp/netbill/internal/catalog/domain"
	"github.com/openisp/netbill/internal/clock"
	"github.com/openisp/netbill/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
}

func NewService(p Params) catalogdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("catalog.service"),
		genID: p.GenID,
		clock: p.Clock,
	}
}

func (s *Service) Create(ctx context.Context, req catalogdomain.CreatePackageRequest) (catalogdomain.Package, error) {
	if req.MonthlyPrice.IsNegative() || req.SetupFee.IsNegative() || req.TaxRate.IsNegative() {
		return catalogdomain.Package{}, catalogdomain.ErrInvalidPrice
	}

	dataLimit := strings.TrimSpace(req.DataLimit)
	if dataLimit == "" {
		dataLimit = catalogdomain.UnlimitedDataLimit
	}

	now := s.clock.Now()
	pkg := catalogdomain.Package{
		ID:           s.genID.Generate(),
		Code:         strings.TrimSpace(req.Code),
		Name:         strings.TrimSpace(req.Name),
		MonthlyPrice: req.MonthlyPrice,
		DataLimit:    dataLimit,
		TaxRate:      req.TaxRate,
		SetupFee:     req.SetupFee,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.db.WithContext(ctx).Create(&pkg).Error; err != nil {
		if db.IsDuplicateKeyErr(err) {
			return catalogdomain.Package{}, catalogdomain.ErrDuplicateCode
		}
		return catalogdomain.Package{}, err
	}
	return pkg, nil
}

func (s *Service) List(ctx context.Context, req catalogdomain.ListPackagesRequest) ([]catalogdomain.Package, error) {
	query := s.db.WithContext(ctx).Order("code")
	if req.ActiveOnly {
		query = query.Where("is_active = ?", true)
	}
	var packages []catalogdomain.Package
	if err := query.Find(&packages).Error; err != nil {
		return nil, err
	}
	return packages, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (catalogdomain.Package, error) {
	pkgID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil {
		return catalogdomain.Package{}, catalogdomain.ErrInvalidID
	}

	var pkg catalogdomain.Package
	err = s.db.WithContext(ctx).First(&pkg, "id = ?", pkgID).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return catalogdomain.Package{}, catalogdomain.ErrNotFound
		}
		return catalogdomain.Package{}, err
	}
	return pkg, nil
}

func (s *Service) Archive(ctx context.Context, id string) error {
	pkgID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil {
		return catalogdomain.ErrInvalidID
	}

	result := s.db.WithContext(ctx).Model(&catalogdomain.Package{}).
		Where("id = ?", pkgID).
		Updates(map[string]any{"is_active": false, "updated_at": s.clock.Now()})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return catalogdomain.ErrNotFound
	}
	return nil
}
