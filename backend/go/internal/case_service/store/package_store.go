package store

import (
	"context"
	"errors"

	"CaseForAI/backend/go/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrPackageVersionTaken 表示预留的版本号已经被并发的打包占用。
var ErrPackageVersionTaken = errors.New("package version already taken")

// NextPackageVersion 返回案件的下一个打包版本号 (max+1)。不加锁，只用于预留。
func (s *Store) NextPackageVersion(ctx context.Context, caseID string) (int, error) {
	var max int
	err := s.db(ctx).Model(&models.CasePackage{}).Where("case_id = ?", caseID).
		Select("COALESCE(MAX(version), 0)").Scan(&max).Error
	return max + 1, err
}

// CreatePackage 锁住案件行，确认 pkg.Version 仍是下一个版本号后写入记录。
// 文件的渲染和上传在事务之外完成，行锁只覆盖版本校验和插入。
func (s *Store) CreatePackage(ctx context.Context, pkg *models.CasePackage) error {
	return s.db(ctx).Transaction(func(tx *gorm.DB) error {
		var c models.Case
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Select("id").First(&c, "id = ?", pkg.CaseID).Error; err != nil {
			return err
		}
		var max int
		if err := tx.Model(&models.CasePackage{}).Where("case_id = ?", pkg.CaseID).
			Select("COALESCE(MAX(version), 0)").Scan(&max).Error; err != nil {
			return err
		}
		if pkg.Version != max+1 {
			return ErrPackageVersionTaken
		}
		return tx.Omit("Case").Create(pkg).Error
	})
}

func (s *Store) ListPackages(ctx context.Context, caseID string) ([]models.CasePackage, error) {
	var out []models.CasePackage
	return out, s.db(ctx).Where("case_id = ?", caseID).Order("version DESC").Find(&out).Error
}

func (s *Store) GetPackage(ctx context.Context, id string) (*models.CasePackage, error) {
	var p models.CasePackage
	if err := s.db(ctx).First(&p, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &p, nil
}
