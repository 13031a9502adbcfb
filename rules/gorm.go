package rules

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	// sqlite 使用纯 Go 驱动，注册名为 "sqlite"
	_ "modernc.org/sqlite"

	"github.com/rushteam/shoprec/core"
)

// AssociationRule 是规则表，一行一条规则。
type AssociationRule struct {
	ID         uint          `gorm:"primaryKey"`
	Support    float64       `gorm:"not null"`
	Confidence float64       `gorm:"not null"`
	Lift       float64       `gorm:"not null"`
	CreatedAt  time.Time     `gorm:"not null;index"`
	Products   []RuleProduct `gorm:"foreignKey:RuleID;constraint:OnDelete:CASCADE"`
}

func (AssociationRule) TableName() string { return "association_rules" }

// RuleProduct 是规则成员表，每个商品一行并标记其角色。
type RuleProduct struct {
	ID           uint   `gorm:"primaryKey"`
	RuleID       uint   `gorm:"not null;index"`
	ProductName  string `gorm:"not null;index:idx_rule_products_product_role,priority:1"`
	IsAntecedent bool   `gorm:"not null;index:idx_rule_products_product_role,priority:2"`
}

func (RuleProduct) TableName() string { return "rule_products" }

// OpenGorm 按驱动打开规则库并自动迁移表结构。
// driver 为 "postgres" 或 "sqlite"。
func OpenGorm(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case "postgres":
		dialector = postgres.Open(dsn)
	case "sqlite":
		dialector = sqlite.New(sqlite.Config{DriverName: "sqlite", DSN: dsn})
	default:
		return nil, fmt.Errorf("unsupported rules driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open rules db: %w", err)
	}
	if driver == "sqlite" {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}
	if err := db.AutoMigrate(&AssociationRule{}, &RuleProduct{}); err != nil {
		return nil, fmt.Errorf("migrate rules schema: %w", err)
	}
	return db, nil
}

// GormStore 是关系库实现的 RuleStore。
//
// ReplaceAll 在一个事务里先清空再逐条写入；每条规则包在 savepoint 中，
// 单条失败只回滚该条并跳过，事务提交前其他读者始终看到旧规则集。
type GormStore struct {
	db  *gorm.DB
	log zerolog.Logger
}

func NewGormStore(db *gorm.DB, logger zerolog.Logger) *GormStore {
	return &GormStore{
		db:  db,
		log: logger.With().Str("component", "rules.gorm").Logger(),
	}
}

func (s *GormStore) Name() string { return "gorm" }

func (s *GormStore) ReplaceAll(ctx context.Context, rules []core.AssociationRule) (int, error) {
	saved := 0
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&RuleProduct{}).Error; err != nil {
			return fmt.Errorf("clear rule products: %w", err)
		}
		if err := tx.Where("1 = 1").Delete(&AssociationRule{}).Error; err != nil {
			return fmt.Errorf("clear rules: %w", err)
		}

		now := time.Now().UTC()
		for i := range rules {
			row := toRow(&rules[i], now)
			if err := tx.SavePoint("rule_sp").Error; err != nil {
				return err
			}
			if err := tx.Create(&row).Error; err != nil {
				if rbErr := tx.RollbackTo("rule_sp").Error; rbErr != nil {
					return rbErr
				}
				s.log.Warn().Err(err).
					Strs("antecedent", rules[i].Antecedent).
					Strs("consequent", rules[i].Consequent).
					Msg("skip rule")
				continue
			}
			saved++
		}
		return nil
	})
	if err != nil {
		return 0, core.WrapDomainError(core.ModuleRules, core.ErrorCodeUnavailable, "replace rules", err)
	}
	return saved, nil
}

func (s *GormStore) FindByAntecedent(ctx context.Context, products []string) ([]core.AssociationRule, error) {
	if len(products) == 0 {
		return nil, nil
	}
	db := s.db.WithContext(ctx)

	var ids []uint
	if err := db.Model(&RuleProduct{}).
		Distinct("rule_id").
		Where("product_name IN ? AND is_antecedent = ?", products, true).
		Pluck("rule_id", &ids).Error; err != nil {
		return nil, core.WrapDomainError(core.ModuleRules, core.ErrorCodeUnavailable, "find rule ids", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	var rows []AssociationRule
	if err := db.Preload("Products", func(q *gorm.DB) *gorm.DB { return q.Order("id") }).
		Where("id IN ?", ids).
		Order("id").
		Find(&rows).Error; err != nil {
		return nil, core.WrapDomainError(core.ModuleRules, core.ErrorCodeUnavailable, "load rules", err)
	}

	out := make([]core.AssociationRule, 0, len(rows))
	for i := range rows {
		out = append(out, fromRow(&rows[i]))
	}
	return out, nil
}

func (s *GormStore) Stats(ctx context.Context) (int, int, error) {
	db := s.db.WithContext(ctx)
	var rules, memberships int64
	if err := db.Model(&AssociationRule{}).Count(&rules).Error; err != nil {
		return 0, 0, err
	}
	if err := db.Model(&RuleProduct{}).Count(&memberships).Error; err != nil {
		return 0, 0, err
	}
	return int(rules), int(memberships), nil
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func toRow(r *core.AssociationRule, now time.Time) AssociationRule {
	row := AssociationRule{
		Support:    r.Support,
		Confidence: r.Confidence,
		Lift:       r.Lift,
		CreatedAt:  now,
		Products:   make([]RuleProduct, 0, r.Size()),
	}
	for _, p := range r.Antecedent {
		row.Products = append(row.Products, RuleProduct{ProductName: p, IsAntecedent: true})
	}
	for _, p := range r.Consequent {
		row.Products = append(row.Products, RuleProduct{ProductName: p})
	}
	return row
}

func fromRow(row *AssociationRule) core.AssociationRule {
	r := core.AssociationRule{
		ID:         int64(row.ID),
		Support:    row.Support,
		Confidence: row.Confidence,
		Lift:       row.Lift,
		CreatedAt:  row.CreatedAt,
	}
	for _, p := range row.Products {
		if p.IsAntecedent {
			r.Antecedent = append(r.Antecedent, p.ProductName)
		} else {
			r.Consequent = append(r.Consequent, p.ProductName)
		}
	}
	return r
}

var _ core.RuleStore = (*GormStore)(nil)
