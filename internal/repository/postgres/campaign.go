package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/utafrali/ecommerce-pricing/internal/domain"
	"github.com/utafrali/ecommerce-pricing/internal/repository"
	"github.com/utafrali/ecommerce-pricing/pkg/database"
	apperrors "github.com/utafrali/ecommerce-pricing/pkg/errors"
	"github.com/utafrali/ecommerce-pricing/pkg/pagination"
)

const uniqueViolation = "23505"

const ruleColumns = `id, name, description, type, target_type, target_ids,
	discount_value, max_discount_amount, min_cart_total, min_quantity,
	buy_qty, pay_qty, priority, is_stackable, start_date, end_date,
	is_active, created_at, updated_at`

// CampaignRepository implements repository.CampaignRepository using PostgreSQL.
type CampaignRepository struct {
	db database.DBTX
}

// NewCampaignRepository creates a new PostgreSQL-backed campaign rule repository.
func NewCampaignRepository(db database.DBTX) *CampaignRepository {
	return &CampaignRepository{db: db}
}

// GetActiveRules returns the rules valid at now, ordered the way the stacking
// resolver consumes them.
func (r *CampaignRepository) GetActiveRules(ctx context.Context, now time.Time) ([]domain.CampaignRule, error) {
	query := `SELECT ` + ruleColumns + `
		FROM campaign_rules
		WHERE is_active AND start_date <= $1 AND end_date >= $1
		ORDER BY priority, id`
	return r.queryRules(ctx, "GetActiveRules", query, now)
}

// GetUnexpiredRules returns the switched-on rules whose window has not closed
// at now, including those that have not opened yet.
func (r *CampaignRepository) GetUnexpiredRules(ctx context.Context, now time.Time) ([]domain.CampaignRule, error) {
	query := `SELECT ` + ruleColumns + `
		FROM campaign_rules
		WHERE is_active AND end_date >= $1
		ORDER BY priority, id`
	return r.queryRules(ctx, "GetUnexpiredRules", query, now)
}

func (r *CampaignRepository) queryRules(ctx context.Context, op, query string, now time.Time) (rules []domain.CampaignRule, err error) {
	ctx, end := database.TraceQuery(ctx, op, query)
	defer func() { end(err) }()

	rows, err := r.db.Query(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("query rules: %w", err)
	}
	defer rows.Close()

	rules = []domain.CampaignRule{}
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, *rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rules: %w", err)
	}
	return rules, nil
}

// Create inserts a new campaign rule into the database.
func (r *CampaignRepository) Create(ctx context.Context, rule *domain.CampaignRule) (err error) {
	targetsJSON, err := json.Marshal(targetIDs(rule))
	if err != nil {
		return fmt.Errorf("marshal target_ids: %w", err)
	}

	query := `
		INSERT INTO campaign_rules (` + ruleColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`

	ctx, end := database.TraceQuery(ctx, "CreateCampaignRule", query)
	defer func() { end(err) }()

	_, err = r.db.Exec(ctx, query,
		rule.ID,
		rule.Name,
		rule.Description,
		rule.Type.String(),
		rule.TargetType.String(),
		targetsJSON,
		rule.DiscountValue,
		rule.MaxDiscountAmount,
		rule.MinCartTotal,
		rule.MinQuantity,
		rule.BuyQty,
		rule.PayQty,
		rule.Priority,
		rule.IsStackable,
		rule.StartDate,
		rule.EndDate,
		rule.IsActive,
		rule.CreatedAt,
		rule.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.AlreadyExists("campaign", "id", rule.ID)
		}
		return fmt.Errorf("insert campaign rule: %w", err)
	}
	return nil
}

// GetByID retrieves a campaign rule by its ID.
func (r *CampaignRepository) GetByID(ctx context.Context, id string) (rule *domain.CampaignRule, err error) {
	query := `SELECT ` + ruleColumns + ` FROM campaign_rules WHERE id = $1`

	ctx, end := database.TraceQuery(ctx, "GetCampaignRule", query)
	defer func() { end(err) }()

	rule, err = scanRule(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("campaign", id)
		}
		return nil, err
	}
	return rule, nil
}

// List returns campaign rules matching the given filter with the total count.
func (r *CampaignRepository) List(ctx context.Context, filter repository.CampaignFilter) (rules []domain.CampaignRule, total int, err error) {
	var (
		conditions []string
		args       []any
		argIndex   = 1
	)

	if filter.Active != nil {
		conditions = append(conditions, fmt.Sprintf("is_active = $%d", argIndex))
		args = append(args, *filter.Active)
		argIndex++
	}

	if filter.Type != nil {
		conditions = append(conditions, fmt.Sprintf("type = $%d", argIndex))
		args = append(args, filter.Type.String())
		argIndex++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	query := fmt.Sprintf(`
		SELECT %s, count(*) OVER() AS total_count
		FROM campaign_rules
		%s
		ORDER BY priority, id
		LIMIT $%d OFFSET $%d`,
		ruleColumns, whereClause, argIndex, argIndex+1,
	)

	params := filter.Params
	if params.Page <= 0 {
		params.Page = 1
	}
	if params.PerPage <= 0 {
		params.PerPage = pagination.DefaultPerPage
	}
	args = append(args, params.Limit(), params.Offset())

	ctx, end := database.TraceQuery(ctx, "ListCampaignRules", query)
	defer func() { end(err) }()

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list campaign rules: %w", err)
	}
	defer rows.Close()

	rules = []domain.CampaignRule{}
	for rows.Next() {
		rule, err := scanRule(rows, &total)
		if err != nil {
			return nil, 0, err
		}
		rules = append(rules, *rule)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate campaign rule rows: %w", err)
	}
	return rules, total, nil
}

// Update modifies an existing campaign rule in the database.
func (r *CampaignRepository) Update(ctx context.Context, rule *domain.CampaignRule) (err error) {
	targetsJSON, err := json.Marshal(targetIDs(rule))
	if err != nil {
		return fmt.Errorf("marshal target_ids: %w", err)
	}

	query := `
		UPDATE campaign_rules
		SET name = $1, description = $2, type = $3, target_type = $4, target_ids = $5,
		    discount_value = $6, max_discount_amount = $7, min_cart_total = $8,
		    min_quantity = $9, buy_qty = $10, pay_qty = $11, priority = $12,
		    is_stackable = $13, start_date = $14, end_date = $15, is_active = $16,
		    updated_at = $17
		WHERE id = $18`

	ctx, end := database.TraceQuery(ctx, "UpdateCampaignRule", query)
	defer func() { end(err) }()

	ct, err := r.db.Exec(ctx, query,
		rule.Name,
		rule.Description,
		rule.Type.String(),
		rule.TargetType.String(),
		targetsJSON,
		rule.DiscountValue,
		rule.MaxDiscountAmount,
		rule.MinCartTotal,
		rule.MinQuantity,
		rule.BuyQty,
		rule.PayQty,
		rule.Priority,
		rule.IsStackable,
		rule.StartDate,
		rule.EndDate,
		rule.IsActive,
		rule.UpdatedAt,
		rule.ID,
	)
	if err != nil {
		return fmt.Errorf("update campaign rule: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("campaign", rule.ID)
	}
	return nil
}

// scanRule reads one campaign_rules row. Extra destinations, such as a
// window count, are scanned after the rule columns.
func scanRule(row pgx.Row, extra ...any) (*domain.CampaignRule, error) {
	var (
		rule        domain.CampaignRule
		ruleType    string
		targetType  string
		targetsJSON []byte
	)

	dest := []any{
		&rule.ID,
		&rule.Name,
		&rule.Description,
		&ruleType,
		&targetType,
		&targetsJSON,
		&rule.DiscountValue,
		&rule.MaxDiscountAmount,
		&rule.MinCartTotal,
		&rule.MinQuantity,
		&rule.BuyQty,
		&rule.PayQty,
		&rule.Priority,
		&rule.IsStackable,
		&rule.StartDate,
		&rule.EndDate,
		&rule.IsActive,
		&rule.CreatedAt,
		&rule.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan campaign rule: %w", err)
	}

	var err error
	if rule.Type, err = domain.ParseCampaignType(ruleType); err != nil {
		return nil, fmt.Errorf("campaign rule %s: %w", rule.ID, err)
	}
	if rule.TargetType, err = domain.ParseTargetType(targetType); err != nil {
		return nil, fmt.Errorf("campaign rule %s: %w", rule.ID, err)
	}
	if len(targetsJSON) > 0 {
		if err := json.Unmarshal(targetsJSON, &rule.TargetIDs); err != nil {
			return nil, fmt.Errorf("unmarshal target_ids: %w", err)
		}
	}
	if rule.TargetIDs == nil {
		rule.TargetIDs = []string{}
	}
	return &rule, nil
}

func targetIDs(rule *domain.CampaignRule) []string {
	if rule.TargetIDs == nil {
		return []string{}
	}
	return rule.TargetIDs
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == uniqueViolation
	}
	return err != nil && strings.Contains(err.Error(), uniqueViolation)
}
