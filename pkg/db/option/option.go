package option

import (
	"reflect"
	"strings"

	"wavesight-core/pkg/db/pagination"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// QueryOption mutates a query before it is executed by a repository.
type QueryOption func(*gorm.DB) *gorm.DB

type Operator string

const (
	EQ  Operator = "="
	NEQ Operator = "<>"
	GT  Operator = ">"
	GTE Operator = ">="
	LT  Operator = "<"
	LTE Operator = "<="
	IN  Operator = "IN"
)

type Condition struct {
	Field    string
	Operator Operator
	Value    any
}

type QuerySortBy struct {
	SortBy  string
	OrderBy string
	Allow   map[string]bool
}

const defaultSortField = "created_at"

// LockingUpdate is a gorm scope adding SELECT ... FOR UPDATE to every query of the session.
func LockingUpdate(db *gorm.DB) *gorm.DB {
	return db.Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate})
}

func WithLockingUpdate() QueryOption {
	return LockingUpdate
}

// WithSortBy orders the query. Fields not present in Allow (when set) fall back to created_at.
func WithSortBy(s QuerySortBy) QueryOption {
	return func(db *gorm.DB) *gorm.DB {
		field := s.SortBy
		if field == "" || (s.Allow != nil && !s.Allow[field]) {
			field = defaultSortField
		}

		desc := strings.EqualFold(s.OrderBy, "desc")
		return db.Order(clause.OrderByColumn{Column: clause.Column{Name: field}, Desc: desc}).
			Order(clause.OrderByColumn{Column: clause.Column{Name: "id"}, Desc: desc})
	}
}

// ApplyOperator adds one WHERE condition per Condition. Column names are quoted by gorm.
func ApplyOperator(conds ...Condition) QueryOption {
	return func(db *gorm.DB) *gorm.DB {
		for _, c := range conds {
			col := clause.Column{Name: c.Field}
			switch c.Operator {
			case NEQ:
				db = db.Where(clause.Neq{Column: col, Value: c.Value})
			case GT:
				db = db.Where(clause.Gt{Column: col, Value: c.Value})
			case GTE:
				db = db.Where(clause.Gte{Column: col, Value: c.Value})
			case LT:
				db = db.Where(clause.Lt{Column: col, Value: c.Value})
			case LTE:
				db = db.Where(clause.Lte{Column: col, Value: c.Value})
			case IN:
				db = db.Where(clause.IN{Column: col, Values: toValues(c.Value)})
			default:
				db = db.Where(clause.Eq{Column: col, Value: c.Value})
			}
		}
		return db
	}
}

func toValues(v any) []any {
	if values, ok := v.([]any); ok {
		return values
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return []any{v}
	}
	values := make([]any, rv.Len())
	for i := range values {
		values[i] = rv.Index(i).Interface()
	}
	return values
}

// WithLimit caps the number of returned rows.
func WithLimit(limit int) QueryOption {
	return func(db *gorm.DB) *gorm.DB {
		if limit <= 0 {
			return db
		}
		return db.Limit(limit)
	}
}

// ApplyPagination applies keyset pagination over (created_at, id) in ascending order.
// One extra row is fetched so callers can compute PageInfo.HasMore. Callers validate the cursor first.
func ApplyPagination(p pagination.Pagination) QueryOption {
	return func(db *gorm.DB) *gorm.DB {
		limit := pagination.NormalizeLimit(p.Limit)

		if p.Cursor != "" {
			if createdAt, id, err := pagination.ParseCursor(p.Cursor); err == nil {
				db = db.Where("((created_at > ?) OR (created_at = ? AND id > ?))", createdAt, createdAt, id)
			}
		}

		return db.Order("created_at ASC").Order("id ASC").Limit(limit + 1)
	}
}
