package query

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"next_mart/internal/apperr"

	"gorm.io/gorm"
)

const (
	DefaultLimit = 10
	MaxLimit     = 100
)

type op string

const (
	opEq  op = "="
	opGte op = ">="
	opLte op = "<="
)

type filter struct {
	column string
	op     op
	value  any
}

// Spec 列表查询条件：搜索、过滤、排序、分页。
// 所有修改方法都返回新值，原值不变，可以安全地在多个查询间共享前缀。
type Spec struct {
	searchTerm    string
	searchColumns []string
	filters       []filter
	sortColumn    string
	sortDesc      bool
	page          int
	limit         int
}

// New 默认按 created_at 倒序，第 1 页，每页 DefaultLimit 条。
func New() Spec {
	return Spec{sortColumn: "created_at", sortDesc: true, page: 1, limit: DefaultLimit}
}

// Search 在 columns 上做不区分大小写的模糊匹配（任一列命中即可）。
func (s Spec) Search(term string, columns ...string) Spec {
	s.searchTerm = strings.TrimSpace(term)
	s.searchColumns = append([]string(nil), columns...)
	return s
}

func (s Spec) Where(column string, value any) Spec {
	return s.with(filter{column: column, op: opEq, value: value})
}

func (s Spec) AtLeast(column string, value any) Spec {
	return s.with(filter{column: column, op: opGte, value: value})
}

func (s Spec) AtMost(column string, value any) Spec {
	return s.with(filter{column: column, op: opLte, value: value})
}

func (s Spec) with(f filter) Spec {
	next := make([]filter, len(s.filters), len(s.filters)+1)
	copy(next, s.filters)
	s.filters = append(next, f)
	return s
}

func (s Spec) SortBy(column string, desc bool) Spec {
	s.sortColumn = column
	s.sortDesc = desc
	return s
}

// Page page < 1 按 1 处理；limit 限制在 [1, MaxLimit]。
func (s Spec) Page(page, limit int) Spec {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	s.page = page
	s.limit = limit
	return s
}

func (s Spec) PageNumber() int { return s.page }
func (s Spec) Limit() int      { return s.limit }

// Filter 只应用搜索和过滤条件，用于 count。
func (s Spec) Filter(db *gorm.DB) *gorm.DB {
	for _, f := range s.filters {
		db = db.Where(fmt.Sprintf("%s %s ?", f.column, f.op), f.value)
	}
	if s.searchTerm != "" && len(s.searchColumns) > 0 {
		conds := make([]string, 0, len(s.searchColumns))
		args := make([]any, 0, len(s.searchColumns))
		pattern := "%" + strings.ToLower(s.searchTerm) + "%"
		for _, c := range s.searchColumns {
			conds = append(conds, fmt.Sprintf("LOWER(%s) LIKE ?", c))
			args = append(args, pattern)
		}
		db = db.Where("("+strings.Join(conds, " OR ")+")", args...)
	}
	return db
}

// Scope 过滤 + 排序 + 分页，可直接用于 db.Scopes。
func (s Spec) Scope(db *gorm.DB) *gorm.DB {
	db = s.Filter(db)
	if s.sortColumn != "" {
		dir := "ASC"
		if s.sortDesc {
			dir = "DESC"
		}
		db = db.Order(fmt.Sprintf("%s %s", s.sortColumn, dir))
	}
	return db.Offset((s.page - 1) * s.limit).Limit(s.limit)
}

// Meta 分页信息。
type Meta struct {
	Page      int   `json:"page"`
	Limit     int   `json:"limit"`
	Total     int64 `json:"total"`
	TotalPage int   `json:"totalPage"`
}

// Find 按 Spec 查询一页数据并统计总数。db 可以预先带上固定条件（如 user_id）。
func Find[T any](ctx context.Context, db *gorm.DB, s Spec) ([]T, Meta, error) {
	var (
		total int64
		out   []T
	)
	var zero T
	if err := db.WithContext(ctx).Model(&zero).Scopes(s.Filter).Count(&total).Error; err != nil {
		return nil, Meta{}, err
	}
	if err := db.WithContext(ctx).Scopes(s.Scope).Find(&out).Error; err != nil {
		return nil, Meta{}, err
	}
	totalPage := int((total + int64(s.limit) - 1) / int64(s.limit))
	return out, Meta{Page: s.page, Limit: s.limit, Total: total, TotalPage: totalPage}, nil
}

// Fields 列表接口允许的查询参数到列名的映射，未列出的参数一律忽略。
type Fields struct {
	Search []string
	// Filter 参数名 → 列名，等值匹配
	Filter map[string]string
	// Sort 参数名 → 列名；sort=-price 表示倒序
	Sort map[string]string
	// MinMax 形如 minPrice/maxPrice 的区间参数：前缀 min/max + 参数名 → 列名
	MinMax map[string]string
}

// FromValues 解析 searchTerm / sort / page / limit 以及白名单内的过滤参数。
func FromValues(values url.Values, fields Fields) (Spec, error) {
	s := New()

	if term := values.Get("searchTerm"); term != "" {
		s = s.Search(term, fields.Search...)
	}

	for param, column := range fields.Filter {
		if v := values.Get(param); v != "" {
			s = s.Where(column, v)
		}
	}

	for param, column := range fields.MinMax {
		name := strings.ToUpper(param[:1]) + param[1:]
		if v := values.Get("min" + name); v != "" {
			if _, err := strconv.ParseFloat(v, 64); err != nil {
				return Spec{}, fmt.Errorf("%w: min%s must be a number", apperr.ErrInvalidArgument, name)
			}
			s = s.AtLeast(column, v)
		}
		if v := values.Get("max" + name); v != "" {
			if _, err := strconv.ParseFloat(v, 64); err != nil {
				return Spec{}, fmt.Errorf("%w: max%s must be a number", apperr.ErrInvalidArgument, name)
			}
			s = s.AtMost(column, v)
		}
	}

	if sort := values.Get("sort"); sort != "" {
		desc := strings.HasPrefix(sort, "-")
		column, ok := fields.Sort[strings.TrimPrefix(sort, "-")]
		if !ok {
			return Spec{}, fmt.Errorf("%w: cannot sort by %q", apperr.ErrInvalidArgument, sort)
		}
		s = s.SortBy(column, desc)
	}

	page, limit := 1, DefaultLimit
	var err error
	if v := values.Get("page"); v != "" {
		if page, err = strconv.Atoi(v); err != nil {
			return Spec{}, fmt.Errorf("%w: page must be an integer", apperr.ErrInvalidArgument)
		}
	}
	if v := values.Get("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil {
			return Spec{}, fmt.Errorf("%w: limit must be an integer", apperr.ErrInvalidArgument)
		}
	}
	return s.Page(page, limit), nil
}
