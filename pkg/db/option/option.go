package option

import "gorm.io/gorm"

type QuerySortBy struct {
	Field   string
	OrderBy string
}

type QueryOptions struct {
	Limit  int
	Offset int
	SortBy *QuerySortBy
}

type QueryOption func(*QueryOptions)

func WithLimit(limit int) QueryOption {
	return func(o *QueryOptions) { o.Limit = limit }
}

func WithOffset(offset int) QueryOption {
	return func(o *QueryOptions) { o.Offset = offset }
}

func WithSortBy(sortBy QuerySortBy) QueryOption {
	return func(o *QueryOptions) { o.SortBy = &sortBy }
}

// Apply folds the query options into a gorm statement.
func Apply(tx *gorm.DB, opts ...QueryOption) *gorm.DB {
	var o QueryOptions
	for _, opt := range opts {
		opt(&o)
	}

	if o.Limit > 0 {
		tx = tx.Limit(o.Limit)
	}
	if o.Offset > 0 {
		tx = tx.Offset(o.Offset)
	}
	if o.SortBy != nil {
		field := o.SortBy.Field
		if field == "" {
			field = "created_at"
		}
		order := o.SortBy.OrderBy
		if order == "" {
			order = "ASC"
		}
		tx = tx.Order(field + " " + order)
	}

	return tx
}
