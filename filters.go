// Copyright 2026 The wirej Authors.
// Licensed under Apache 2.0, see LICENCE file for details.

package wirej

import (
	"strings"
)

// DefaultSort is the sort expression of filters built with NewFilters.
const DefaultSort = "id==DESC"

// Filters carries the filter, search and sort input of a request.
//
// Filters uses the filter mini-language, e.g. "status==active;age>=18",
// and Sort the sort mini-language, e.g. "name==ASC;id==DESC". Search is
// bound to the :search placeholder as a LIKE pattern.
type Filters struct {
	Filters string `json:"filters" yaml:"filters"`
	Search  string `json:"search" yaml:"search"`
	Sort    string `json:"sort" yaml:"sort"`
}

// NewFilters returns filters for the expression with the default sort.
func NewFilters(filters string) *Filters {
	return &Filters{Filters: filters, Sort: DefaultSort}
}

// AddFilter appends an AND-group to the filter expression.
func (f *Filters) AddFilter(filter string) {
	if f.Filters == "" {
		f.Filters = filter
		return
	}
	f.Filters += ";" + filter
}

// SearchPattern returns the value bound to :search. An empty search matches
// everything.
func (f *Filters) SearchPattern() string {
	return "%" + strings.TrimSpace(f.Search) + "%"
}

// DefaultPageSize is the page size of a zero Pagination.
const DefaultPageSize = 10

// Pagination selects a page of results. It binds :initialPosition and
// :pageSize.
type Pagination struct {
	PageNumber int `json:"pageNumber" yaml:"page_number"`
	PageSize   int `json:"pageSize" yaml:"page_size"`
}

// NewPagination returns the first page with the default page size.
func NewPagination() *Pagination {
	return &Pagination{PageSize: DefaultPageSize}
}

// InitialPosition returns the offset of the first row of the page.
func (p *Pagination) InitialPosition() int {
	return p.PageNumber * p.size()
}

func (p *Pagination) size() int {
	if p.PageSize <= 0 {
		return DefaultPageSize
	}
	return p.PageSize
}
