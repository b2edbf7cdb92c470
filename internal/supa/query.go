package supa

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

// Query builds a filtered request against one table. Filters compile to the
// platform's query-parameter operators (eq, ilike, range comparisons) and
// are shared by reads, updates and deletes.
type Query struct {
	client *Client
	table  string
	params url.Values
	single bool
}

// Select restricts returned columns ("*" for all).
func (q *Query) Select(columns string) *Query {
	q.params.Set("select", columns)
	return q
}

// Eq adds an equality filter.
func (q *Query) Eq(column, value string) *Query {
	q.params.Add(column, "eq."+value)
	return q
}

// Neq adds an inequality filter.
func (q *Query) Neq(column, value string) *Query {
	q.params.Add(column, "neq."+value)
	return q
}

// Ilike adds a case-insensitive pattern filter (% wildcards).
func (q *Query) Ilike(column, pattern string) *Query {
	q.params.Add(column, "ilike."+pattern)
	return q
}

// Or adds a disjunction of filters in the platform's embedded syntax,
// e.g. "name_bg.ilike.%x%,name_en.ilike.%x%".
func (q *Query) Or(filters string) *Query {
	q.params.Add("or", "("+filters+")")
	return q
}

// Lt / Lte / Gt / Gte add numeric range filters.
func (q *Query) Lt(column string, value int) *Query {
	q.params.Add(column, "lt."+strconv.Itoa(value))
	return q
}

func (q *Query) Lte(column string, value int) *Query {
	q.params.Add(column, "lte."+strconv.Itoa(value))
	return q
}

func (q *Query) Gt(column string, value int) *Query {
	q.params.Add(column, "gt."+strconv.Itoa(value))
	return q
}

func (q *Query) Gte(column string, value int) *Query {
	q.params.Add(column, "gte."+strconv.Itoa(value))
	return q
}

// Order sorts by a column.
func (q *Query) Order(column string, ascending bool) *Query {
	dir := ".desc"
	if ascending {
		dir = ".asc"
	}
	q.params.Add("order", column+dir)
	return q
}

// Limit caps the number of returned rows.
func (q *Query) Limit(n int) *Query {
	q.params.Set("limit", strconv.Itoa(n))
	return q
}

// Offset skips rows for pagination.
func (q *Query) Offset(n int) *Query {
	q.params.Set("offset", strconv.Itoa(n))
	return q
}

// Single requests exactly one row; the platform fails the call with
// CodeNoRows when nothing matches.
func (q *Query) Single() *Query {
	q.single = true
	return q
}

func (q *Query) path() string {
	p := "/rest/v1/" + q.table
	if encoded := q.params.Encode(); encoded != "" {
		p += "?" + encoded
	}
	return p
}

func (q *Query) headers(write bool) map[string]string {
	h := map[string]string{}
	if q.single {
		h["Accept"] = "application/vnd.pgrst.object+json"
	}
	if write {
		h["Prefer"] = "return=representation"
	}
	return h
}

// Get executes the query and decodes rows (or a single object) into out.
func (q *Query) Get(ctx context.Context, token string, out any) error {
	return q.client.doJSON(ctx, http.MethodGet, q.path(), token, q.headers(false), nil, out)
}

// Insert creates rows from body and decodes the representation into out
// (pass nil to discard). body may be a single record or a slice.
func (q *Query) Insert(ctx context.Context, token string, body, out any) error {
	return q.client.doJSON(ctx, http.MethodPost, q.path(), token, q.headers(true), body, out)
}

// Update patches every row matching the filters.
func (q *Query) Update(ctx context.Context, token string, body, out any) error {
	if len(q.params) == 0 {
		return fmt.Errorf("update on %s requires at least one filter", q.table)
	}
	return q.client.doJSON(ctx, http.MethodPatch, q.path(), token, q.headers(true), body, out)
}

// Delete removes every row matching the filters.
func (q *Query) Delete(ctx context.Context, token string) error {
	if len(q.params) == 0 {
		return fmt.Errorf("delete on %s requires at least one filter", q.table)
	}
	return q.client.doJSON(ctx, http.MethodDelete, q.path(), token, q.headers(false), nil, nil)
}
