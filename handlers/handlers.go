package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/revops/pipeline-monitor/services/adapters"
	"github.com/revops/pipeline-monitor/services/pagination"
	"github.com/revops/pipeline-monitor/utils"
)

// DefaultPageSize applies when the request names no page size.
const DefaultPageSize = 50

// PageQuery is the paging and filter part of a view request.
type PageQuery struct {
	Page      int    `validate:"min=1,max=1000000"`
	PageSize  int    `validate:"min=1,max=100"`
	Cursor    string `validate:"max=512"`
	Stalled   bool
	RiskLevel string `validate:"omitempty,oneof=HIGH MEDIUM LOW"`
}

// Params converts the query for the orchestrator, keeping only the filters
// named in keys.
func (q PageQuery) Params(keys ...string) pagination.Params {
	p := pagination.Params{Page: q.Page, PageSize: q.PageSize, Cursor: q.Cursor}
	for _, k := range keys {
		switch {
		case k == adapters.FilterStalled && q.Stalled:
			p.Filters = setFilter(p.Filters, k, "true")
		case k == adapters.FilterRiskLevel && q.RiskLevel != "":
			p.Filters = setFilter(p.Filters, k, q.RiskLevel)
		}
	}
	return p
}

func setFilter(filters map[string]string, key, value string) map[string]string {
	if filters == nil {
		filters = make(map[string]string)
	}
	filters[key] = value
	return filters
}

// parsePageQuery reads page, page_size, cursor, stalled and risk_level from
// the query string.
func parsePageQuery(r *http.Request) (PageQuery, error) {
	values := r.URL.Query()
	q := PageQuery{
		Page:      1,
		PageSize:  DefaultPageSize,
		Cursor:    values.Get("cursor"),
		RiskLevel: strings.ToUpper(values.Get("risk_level")),
	}

	var err error
	if q.Page, err = queryInt(r, "page", q.Page); err != nil {
		return PageQuery{}, err
	}
	if q.PageSize, err = queryInt(r, "page_size", q.PageSize); err != nil {
		return PageQuery{}, err
	}
	if q.Stalled, err = queryBool(r, "stalled"); err != nil {
		return PageQuery{}, err
	}
	if err := utils.ValidateStruct(&q); err != nil {
		return PageQuery{}, err
	}
	return q, nil
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", key)
	}
	return v, nil
}

func queryBool(r *http.Request, key string) (bool, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean", key)
	}
	return v, nil
}

// decodeJSON decodes an optional request body into dst. An empty body
// leaves dst untouched.
func decodeJSON(r *http.Request, dst interface{}) error {
	if r.Body == nil {
		return nil
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}
