package handlers

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/sahilchouksey/icm-reconcile/model"
	"github.com/sahilchouksey/icm-reconcile/services/expectation"
	"github.com/sahilchouksey/icm-reconcile/services/sheetid"
)

// ParamID reads a positive integer route parameter
func ParamID(c *fiber.Ctx, name string) (uint, error) {
	id, err := strconv.ParseUint(c.Params(name), 10, 32)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return uint(id), nil
}

// QueryID reads an optional positive integer query parameter
func QueryID(c *fiber.Ctx, name string) (*uint, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return nil, nil
	}
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		return nil, fmt.Errorf("invalid %s %q", name, raw)
	}
	v := uint(id)
	return &v, nil
}

// ParseFilters reads school_id, subject_id, test_type and subject_type from the query string
func ParseFilters(c *fiber.Ctx) (expectation.Filters, error) {
	var f expectation.Filters
	var err error

	if f.SchoolID, err = QueryID(c, "school_id"); err != nil {
		return f, err
	}
	if f.SubjectID, err = QueryID(c, "subject_id"); err != nil {
		return f, err
	}
	if raw := strings.TrimSpace(c.Query("test_type")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return f, fmt.Errorf("invalid test_type %q", raw)
		}
		tt := sheetid.TestType(n)
		f.TestType = &tt
	}
	if raw := strings.TrimSpace(c.Query("subject_type")); raw != "" {
		st := model.SubjectType(strings.ToUpper(raw))
		f.SubjectType = &st
	}
	return f, f.Validate()
}
