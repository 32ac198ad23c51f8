package salesforce

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/sells-group/workbench/internal/approval"
	"github.com/sells-group/workbench/internal/model"
	"github.com/sells-group/workbench/internal/patch"
)

// FieldValidator checks that every approved patch targets a field that
// exists on its object and is updateable. Each object is described once per
// Validate call.
type FieldValidator struct {
	client Client
}

// NewFieldValidator returns a FieldValidator backed by c.
func NewFieldValidator(c Client) *FieldValidator {
	return &FieldValidator{client: c}
}

// Validate implements approval.Validator.
func (v *FieldValidator) Validate(ctx context.Context, entries []patch.Entry) ([]approval.Problem, error) {
	described := make(map[string]*SObjectDescription)
	var problems []approval.Problem

	for _, e := range entries {
		obj := e.Patch.ObjectType
		if obj == "" || obj == model.UnknownLabel {
			continue
		}
		desc, ok := described[obj]
		if !ok {
			d, err := v.client.DescribeSObject(ctx, obj)
			if err != nil {
				problems = append(problems, approval.Problem{Key: e.Key, Message: fmt.Sprintf("cannot describe %s", obj)})
				described[obj] = nil
				continue
			}
			desc = d
			described[obj] = d
		}
		if desc == nil {
			problems = append(problems, approval.Problem{Key: e.Key, Message: fmt.Sprintf("cannot describe %s", obj)})
			continue
		}

		f, ok := desc.Field(e.Patch.FieldName)
		switch {
		case !ok:
			problems = append(problems, approval.Problem{Key: e.Key, Message: fmt.Sprintf("%s has no field %s", obj, e.Patch.FieldName)})
		case !f.Updateable:
			problems = append(problems, approval.Problem{Key: e.Key, Message: fmt.Sprintf("%s is not updateable", e.Patch.Ref())})
		}
	}
	return problems, nil
}

// DriftValidator compares each Account patch's before value with the live
// record, found by name. A patch whose before no longer matches is rejected
// so a stale draft cannot overwrite a newer edit. Field names that are not
// bare API names are rejected without being queried. Other objects are not
// checked.
type DriftValidator struct {
	client      Client
	accountName string
}

// NewDriftValidator returns a DriftValidator for the named account.
func NewDriftValidator(c Client, accountName string) *DriftValidator {
	return &DriftValidator{client: c, accountName: accountName}
}

// Validate implements approval.Validator.
func (v *DriftValidator) Validate(ctx context.Context, entries []patch.Entry) ([]approval.Problem, error) {
	var checked []patch.Entry
	var fields []string
	var problems []approval.Problem
	seen := make(map[string]bool)
	for _, e := range entries {
		if e.Patch.ObjectType != "Account" || e.Patch.FieldName == model.UnknownLabel {
			continue
		}
		if !ValidIdentifier(e.Patch.FieldName) {
			problems = append(problems, approval.Problem{Key: e.Key, Message: fmt.Sprintf("invalid field name %q", e.Patch.FieldName)})
			continue
		}
		checked = append(checked, e)
		if !seen[e.Patch.FieldName] {
			seen[e.Patch.FieldName] = true
			fields = append(fields, e.Patch.FieldName)
		}
	}
	if len(checked) == 0 {
		return problems, nil
	}

	current, err := CurrentValues(ctx, v.client, "Account", "Name", v.accountName, fields)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return append(problems, approval.Problem{Key: checked[0].Key, Message: fmt.Sprintf("no Account named %q", v.accountName)}), nil
	}

	for _, e := range checked {
		live := current[e.Patch.FieldName]
		if !sameValue(e.Patch.Before, live) {
			problems = append(problems, approval.Problem{
				Key:     e.Key,
				Message: fmt.Sprintf("stale: expected %s, found %s", model.FormatValue(e.Patch.Before), model.FormatValue(live)),
			})
		}
	}
	return problems, nil
}

// sameValue treats nil and "" as equal and compares everything else by its
// rendered form, since drafts and the API disagree on numeric types.
func sameValue(a, b any) bool {
	return render(a) == render(b)
}

func render(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return strings.TrimSpace(model.FormatValue(v))
	}
}
