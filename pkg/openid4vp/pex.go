package openid4vp

import (
	"context"
	"encoding/json"
	"regexp"

	"github.com/PaesslerAG/gval"
	"github.com/PaesslerAG/jsonpath"

	"github.com/pilacorp/vc-engine/pkg/vcerr"
)

// pathBuilder is the gval language every JSONPath evaluation in this
// package uses.
var pathBuilder = gval.Full(jsonpath.PlaceholderExtension())

// EvalJSONPath evaluates a single JSONPath expression against data
// (typically the result of unmarshaling a vp_token element into
// interface{}), returning whatever value the path selects.
func EvalJSONPath(data interface{}, path string) (interface{}, error) {
	eval, err := pathBuilder.NewEvaluable(path)
	if err != nil {
		return nil, vcerr.Parse("openid4vp: invalid jsonpath %q", path).Wrap(err)
	}
	result, err := eval(context.Background(), data)
	if err != nil {
		return nil, vcerr.InvalidStructure("openid4vp: jsonpath %q did not match", path).Wrap(err)
	}
	return result, nil
}

// MatchCandidate reports whether one candidate credential's claims (as
// produced by vcjwt.Parse/sdjwt.ResolveDisclosed/mdoc.ElementValues)
// satisfies every required field of descriptor's constraints, per DIF
// PEX v2 field matching: a field's first resolvable Path wins, and if a
// Filter is present the resolved value must satisfy it.
func MatchCandidate(descriptor InputDescriptor, claims interface{}) (bool, error) {
	for _, field := range descriptor.Constraints.Fields {
		value, found := firstMatch(claims, field.Path)
		if !found {
			if field.Optional {
				continue
			}
			return false, nil
		}
		if field.Filter != nil {
			ok, err := matchesFilter(value, *field.Filter)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
	}
	return true, nil
}

func firstMatch(claims interface{}, paths []string) (interface{}, bool) {
	for _, p := range paths {
		if v, err := EvalJSONPath(claims, p); err == nil {
			return v, true
		}
	}
	return nil, false
}

func matchesFilter(value interface{}, f Filter) (bool, error) {
	if f.Type != "" {
		if !matchesType(value, f.Type) {
			return false, nil
		}
	}
	if f.Pattern != "" {
		s, ok := value.(string)
		if !ok {
			return false, nil
		}
		re, err := regexp.Compile(f.Pattern)
		if err != nil {
			return false, vcerr.Usage("openid4vp: invalid filter pattern %q", f.Pattern).Wrap(err)
		}
		return re.MatchString(s), nil
	}
	return true, nil
}

func matchesType(value interface{}, typ string) bool {
	switch typ {
	case "string":
		_, ok := value.(string)
		return ok
	case "number":
		_, ok := value.(float64)
		return ok
	case "boolean":
		_, ok := value.(bool)
		return ok
	default:
		return true
	}
}

// EvaluateSubmissionRequirements checks matched (the set of input
// descriptor IDs a holder can satisfy) against pd's
// submission_requirements, per DIF PEX v2's pick/all rule. With no
// submission_requirements, every input descriptor is required — the PEX
// v2 default.
func EvaluateSubmissionRequirements(pd *PresentationDefinition, matched map[string]bool) error {
	if len(pd.SubmissionRequirements) == 0 {
		for _, d := range pd.InputDescriptors {
			if !matched[d.ID] {
				return vcerr.InvalidStructure("openid4vp: input descriptor %q not satisfied", d.ID)
			}
		}
		return nil
	}

	groups := map[string][]string{}
	for _, d := range pd.InputDescriptors {
		for _, g := range d.Group {
			groups[g] = append(groups[g], d.ID)
		}
	}

	for _, req := range pd.SubmissionRequirements {
		ok, err := evaluateRequirement(req, groups, matched)
		if err != nil {
			return err
		}
		if !ok {
			return vcerr.InvalidStructure("openid4vp: submission requirement %q not satisfied", req.Name)
		}
	}
	return nil
}

func evaluateRequirement(req SubmissionRequirement, groups map[string][]string, matched map[string]bool) (bool, error) {
	var satisfiedCount int
	var total int

	if len(req.FromNested) > 0 {
		total = len(req.FromNested)
		for _, nested := range req.FromNested {
			ok, err := evaluateRequirement(nested, groups, matched)
			if err != nil {
				return false, err
			}
			if ok {
				satisfiedCount++
			}
		}
	} else {
		ids, ok := groups[req.From]
		if !ok {
			return false, vcerr.InvalidStructure("openid4vp: submission requirement references unknown group %q", req.From)
		}
		total = len(ids)
		for _, id := range ids {
			if matched[id] {
				satisfiedCount++
			}
		}
	}

	switch req.Rule {
	case SelectionAll:
		return satisfiedCount == total, nil
	case SelectionPick:
		switch {
		case req.Count > 0:
			return satisfiedCount >= req.Count, nil
		case req.Min > 0 || req.Max > 0:
			if req.Min > 0 && satisfiedCount < req.Min {
				return false, nil
			}
			if req.Max > 0 && satisfiedCount > req.Max {
				return false, nil
			}
			return true, nil
		default:
			return satisfiedCount >= 1, nil
		}
	default:
		return false, vcerr.Usage("openid4vp: unknown submission requirement rule %q", req.Rule)
	}
}

// decodeJSON is a small helper descriptor-dispatch code shares: unmarshal
// raw into a generic interface{} tree for JSONPath evaluation.
func decodeJSON(raw []byte) (interface{}, error) {
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, vcerr.Parse("openid4vp: invalid json").Wrap(err)
	}
	return v, nil
}
