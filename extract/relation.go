package extract

import (
	"github.com/hatlonely/qcore/document"
	"github.com/hatlonely/qcore/filter"
	"github.com/hatlonely/qcore/qerror"
	"github.com/hatlonely/qcore/schema"
	"github.com/hatlonely/qcore/value"
)

// extractRelationFilters
//
//	{author: null}                   一对一关系为空
//	{author: {is: {...}}}            显式包装
//	{posts: {some: {...}}}           一对多量词
//	{author: {name: "a"}}            隐式 is
func extractRelationFilters(rf *schema.RelationField, v document.ParsedInputValue) ([]filter.Filter, error) {
	container := rf.Model().Name
	switch x := v.(type) {
	case document.Single:
		if value.IsNull(x.Value) {
			return []filter.Filter{&filter.OneRelationIsNull{Field: rf}}, nil
		}
	case *document.ParsedInputMap:
		if !x.IsRelationEnvelope() {
			nested, err := ExtractFilter(x, rf.RelatedModel())
			if err != nil {
				return nil, err
			}
			return []filter.Filter{&filter.RelationFilter{Field: rf, Nested: nested, Condition: filter.ToOneRelatedRecord}}, nil
		}

		var out []filter.Filter
		var err error
		x.Iter(func(key string, e document.ParsedInputValue) bool {
			var f filter.Filter
			f, err = parseRelationCondition(rf, key, e)
			if err != nil {
				return false
			}
			out = append(out, f)
			return true
		})
		return out, err
	}
	return nil, qerror.NewInvalidInput(rf.Name(), container, "invalid relation filter input")
}

func parseRelationCondition(rf *schema.RelationField, key string, v document.ParsedInputValue) (filter.Filter, error) {
	container := rf.Model().Name
	if s, ok := v.(document.Single); ok && value.IsNull(s.Value) {
		switch key {
		case "is":
			return &filter.OneRelationIsNull{Field: rf}, nil
		case "isNot":
			return filter.NotOf(&filter.OneRelationIsNull{Field: rf}), nil
		}
		return nil, qerror.NewInvalidInput(key, container, "null is only allowed for is and isNot")
	}

	m, ok := v.(*document.ParsedInputMap)
	if !ok {
		return nil, qerror.NewInvalidInput(key, container, "expected an object")
	}
	nested, err := ExtractFilter(m, rf.RelatedModel())
	if err != nil {
		return nil, err
	}

	switch key {
	case "is":
		return &filter.RelationFilter{Field: rf, Nested: nested, Condition: filter.ToOneRelatedRecord}, nil
	case "isNot":
		return filter.NotOf(&filter.RelationFilter{Field: rf, Nested: nested, Condition: filter.ToOneRelatedRecord}), nil
	case "every":
		return &filter.RelationFilter{Field: rf, Nested: nested, Condition: filter.EveryRelatedRecord}, nil
	case "some":
		return &filter.RelationFilter{Field: rf, Nested: nested, Condition: filter.AtLeastOneRelatedRecord}, nil
	case "none":
		return &filter.RelationFilter{Field: rf, Nested: nested, Condition: filter.NoRelatedRecord}, nil
	}
	return nil, qerror.NewInputResolution(rf.Name()+"."+key, container)
}
