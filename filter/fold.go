package filter

import (
	"github.com/hatlonely/qcore/value"
)

// Flatten 展开同类嵌套分组，结果再次展开保持不变
//
//	And(a, And(b, c))   => And(a, b, c)
//	Or(a, Or(b, c))     => Or(a, b, c)
//	Not(a, Or(b, c))    => Not(a, b, c)
//
// Not 的语义是 NOT a AND NOT b，所以只有 Or 子节点可以并入
func Flatten(f Filter) Filter {
	switch x := f.(type) {
	case *And:
		return &And{Filters: flattenInto(x.Filters, func(c Filter) ([]Filter, bool) {
			a, ok := c.(*And)
			if !ok {
				return nil, false
			}
			return a.Filters, true
		})}
	case *Or:
		return &Or{Filters: flattenInto(x.Filters, func(c Filter) ([]Filter, bool) {
			o, ok := c.(*Or)
			if !ok {
				return nil, false
			}
			return o.Filters, true
		})}
	case *Not:
		return &Not{Filters: flattenInto(x.Filters, func(c Filter) ([]Filter, bool) {
			o, ok := c.(*Or)
			if !ok {
				return nil, false
			}
			return o.Filters, true
		})}
	}
	return f
}

func flattenInto(children []Filter, absorb func(Filter) ([]Filter, bool)) []Filter {
	out := make([]Filter, 0, len(children))
	for _, c := range children {
		c = Flatten(c)
		if inner, ok := absorb(c); ok {
			out = append(out, inner...)
			continue
		}
		out = append(out, c)
	}
	return out
}

// MergeSearchFilters 合并同一分组内检索语句相同的全文检索条件
//
// 全文检索条件在任一字段命中即为真，所以同一分组内相同语句、相同极性的检索可以合并字段列表
func MergeSearchFilters(f Filter) Filter {
	flat := Flatten(f)
	switch x := flat.(type) {
	case *And:
		return &And{Filters: mergeSearch(x.Filters)}
	case *Or:
		return &Or{Filters: mergeSearch(x.Filters)}
	case *Not:
		return &Not{Filters: mergeSearch(x.Filters)}
	}
	return flat
}

func mergeSearch(filters []Filter) []Filter {
	out := make([]Filter, 0, len(filters))
	buckets := map[string]*ScalarFilter{}
	for _, f := range filters {
		switch x := f.(type) {
		case *ScalarFilter:
			if x.Condition.Op != OpSearch && x.Condition.Op != OpNotSearch {
				out = append(out, x)
				continue
			}
			key := x.Condition.Op.String() + "|" + value.Key(x.Condition.Value)
			if first, ok := buckets[key]; ok {
				first.Projection.Fields = append(first.Projection.Fields, x.Projection.Fields...)
				continue
			}
			// 复制一份，避免修改调用方的树
			merged := &ScalarFilter{
				Projection: ScalarProjection{
					Fields:   append(x.Projection.Fields[:0:0], x.Projection.Fields...),
					Compound: true,
				},
				Condition: x.Condition,
				Mode:      x.Mode,
			}
			buckets[key] = merged
			out = append(out, merged)
		case *And:
			out = append(out, &And{Filters: mergeSearch(x.Filters)})
		case *Or:
			out = append(out, &Or{Filters: mergeSearch(x.Filters)})
		case *Not:
			out = append(out, &Not{Filters: mergeSearch(x.Filters)})
		default:
			out = append(out, f)
		}
	}
	return out
}

// DefaultBatchSize In/NotIn 单条语句中的最大参数个数
const DefaultBatchSize = 5000

// Batch 将超长的 In/NotIn 列表去重后拆分
//
// In 拆分为多个 In 的 Or，NotIn 拆分为多个 NotIn 的 And，其余条件原样递归
func Batch(f Filter, size int) Filter {
	if size <= 0 {
		size = DefaultBatchSize
	}
	switch x := f.(type) {
	case *ScalarFilter:
		op := x.Condition.Op
		if (op != OpIn && op != OpNotIn) || len(x.Condition.Values) <= size {
			return x
		}
		chunks := Chunk(Dedup(x.Condition.Values), size)
		if len(chunks) == 1 {
			return &ScalarFilter{Projection: x.Projection, Condition: Condition{Op: op, Values: chunks[0]}, Mode: x.Mode}
		}
		parts := make([]Filter, 0, len(chunks))
		for _, chunk := range chunks {
			parts = append(parts, &ScalarFilter{Projection: x.Projection, Condition: Condition{Op: op, Values: chunk}, Mode: x.Mode})
		}
		if op == OpIn {
			return &Or{Filters: parts}
		}
		return &And{Filters: parts}
	case *And:
		return &And{Filters: batchAll(x.Filters, size)}
	case *Or:
		return &Or{Filters: batchAll(x.Filters, size)}
	case *Not:
		return &Not{Filters: batchAll(x.Filters, size)}
	case *RelationFilter:
		return &RelationFilter{Field: x.Field, Nested: Batch(x.Nested, size), Condition: x.Condition}
	}
	return f
}

func batchAll(fs []Filter, size int) []Filter {
	out := make([]Filter, 0, len(fs))
	for _, f := range fs {
		out = append(out, Batch(f, size))
	}
	return out
}

// Dedup 按 value.Key 去重，保持首次出现的顺序
func Dedup(vs []value.Value) []value.Value {
	seen := make(map[string]struct{}, len(vs))
	out := make([]value.Value, 0, len(vs))
	for _, v := range vs {
		k := value.Key(v)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, v)
	}
	return out
}

// Chunk 按 size 切分
func Chunk[T any](vs []T, size int) [][]T {
	if size <= 0 {
		return [][]T{vs}
	}
	var out [][]T
	for len(vs) > size {
		out = append(out, vs[:size:size])
		vs = vs[size:]
	}
	if len(vs) > 0 || len(out) == 0 {
		out = append(out, vs)
	}
	return out
}
