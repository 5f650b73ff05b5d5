package connector

import (
	"github.com/hatlonely/qcore/qerror"
	"github.com/hatlonely/qcore/selection"
	"github.com/hatlonely/qcore/value"
)

// Record 一行数据，Values 与所属结果的 FieldNames 一一对应
type Record struct {
	Values []value.Value
}

// Identifier 从记录中取出 sel 中的标量字段，names 为 Values 对应的数据库字段名
func (r Record) Identifier(sel selection.FieldSelection, names []string) (selection.SelectionResult, error) {
	index := make(map[string]int, len(names))
	for i, n := range names {
		index[n] = i
	}
	b := selection.NewSelectionResultBuilder()
	for _, f := range sel.Scalars() {
		i, ok := index[f.DBName()]
		if !ok || i >= len(r.Values) {
			return selection.SelectionResult{}, qerror.NewFieldNotFound(f.Name(), f.Container().ContainerName(), "record")
		}
		b.Add(f, r.Values[i])
	}
	return b.Build(), nil
}

// Get 按数据库字段名取值
func (r Record) Get(names []string, name string) (value.Value, bool) {
	for i, n := range names {
		if n == name && i < len(r.Values) {
			return r.Values[i], true
		}
	}
	return nil, false
}

type SingleRecord struct {
	Record     Record
	FieldNames []string
}

func (r *SingleRecord) Identifier(sel selection.FieldSelection) (selection.SelectionResult, error) {
	return r.Record.Identifier(sel, r.FieldNames)
}

// ToObject 按 sel 转换为对象
func (r *SingleRecord) ToObject(sel selection.FieldSelection) (value.Object, error) {
	row, err := sel.CoerceRow(r.Record.Values)
	if err != nil {
		return nil, err
	}
	return sel.ToObject(row), nil
}

// Project 按 sel 的字段顺序取出列，记录中没有的列取 Null
func (r *SingleRecord) Project(sel selection.FieldSelection) *SingleRecord {
	names := sel.DBNames()
	return &SingleRecord{Record: r.Record.project(r.FieldNames, names), FieldNames: names}
}

func (r Record) project(from []string, to []string) Record {
	values := make([]value.Value, len(to))
	for i, name := range to {
		if v, ok := r.Get(from, name); ok {
			values[i] = v
		} else {
			values[i] = value.Null{}
		}
	}
	return Record{Values: values}
}

type ManyRecords struct {
	Records    []Record
	FieldNames []string
}

func NewManyRecords(fieldNames []string) *ManyRecords {
	return &ManyRecords{FieldNames: fieldNames}
}

func (m *ManyRecords) Push(values []value.Value) {
	m.Records = append(m.Records, Record{Values: values})
}

func (m *ManyRecords) Len() int {
	return len(m.Records)
}

// First 没有记录时返回 nil
func (m *ManyRecords) First() *SingleRecord {
	if len(m.Records) == 0 {
		return nil
	}
	return &SingleRecord{Record: m.Records[0], FieldNames: m.FieldNames}
}

func (m *ManyRecords) Project(sel selection.FieldSelection) *ManyRecords {
	names := sel.DBNames()
	out := &ManyRecords{Records: make([]Record, 0, len(m.Records)), FieldNames: names}
	for _, r := range m.Records {
		out.Records = append(out.Records, r.project(m.FieldNames, names))
	}
	return out
}

func (m *ManyRecords) Identifiers(sel selection.FieldSelection) ([]selection.SelectionResult, error) {
	out := make([]selection.SelectionResult, 0, len(m.Records))
	for _, r := range m.Records {
		id, err := r.Identifier(sel, m.FieldNames)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}

func (m *ManyRecords) ToObjects(sel selection.FieldSelection) ([]value.Object, error) {
	out := make([]value.Object, 0, len(m.Records))
	for _, r := range m.Records {
		row, err := sel.CoerceRow(r.Values)
		if err != nil {
			return nil, err
		}
		out = append(out, sel.ToObject(row))
	}
	return out, nil
}
