package mongoconn

import (
	"context"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/hatlonely/qcore/connector"
	"github.com/hatlonely/qcore/filter"
	"github.com/hatlonely/qcore/qerror"
	"github.com/hatlonely/qcore/schema"
	"github.com/hatlonely/qcore/selection"
	"github.com/hatlonely/qcore/value"
	"github.com/hatlonely/qcore/write"
)

const duplicateKey = 11000

func isObjectID(f schema.Field) bool {
	sf, ok := f.(*schema.ScalarField)
	return ok && sf.IsObjectID()
}

// documentOf 创建时只允许 Set
func documentOf(args *write.WriteArgs) (bson.D, error) {
	doc := bson.D{}
	for _, e := range args.Entries() {
		if e.Op.Kind != write.OpSet {
			return nil, qerror.NewInvalidInput(e.Field.Name(), e.Field.Container().ContainerName(),
				e.Op.Kind.String()+" is not allowed when creating a record")
		}
		doc = append(doc, bson.E{Key: e.Field.DBName(), Value: value.ToBSON(e.Op.Value, isObjectID(e.Field))})
	}
	return doc, nil
}

func (o *operations) CreateRecord(ctx context.Context, model *schema.Model, args *write.WriteArgs, selected selection.FieldSelection) (*connector.SingleRecord, error) {
	doc, err := documentOf(args)
	if err != nil {
		return nil, err
	}
	insertedID, err := o.store.InsertOne(ctx, model.DBName, doc)
	if err != nil {
		return nil, o.normalize(err)
	}

	pk := model.PrimaryIdentifier()
	var returned []value.Value
	// 没有指定 _id 时由驱动生成
	if len(pk) == 1 && pk[0].DBName() == "_id" && insertedID != nil {
		v, err := value.FromBSON(insertedID, pk[0].Type)
		if err != nil {
			return nil, err
		}
		returned = []value.Value{v}
	}
	id, err := write.ResolveIdentifier(pk, returned, args, nil)
	if err != nil {
		return nil, err
	}
	return o.readBack(ctx, model, id, selected)
}

func (o *operations) readBack(ctx context.Context, model *schema.Model, id selection.SelectionResult, selected selection.FieldSelection) (*connector.SingleRecord, error) {
	if onlyScalars(selected) && selection.PrimaryKey(model).IsSupersetOf(selected) {
		values := make([]value.Value, 0, len(selected.Fields))
		for _, f := range selected.Scalars() {
			v, _ := id.Get(f.Name())
			values = append(values, v)
		}
		return &connector.SingleRecord{Record: connector.Record{Values: values}, FieldNames: selected.DBNames()}, nil
	}
	record, err := o.GetSingleRecord(ctx, model, id.Filter(), selected)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, qerror.NewRecordDoesNotExist("record " + id.String() + " of " + model.Name + " was not found after write")
	}
	return record, nil
}

func onlyScalars(sel selection.FieldSelection) bool {
	for _, f := range sel.Fields {
		if _, ok := f.(*selection.ScalarSelection); !ok {
			return false
		}
	}
	return true
}

// CreateRecords skipDuplicates 时使用无序插入，重复键错误不计入插入数
func (o *operations) CreateRecords(ctx context.Context, model *schema.Model, args []*write.WriteArgs, skipDuplicates bool) (int, error) {
	if len(args) == 0 {
		return 0, nil
	}
	docs := make([]interface{}, 0, len(args))
	for _, a := range args {
		doc, err := documentOf(a)
		if err != nil {
			return 0, err
		}
		docs = append(docs, doc)
	}

	err := o.store.InsertMany(ctx, model.DBName, docs, !skipDuplicates)
	if err == nil {
		return len(docs), nil
	}
	if !skipDuplicates {
		return 0, o.normalize(err)
	}

	var bwe mongo.BulkWriteException
	if !errors.As(err, &bwe) || bwe.WriteConcernError != nil {
		return 0, o.normalize(err)
	}
	for _, we := range bwe.WriteErrors {
		if we.Code != duplicateKey {
			return 0, o.normalize(err)
		}
	}
	return len(docs) - len(bwe.WriteErrors), nil
}

// updateDocument 没有除法时使用更新操作符，否则使用聚合管道
func updateDocument(args *write.WriteArgs) interface{} {
	pipeline := false
	for _, e := range args.Entries() {
		if e.Op.Kind == write.OpDivide {
			pipeline = true
			break
		}
	}

	if !pipeline {
		set, inc, mul, unset := bson.D{}, bson.D{}, bson.D{}, bson.D{}
		for _, e := range args.Entries() {
			name := e.Field.DBName()
			v := value.ToBSON(e.Op.Value, isObjectID(e.Field))
			switch e.Op.Kind {
			case write.OpSet:
				set = append(set, bson.E{Key: name, Value: v})
			case write.OpIncrement:
				inc = append(inc, bson.E{Key: name, Value: v})
			case write.OpDecrement:
				inc = append(inc, bson.E{Key: name, Value: value.ToBSON(negate(e.Op.Value), false)})
			case write.OpMultiply:
				mul = append(mul, bson.E{Key: name, Value: v})
			case write.OpUnset:
				unset = append(unset, bson.E{Key: name, Value: ""})
			}
		}
		update := bson.D{}
		for _, part := range []bson.E{{Key: "$set", Value: set}, {Key: "$inc", Value: inc}, {Key: "$mul", Value: mul}, {Key: "$unset", Value: unset}} {
			if len(part.Value.(bson.D)) > 0 {
				update = append(update, part)
			}
		}
		return update
	}

	set := bson.D{}
	var unset bson.A
	for _, e := range args.Entries() {
		name := e.Field.DBName()
		field := "$" + name
		v := value.ToBSON(e.Op.Value, isObjectID(e.Field))
		switch e.Op.Kind {
		case write.OpSet:
			set = append(set, bson.E{Key: name, Value: bson.M{"$literal": v}})
		case write.OpIncrement:
			set = append(set, bson.E{Key: name, Value: bson.M{"$add": bson.A{field, v}}})
		case write.OpDecrement:
			set = append(set, bson.E{Key: name, Value: bson.M{"$subtract": bson.A{field, v}}})
		case write.OpMultiply:
			set = append(set, bson.E{Key: name, Value: bson.M{"$multiply": bson.A{field, v}}})
		case write.OpDivide:
			set = append(set, bson.E{Key: name, Value: bson.M{"$divide": bson.A{field, v}}})
		case write.OpUnset:
			unset = append(unset, name)
		}
	}
	pipe := bson.A{}
	if len(set) > 0 {
		pipe = append(pipe, bson.D{{Key: "$set", Value: set}})
	}
	if len(unset) > 0 {
		pipe = append(pipe, bson.D{{Key: "$unset", Value: unset}})
	}
	return pipe
}

func negate(v value.Value) value.Value {
	switch x := v.(type) {
	case value.Int:
		return -x
	case value.Float:
		return -x
	}
	return v
}

// UpdateRecords 参数为空时不访问数据库
func (o *operations) UpdateRecords(ctx context.Context, model *schema.Model, rf write.RecordFilter, args *write.WriteArgs, limit *int) (int, error) {
	if args.IsEmpty() {
		return 0, nil
	}
	lim := write.NewLimit(limit)
	if lim.Exhausted() {
		return 0, nil
	}
	ids, err := o.identifiersOf(ctx, model, rf, lim)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}
	n, err := o.store.UpdateMany(ctx, model.DBName, idFilter(ids), updateDocument(args))
	if err != nil {
		return 0, o.normalize(err)
	}
	lim.Consume(int(n))
	return int(n), nil
}

func (o *operations) identifiersOf(ctx context.Context, model *schema.Model, rf write.RecordFilter, lim *write.Limit) ([]selection.SelectionResult, error) {
	if rf.HasSelectors() {
		return lim.Slice(rf.Selectors), nil
	}
	var take *int
	if n, ok := lim.Remaining(); ok {
		take = &n
	}
	return o.selectIDs(ctx, model, rf.Filter, take)
}

func (o *operations) UpdateRecord(ctx context.Context, model *schema.Model, rf write.RecordFilter, args *write.WriteArgs, selected selection.FieldSelection) (*connector.SingleRecord, error) {
	var id selection.SelectionResult
	if rf.HasSelectors() {
		id = rf.Selectors[0]
	} else {
		one := 1
		ids, err := o.selectIDs(ctx, model, rf.Filter, &one)
		if err != nil {
			return nil, err
		}
		if len(ids) == 0 {
			return nil, qerror.NewRecordDoesNotExist("no " + model.Name + " record matches the update filter")
		}
		id = ids[0]
	}

	if !args.IsEmpty() {
		n, err := o.store.UpdateMany(ctx, model.DBName, idFilter([]selection.SelectionResult{id}), updateDocument(args))
		if err != nil {
			return nil, o.normalize(err)
		}
		if n == 0 {
			return nil, qerror.NewRecordDoesNotExist("no " + model.Name + " record matches the update filter")
		}
		id = applyToID(id, args)
	}
	return o.readBack(ctx, model, id, selected)
}

func applyToID(id selection.SelectionResult, args *write.WriteArgs) selection.SelectionResult {
	b := selection.NewSelectionResultBuilder()
	for _, p := range id.Pairs() {
		v := p.Value
		if e, ok := args.Get(p.Field.DBName()); ok {
			v = e.Op.Apply(v)
		}
		b.Add(p.Field, v)
	}
	return b.Build()
}

func (o *operations) DeleteRecords(ctx context.Context, model *schema.Model, rf write.RecordFilter, limit *int) (int, error) {
	lim := write.NewLimit(limit)
	if lim.Exhausted() {
		return 0, nil
	}
	ids, err := o.identifiersOf(ctx, model, rf, lim)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}
	n, err := o.store.DeleteMany(ctx, model.DBName, idFilter(ids))
	if err != nil {
		return 0, o.normalize(err)
	}
	return int(n), nil
}

func (o *operations) DeleteRecord(ctx context.Context, model *schema.Model, rf write.RecordFilter, selected selection.FieldSelection) (*connector.SingleRecord, error) {
	f := rf.Filter
	if rf.HasSelectors() {
		f = filter.AndOf(selection.FiltersFor(rf.Selectors[:1]), rf.Filter)
	}
	pk := selection.PrimaryKey(model)
	// 同时读取主键，用于删除
	record, err := o.GetSingleRecord(ctx, model, f, selection.Union(selected, pk))
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, qerror.NewRecordDoesNotExist("no " + model.Name + " record matches the delete filter")
	}
	id, err := record.Identifier(pk)
	if err != nil {
		return nil, err
	}
	n, err := o.store.DeleteMany(ctx, model.DBName, idFilter([]selection.SelectionResult{id}))
	if err != nil {
		return nil, o.normalize(err)
	}
	if n == 0 {
		return nil, qerror.NewRecordDoesNotExist("no " + model.Name + " record matches the delete filter")
	}
	return record.Project(selected), nil
}
