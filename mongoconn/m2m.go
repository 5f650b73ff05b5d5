package mongoconn

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/hatlonely/qcore/qerror"
	"github.com/hatlonely/qcore/schema"
	"github.com/hatlonely/qcore/selection"
	"github.com/hatlonely/qcore/value"
)

// arrayField 多对多关系两端各自保存对端 id 的数组
func arrayField(field *schema.RelationField) (*schema.ScalarField, *schema.ScalarField, error) {
	if !field.IsManyToMany() || field.UsesJoinTable() {
		return nil, nil, qerror.NewUnsupported("connect and disconnect of " + field.Name() + " without id arrays")
	}
	self := field.LinkingFields()
	other := field.Opposite().LinkingFields()
	if len(self) != 1 || len(other) != 1 || !self[0].IsList() || !other[0].IsList() {
		return nil, nil, qerror.NewUnsupported("many-to-many relation " + field.Name() + " must link through a single id array")
	}
	return self[0], other[0], nil
}

func singleValue(r selection.SelectionResult, objectID bool) (interface{}, error) {
	if r.Len() != 1 {
		return nil, qerror.NewUnsupported("many-to-many relations on compound primary keys")
	}
	return value.ToBSON(r.Values()[0], objectID), nil
}

// M2MConnect 两端数组都使用 $addToSet，已存在的关联不会重复
func (o *operations) M2MConnect(ctx context.Context, field *schema.RelationField, parent selection.SelectionResult, children []selection.SelectionResult) error {
	return o.m2m(ctx, field, parent, children, "$addToSet")
}

func (o *operations) M2MDisconnect(ctx context.Context, field *schema.RelationField, parent selection.SelectionResult, children []selection.SelectionResult) error {
	return o.m2m(ctx, field, parent, children, "$pullAll")
}

func (o *operations) m2m(ctx context.Context, field *schema.RelationField, parent selection.SelectionResult, children []selection.SelectionResult, op string) error {
	self, other, err := arrayField(field)
	if err != nil {
		return err
	}
	if len(children) == 0 {
		return nil
	}

	parentValue, err := singleValue(parent, other.IsObjectID())
	if err != nil {
		return err
	}
	childValues := bson.A{}
	for _, c := range children {
		v, err := singleValue(c, self.IsObjectID())
		if err != nil {
			return err
		}
		childValues = append(childValues, v)
	}

	var parentUpdate, childUpdate bson.M
	if op == "$addToSet" {
		parentUpdate = bson.M{op: bson.M{self.DBName(): bson.M{"$each": childValues}}}
		childUpdate = bson.M{op: bson.M{other.DBName(): parentValue}}
	} else {
		parentUpdate = bson.M{op: bson.M{self.DBName(): childValues}}
		childUpdate = bson.M{op: bson.M{other.DBName(): bson.A{parentValue}}}
	}

	if _, err := o.store.UpdateMany(ctx, field.Model().DBName, idFilter([]selection.SelectionResult{parent}), parentUpdate); err != nil {
		return o.normalize(err)
	}
	if _, err := o.store.UpdateMany(ctx, field.RelatedModel().DBName, idFilter(children), childUpdate); err != nil {
		return o.normalize(err)
	}
	return nil
}
