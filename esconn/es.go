// Package esconn elasticsearch 连接器
//
// 每个模型对应一个索引，单字段主键对应文档 _id。不支持事务和关系过滤
package esconn

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/pkg/errors"

	"github.com/hatlonely/qcore/connector"
	"github.com/hatlonely/qcore/log"
	"github.com/hatlonely/qcore/normalize"
	"github.com/hatlonely/qcore/qerror"
	"github.com/hatlonely/qcore/schema"
	"github.com/hatlonely/qcore/selection"
)

func init() {
	connector.MustRegister(schema.ProviderElasticsearch, func(options *connector.Options) (connector.Connector, error) {
		var esOptions ESOptions
		if err := options.Decode(&esOptions); err != nil {
			return nil, errors.WithMessage(err, "decode elasticsearch options failed")
		}
		return NewESWithOptions(&esOptions, options.Log())
	})
}

// ES elasticsearch 连接器
type ES struct {
	client     *elasticsearch.Client
	options    *ESOptions
	normalizer normalize.Normalizer
	logger     log.Logger
}

func NewESWithOptions(opts *ESOptions, logger log.Logger) (*ES, error) {
	if logger == nil {
		logger = log.Default()
	}
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: opts.Addresses,
		Username:  opts.Username,
		Password:  opts.Password,
		APIKey:    opts.APIKey,
		Transport: &http.Transport{
			MaxIdleConnsPerHost:   10,
			ResponseHeaderTimeout: opts.Timeout,
		},
		MaxRetries: opts.MaxRetries,
	})
	if err != nil {
		return nil, errors.Wrap(err, "elasticsearch.NewClient failed")
	}

	res, err := client.Info()
	if err != nil {
		return nil, errors.Wrap(err, "elasticsearch info failed")
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, errors.Errorf("elasticsearch connection error: %s", res.String())
	}

	return &ES{
		client:     client,
		options:    opts,
		normalizer: normalize.For(schema.ProviderElasticsearch),
		logger:     logger.With("connector", string(schema.ProviderElasticsearch)),
	}, nil
}

func (e *ES) Name() string {
	return string(schema.ProviderElasticsearch)
}

func (e *ES) Close() error {
	return nil
}

func (e *ES) BeginTx(ctx context.Context, level connector.IsolationLevel) (connector.Transaction, error) {
	return nil, qerror.NewUnsupported("transactions on elasticsearch")
}

func (e *ES) M2MConnect(ctx context.Context, field *schema.RelationField, parent selection.SelectionResult, children []selection.SelectionResult) error {
	return qerror.NewUnsupported("many-to-many relation " + field.Name() + " on elasticsearch")
}

func (e *ES) M2MDisconnect(ctx context.Context, field *schema.RelationField, parent selection.SelectionResult, children []selection.SelectionResult) error {
	return qerror.NewUnsupported("many-to-many relation " + field.Name() + " on elasticsearch")
}

func (e *ES) normalize(err error) error {
	if err == nil {
		return nil
	}
	return e.normalizer.Normalize(err)
}

// do 执行请求并解析响应，错误响应转换为 normalize.ESError
func (e *ES) do(ctx context.Context, req esapi.Request, index string, out interface{}) error {
	res, err := req.Do(ctx, e.client)
	if err != nil {
		return e.normalize(errors.Wrap(err, "elasticsearch request failed"))
	}
	defer res.Body.Close()

	if res.IsError() {
		return e.normalize(responseError(res, index))
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, res.Body)
		return nil
	}
	decoder := json.NewDecoder(res.Body)
	decoder.UseNumber()
	if err := decoder.Decode(out); err != nil {
		return errors.Wrap(err, "decode elasticsearch response failed")
	}
	return nil
}

type errorBody struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
	Index  string `json:"index"`
}

// responseError error 字段可能是对象也可能是字符串
func responseError(res *esapi.Response, index string) error {
	var body struct {
		Error  json.RawMessage `json:"error"`
		Status int             `json:"status"`
	}
	raw, _ := io.ReadAll(res.Body)
	_ = json.Unmarshal(raw, &body)

	out := &normalize.ESError{Status: res.StatusCode, Index: index}
	var eb errorBody
	if err := json.Unmarshal(body.Error, &eb); err == nil && eb.Type != "" {
		out.Type, out.Reason = eb.Type, eb.Reason
		if eb.Index != "" {
			out.Index = eb.Index
		}
	} else if len(body.Error) > 0 {
		var s string
		_ = json.Unmarshal(body.Error, &s)
		out.Reason = s
	} else {
		out.Reason = string(bytes.TrimSpace(raw))
	}
	return out
}

func jsonBody(v interface{}) (io.Reader, error) {
	buf, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "marshal elasticsearch request failed")
	}
	return bytes.NewReader(buf), nil
}
