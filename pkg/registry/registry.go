package registry

import (
	"bytes"
	"encoding/json"
	"fmt"

	"stopscan/pkg/contract"
	"stopscan/plugins/aggregator/finiteonly"
	"stopscan/plugins/aggregator/maximum"
	"stopscan/plugins/aggregator/pernumber"
	linear "stopscan/plugins/assembler/linear"
	dblob "stopscan/plugins/decoder/blob"
	sfs "stopscan/plugins/source/filesystem"
	sspan "stopscan/plugins/source/span"
	fixed "stopscan/plugins/splitter/fixed"
	wflaky "stopscan/plugins/worker/flaky"
	wnative "stopscan/plugins/worker/native"
	wfs "stopscan/plugins/writer/filesystem"
	wsql "stopscan/plugins/writer/sqlite"
)

// strictUnmarshal: 使用 DisallowUnknownFields 严格解码，拒绝未知字段。
func strictUnmarshal(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		// 保持零值（默认选项）
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: options: %v", contract.ErrMalformedInput, err)
	}
	return nil
}

// NewAggregator 工厂签名：接收原样 JSON Options。
type NewAggregator func(raw json.RawMessage) (contract.Aggregator, error)

// NewSource 工厂签名：接收原样 JSON Options。
type NewSource func(raw json.RawMessage) (contract.Source, error)

// NewSplitter 工厂签名：接收原样 JSON Options。
type NewSplitter func(raw json.RawMessage) (contract.Splitter, error)

// NewWorker 工厂签名：接收原样 JSON Options。
type NewWorker func(raw json.RawMessage) (contract.Worker, error)

// NewDecoder 工厂签名：接收原样 JSON Options。
type NewDecoder func(raw json.RawMessage) (contract.Decoder, error)

// NewAssembler 工厂签名：接收原样 JSON Options。
type NewAssembler func(raw json.RawMessage) (contract.Assembler, error)

// NewWriter 工厂签名：接收原样 JSON Options。
type NewWriter func(raw json.RawMessage) (contract.Writer, error)

// Aggregator 工厂注册表（键即 Mode，显式、零反射）。
var Aggregator = map[string]NewAggregator{
	string(contract.ModePerNumber): func(raw json.RawMessage) (contract.Aggregator, error) {
		var opts pernumber.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return pernumber.New(&opts), nil
	},
	string(contract.ModeMaximum): func(raw json.RawMessage) (contract.Aggregator, error) {
		var opts maximum.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return maximum.New(&opts), nil
	},
	string(contract.ModeFiniteOnly): func(raw json.RawMessage) (contract.Aggregator, error) {
		var opts finiteonly.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return finiteonly.New(&opts), nil
	},
}

// aggregatorFor 按模式取聚合器；模式为空或未知返回 ErrMalformedInput。
func aggregatorFor(mode string) (contract.Aggregator, error) {
	f, ok := Aggregator[mode]
	if !ok {
		return nil, fmt.Errorf("%w: unknown mode %q", contract.ErrMalformedInput, mode)
	}
	return f(nil)
}

// spanOptions: span Source 与其定宽 Splitter 共用一份选项。
type spanOptions struct {
	sspan.Options
	MaxTasks int `json:"max_tasks"`
}

// Source 工厂注册表。
var Source = map[string]NewSource{
	// fs: 控制块文件/目录/STDIN
	"fs": func(raw json.RawMessage) (contract.Source, error) {
		var opts sfs.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return sfs.New(&opts), nil
	},
	// span: 由 {start,width,count} 在内存中生成任务
	"span": func(raw json.RawMessage) (contract.Source, error) {
		var opts spanOptions
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return sspan.New(&opts.Options, fixed.New(&fixed.Options{MaxTasks: opts.MaxTasks}))
	},
}

// Splitter 工厂注册表。
var Splitter = map[string]NewSplitter{
	// fixed: 定宽切分
	"fixed": func(raw json.RawMessage) (contract.Splitter, error) {
		var opts fixed.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return fixed.New(&opts), nil
	},
}

// Worker 工厂注册表。
var Worker = map[string]NewWorker{
	// native: 进程内 Engine
	"native": func(raw json.RawMessage) (contract.Worker, error) {
		var opts wnative.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		agg, err := aggregatorFor(opts.Mode)
		if err != nil {
			return nil, err
		}
		return wnative.New(&opts, agg)
	},
	// flaky: 故障注入（前 N 次失败），内部委托 native
	"flaky": func(raw json.RawMessage) (contract.Worker, error) {
		var opts wflaky.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		agg, err := aggregatorFor(opts.Mode)
		if err != nil {
			return nil, err
		}
		inner, err := wnative.New(&wnative.Options{Mode: opts.Mode}, agg)
		if err != nil {
			return nil, err
		}
		return wflaky.New(&opts, inner)
	},
}

// Decoder 工厂注册表。
var Decoder = map[string]NewDecoder{
	// blob: 按模式解码结果块
	"blob": func(raw json.RawMessage) (contract.Decoder, error) {
		var opts dblob.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return dblob.New(&opts)
	},
}

// Assembler 工厂注册表。
var Assembler = map[string]NewAssembler{
	// linear: 每个报告一行 JSON
	"linear": func(raw json.RawMessage) (contract.Assembler, error) {
		var opts linear.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return linear.New(&opts), nil
	},
}

// Writer 工厂注册表。
var Writer = map[string]NewWriter{
	// fs: 文件系统 Writer（原子替换/扁平化可配置）
	"fs": func(raw json.RawMessage) (contract.Writer, error) {
		var opts wfs.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return wfs.New(&opts)
	},
	// sqlite: results 表（task 主键 upsert）
	"sqlite": func(raw json.RawMessage) (contract.Writer, error) {
		var opts wsql.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return wsql.New(&opts)
	},
}
