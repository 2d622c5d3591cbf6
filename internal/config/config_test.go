package config

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stopscan/internal/rate"
)

// 解析完整 config.json
func TestLoadJSON(t *testing.T) {
	cfg, err := Load("../../testdata/config/basic.json")
	require.NoError(t, err)
	assert.Equal(t, "maximum", cfg.Mode)
	assert.Equal(t, []string{"tasks"}, cfg.Inputs)
	assert.Equal(t, 600, cfg.Limits.TasksPerMinute)
	assert.Equal(t, uint64(1048576), cfg.Limits.MaxIntervalSpan)
	assert.Equal(t, "fs", cfg.Components.Source)
	require.NoError(t, Validate(cfg))
}

// YAML 与 JSON 共用严格解码
func TestLoadYAML(t *testing.T) {
	cfg, err := Load("../../testdata/config/span.yaml")
	require.NoError(t, err)
	assert.Equal(t, "finite_only", cfg.Mode)
	assert.Equal(t, "span", cfg.Components.Source)
	assert.Equal(t, "sqlite", cfg.Components.Writer)
	assert.JSONEq(t, `{"start":"1","width":"100","count":5}`, string(cfg.Options.Source))

	_, err = LoadYAML([]byte("concurrency: 1\nbogus: 2\n"))
	assert.Error(t, err, "YAML 未知字段应失败")
	_, err = LoadYAML([]byte(""))
	assert.Error(t, err)
}

// 含非法字段
func TestLoadJSONUnknown(t *testing.T) {
	_, err := LoadJSON([]byte(`{"unknown":1}`))
	assert.Error(t, err)
	_, err = LoadJSON(nil)
	assert.Error(t, err)
}

// ENV 覆盖部分字段
func TestEnvOverlay(t *testing.T) {
	env := []string{
		"STOPSCAN_INPUTS=a,b",
		"STOPSCAN_CONCURRENCY=3",
		"STOPSCAN_MODE=maximum",
		"STOPSCAN_MAX_INTERVAL_SPAN=99",
		"STOPSCAN_COMPONENTS_WRITER=sqlite",
		`STOPSCAN_OPTIONS_WRITER_JSON={"path":"x.db"}`,
		"OTHER_CONCURRENCY=7",
	}
	over, err := EnvOverlay(env)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, over.Inputs)
	assert.Equal(t, 3, over.Concurrency)
	assert.Equal(t, -1, over.MaxRetries, "未设置时保持哨兵值")
	assert.Equal(t, "maximum", over.Mode)
	assert.Equal(t, uint64(99), over.Limits.MaxIntervalSpan)
	assert.Equal(t, "sqlite", over.Components.Writer)
	assert.JSONEq(t, `{"path":"x.db"}`, string(over.Options.Writer))

	_, err = EnvOverlay([]string{"STOPSCAN_CONCURRENCY=abc"})
	assert.Error(t, err, "非法数值应报错")
}

// Merge：0 值不覆盖，MaxRetries 显式 0 可覆盖
func TestMerge(t *testing.T) {
	base := Defaults()
	base.MaxRetries = 3
	base.Options.Writer = json.RawMessage(`{"output_dir":"a"}`)
	over := Config{MaxRetries: 0, Mode: "finite_only", Options: Options{Source: json.RawMessage(`{}`)}}
	out := Merge(base, over)
	assert.Equal(t, 0, out.MaxRetries)
	assert.Equal(t, "finite_only", out.Mode)
	assert.Equal(t, 1, out.Concurrency)
	assert.Equal(t, "native", out.Components.Worker)
	assert.JSONEq(t, `{"output_dir":"a"}`, string(out.Options.Writer))

	out = Merge(base, Config{MaxRetries: -1})
	assert.Equal(t, 3, out.MaxRetries)
}

func TestSplitCommaAtoi(t *testing.T) {
	parts := splitComma("a, b , ,c")
	assert.Equal(t, []string{"a", "b", "c"}, parts)
	v, err := atoi(" 10 ")
	require.NoError(t, err)
	assert.Equal(t, 10, v)
}

func TestDefaultsClone(t *testing.T) {
	d := Defaults()
	assert.Equal(t, "fs", d.Components.Source)
	assert.Equal(t, "per_number", d.Mode)
	src := []byte("abc")
	dst := cloneRaw(src)
	src[0] = 'x'
	assert.Equal(t, "abc", string(dst))
}

// Validate 错误分支
func TestValidateErrors(t *testing.T) {
	assert.Error(t, Validate(Config{}), "空配置应失败")

	cases := map[string]func(*Config){
		"混用 '-'":      func(c *Config) { c.Inputs = []string{"-", "a"} },
		"空输入":         func(c *Config) { c.Inputs = []string{" "} },
		"并发为 0":       func(c *Config) { c.Concurrency = 0 },
		"负重试":         func(c *Config) { c.MaxRetries = -1 },
		"未知模式":        func(c *Config) { c.Mode = "median" },
		"未知日志等级":      func(c *Config) { c.Logging.Level = "trace" },
		"负限额":         func(c *Config) { c.Limits.TasksPerMinute = -1 },
		"未注册 worker":  func(c *Config) { c.Components.Worker = "gpu" },
		"未注册 writer":  func(c *Config) { c.Components.Writer = "s3" },
		"未注册 source":  func(c *Config) { c.Components.Source = "kafka" },
		"未注册 decoder": func(c *Config) { c.Components.Decoder = "x" },
	}
	for name, mut := range cases {
		cfg := DefaultTemplateConfig()
		mut(&cfg)
		assert.Error(t, Validate(cfg), name)
	}

	// span Source 不要求 inputs
	cfg := DefaultTemplateConfig()
	cfg.Inputs = nil
	cfg.Components.Source = "span"
	assert.NoError(t, Validate(cfg))
}

func TestInjectMode(t *testing.T) {
	out, err := injectMode(nil, "maximum")
	require.NoError(t, err)
	assert.JSONEq(t, `{"mode":"maximum"}`, string(out))

	out, err = injectMode(json.RawMessage(`{"fail_first":2,"mode":"maximum"}`), "maximum")
	require.NoError(t, err)
	assert.JSONEq(t, `{"fail_first":2,"mode":"maximum"}`, string(out))

	_, err = injectMode(json.RawMessage(`{"mode":"per_number"}`), "maximum")
	assert.Error(t, err)
	_, err = injectMode(json.RawMessage(`[1]`), "maximum")
	assert.Error(t, err)
}

// Assemble 构造完整组件并派生限流键
func TestAssemble(t *testing.T) {
	cfg, err := Load("../../testdata/config/basic.json")
	require.NoError(t, err)
	cfg.Options.Writer = json.RawMessage(`{"output_dir":` + jsonString(t.TempDir()) + `}`)

	comp, set, err := Assemble(cfg)
	require.NoError(t, err)
	assert.NotNil(t, comp.Source)
	assert.NotNil(t, comp.Worker)
	assert.NotNil(t, comp.Decoder)
	assert.NotNil(t, comp.Assembler)
	assert.NotNil(t, comp.Writer)
	assert.Equal(t, 2, set.Concurrency)
	assert.Equal(t, "native", set.WorkerName)
	require.NotNil(t, set.Gate)
	assert.Equal(t, rate.DeriveKey("native", json.RawMessage(`{"rate_key":"shared-pool"}`)), set.GateKey)
	assert.Equal(t, rate.LimitKey("native:shared-pool"), set.GateKey)
}

// Assemble：无限额时不启用 Gate；YAML + span + sqlite 组合可构造
func TestAssembleSpanSQLite(t *testing.T) {
	cfg, err := Load("../../testdata/config/span.yaml")
	require.NoError(t, err)
	cfg.Options.Writer = json.RawMessage(`{"path":` + jsonString(filepath.Join(t.TempDir(), "r.db")) + `}`)
	comp, set, err := Assemble(Merge(Defaults(), cfg))
	require.NoError(t, err)
	assert.Nil(t, set.Gate)
	if c, ok := comp.Writer.(io.Closer); ok {
		require.NoError(t, c.Close())
	}
}

func TestAssembleModeConflict(t *testing.T) {
	cfg := DefaultTemplateConfig()
	cfg.Options.Writer = json.RawMessage(`{"output_dir":` + jsonString(t.TempDir()) + `}`)
	cfg.Options.Decoder = json.RawMessage(`{"mode":"maximum"}`)
	_, _, err := Assemble(cfg)
	assert.Error(t, err)
}

func TestTemplateRoundTrip(t *testing.T) {
	b, err := json.MarshalIndent(DefaultTemplateConfig(), "", "  ")
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, b, 0o644))
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.NoError(t, Validate(cfg))
}

func jsonString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
