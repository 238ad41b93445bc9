package filter

import (
	"fmt"

	"github.com/dlclark/regexp2"
)

// 内置过滤器。非合集 依赖负向前瞻，排除含 合集 或 NN-NN 集数区间的标题
var builtinPatterns = map[string]string{
	"简体":   `(简体|简中|简日|CHS|GB)`,
	"繁体":   `(繁体|繁中|繁日|CHT|BIG5)`,
	"1080p": `(1080p)`,
	"非合集":  `^(?!.*(\d{2}-\d{2}|合集)).*`,
}

// Filter 一组命名正则。标题需要匹配全部启用的模式才能通过（与，而非或）
type Filter struct {
	patterns []*regexp2.Regexp
	names    []string
}

// New 按名字装配过滤器。custom 中的同名模式覆盖内置模式
func New(names []string, custom map[string]string) (*Filter, error) {
	f := &Filter{}
	for _, name := range names {
		expr, ok := custom[name]
		if !ok {
			expr, ok = builtinPatterns[name]
		}
		if !ok {
			return nil, fmt.Errorf("unknown filter: %s", name)
		}
		re, err := regexp2.Compile(expr, regexp2.IgnoreCase)
		if err != nil {
			return nil, fmt.Errorf("invalid filter %s: %w", name, err)
		}
		f.patterns = append(f.patterns, re)
		f.names = append(f.names, name)
	}
	return f, nil
}

// Match 标题是否满足全部模式
func (f *Filter) Match(title string) bool {
	for _, re := range f.patterns {
		ok, err := re.MatchString(title)
		if err != nil || !ok {
			return false
		}
	}
	return true
}

// Names 启用的过滤器名字，用于日志
func (f *Filter) Names() []string {
	return f.names
}
