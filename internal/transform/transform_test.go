package transform

import (
	"testing"

	"github.com/bcentdev/soku/internal/graph"
	"github.com/stretchr/testify/assert"
)

func TestSelectPicksEnhancedForJSXInputs(t *testing.T) {
	kinds := map[graph.ModuleKind]bool{graph.KindJsx: true}
	assert.Equal(t, Enhanced, Select(StrategyAuto, kinds))
}

func TestSelectPicksStandardForTypeScriptInputs(t *testing.T) {
	kinds := map[graph.ModuleKind]bool{graph.KindTypeScript: true}
	assert.Equal(t, Standard, Select(StrategyAuto, kinds))
}

func TestSelectPicksFastOtherwise(t *testing.T) {
	kinds := map[graph.ModuleKind]bool{graph.KindJavaScript: true}
	assert.Equal(t, Fast, Select(StrategyAuto, kinds))
}

func TestSelectRespectsExplicitRequest(t *testing.T) {
	kinds := map[graph.ModuleKind]bool{graph.KindJsx: true}
	assert.Equal(t, Fast, Select(Fast, kinds))
}

func TestParseStrategy(t *testing.T) {
	assert.Equal(t, Fast, ParseStrategy("fast"))
	assert.Equal(t, Standard, ParseStrategy("standard"))
	assert.Equal(t, Enhanced, ParseStrategy("enhanced"))
	assert.Equal(t, StrategyAuto, ParseStrategy("nonsense"))
}

func TestTransformDispatchesByKind(t *testing.T) {
	res := Transform("a.json", graph.KindJson, []byte(`{"a":1}`), Options{})
	assert.Contains(t, res.Output, "export default")

	res = Transform("a.css", graph.KindCss, []byte(`.a { color: red; }`), Options{})
	assert.NotContains(t, res.Output, "export default")

	res = Transform("a.js", graph.KindJavaScript, []byte(`export const x = 1;`), Options{})
	assert.Contains(t, res.Exports, "x")
}
