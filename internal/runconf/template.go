package runconf

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"

	"github.com/tidalworks/harmgrid/internal/taskfile"
)

// CommandTemplate is the worker entrypoint command as an HCL string template.
// Per-task values are injected as template variables rather than matched by
// substring, so the command shape is explicit configuration.
type CommandTemplate struct {
	Source string
}

// CommandVars are the values available inside a command template.
type CommandVars struct {
	ExtractExe    string
	AnalysisExe   string
	ConstantsFile string
	TaskIndex     int
	StartStack    int
	EndStack      int
	NodeCount     int
}

// Render evaluates the template for one task. Besides the CommandVars fields,
// the template sees `task_id` (the 3-digit index) and `log_file` (the task's
// console log name).
func (t CommandTemplate) Render(vars CommandVars) (string, error) {
	expr, diags := hclsyntax.ParseTemplate([]byte(t.Source), "command", hcl.Pos{Line: 1, Column: 1})
	if diags.HasErrors() {
		return "", fmt.Errorf("invalid command template: %s", diags.Error())
	}

	evalCtx := &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"extract_exe":    cty.StringVal(vars.ExtractExe),
			"analysis_exe":   cty.StringVal(vars.AnalysisExe),
			"constants_file": cty.StringVal(vars.ConstantsFile),
			"task_index":     cty.NumberIntVal(int64(vars.TaskIndex)),
			"task_id":        cty.StringVal(taskfile.ID(vars.TaskIndex)),
			"start_stack":    cty.NumberIntVal(int64(vars.StartStack)),
			"end_stack":      cty.NumberIntVal(int64(vars.EndStack)),
			"node_count":     cty.NumberIntVal(int64(vars.NodeCount)),
			"log_file":       cty.StringVal(taskfile.Log(vars.TaskIndex)),
		},
	}

	val, diags := expr.Value(evalCtx)
	if diags.HasErrors() {
		return "", fmt.Errorf("failed to render command template: %s", diags.Error())
	}
	if val.Type() != cty.String {
		return "", fmt.Errorf("command template must produce a string, got %s", val.Type().FriendlyName())
	}
	return val.AsString(), nil
}
