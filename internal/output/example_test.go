package output_test

import (
	"fmt"
	"os"

	"github.com/blackwell-systems/toolkeeper/internal/output"
	"github.com/blackwell-systems/toolkeeper/internal/progress"
	"github.com/blackwell-systems/toolkeeper/internal/resolver"
)

// Example showing how to follow a run with a progress bar
func ExampleProgressBar() {
	tracker := progress.NewTracker("ruff", "black")

	bar := output.NewProgress(2, "Installing")
	bar.SetWriter(os.Stdout)
	tracker.Subscribe(bar.Observe)

	tracker.Update("ruff", progress.InProgress, "")
	tracker.Update("ruff", progress.Success, "")
	tracker.Update("black", progress.Failed, "no package manager available")
	bar.Finish()

	// Output:
	// [1/2] ruff: success
	// [2/2] black: failed (no package manager available)
}

// Example showing how to render an execution plan
func ExampleRenderPlan() {
	os.Setenv("NO_COLOR", "1")
	defer os.Unsetenv("NO_COLOR")

	levels := resolver.Resolve([]resolver.ToolSpec{
		{ToolName: "node"},
		{ToolName: "prettier", Dependencies: []string{"node"}},
	})
	fmt.Print(output.RenderPlan(levels))

	// Output:
	// Level 1:
	//   node                 latest
	// Level 2:
	//   prettier             latest after node
}
