package wizard

import (
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"

	"so101-builder/pkg/apperr"
)

// TotalSteps is the number of wizard steps.
const TotalSteps = 5

// Budget bounds in USD, inclusive.
var (
	BudgetMin = decimal.NewFromInt(200)
	BudgetMax = decimal.NewFromInt(2000)
)

// Choice is one selectable answer for a wizard step.
type Choice struct {
	Value       string `json:"value"`
	Label       string `json:"label"`
	Description string `json:"description,omitempty"`
}

// BudgetRange describes the accepted budget band.
type BudgetRange struct {
	Min      int    `json:"min"`
	Max      int    `json:"max"`
	Currency string `json:"currency"`
}

// StepInfo is static metadata for one wizard step, served to the UI.
type StepInfo struct {
	Step    int          `json:"step"`
	Key     string       `json:"key"`
	Title   string       `json:"title"`
	Prompt  string       `json:"prompt"`
	Choices []Choice     `json:"choices,omitempty"`
	Budget  *BudgetRange `json:"budget,omitempty"`
}

var experienceChoices = []Choice{
	{Value: "beginner", Label: "Beginner", Description: "First robot arm, new to robotics"},
	{Value: "intermediate", Label: "Intermediate", Description: "Built kits before, comfortable with electronics"},
	{Value: "advanced", Label: "Advanced", Description: "Designs and debugs robot hardware"},
}

var armTypeChoices = []Choice{
	{Value: "single", Label: "Single arm", Description: "One follower arm"},
	{Value: "dual", Label: "Leader + follower", Description: "Teleoperation pair"},
}

var useCaseChoices = []Choice{
	{Value: "learning", Label: "Learning", Description: "Tutorials and experimentation"},
	{Value: "research", Label: "Research", Description: "Data collection and policy training"},
	{Value: "production", Label: "Production", Description: "Repeated real-world tasks"},
}

var computeChoices = []Choice{
	{Value: "cuda", Label: "NVIDIA GPU (CUDA)"},
	{Value: "mps", Label: "Apple Silicon (MPS)"},
	{Value: "xpu", Label: "Intel GPU (XPU)"},
	{Value: "cpu", Label: "CPU only"},
}

var cameraChoices = []Choice{
	{Value: "basic", Label: "Basic USB webcam"},
	{Value: "realsense", Label: "Intel RealSense depth camera"},
	{Value: "multiple", Label: "Multiple cameras"},
	{Value: "phone", Label: "Phone camera"},
}

var steps = []StepInfo{
	{
		Step:    1,
		Key:     "experience",
		Title:   "Experience level",
		Prompt:  "How much robotics experience do you have?",
		Choices: experienceChoices,
	},
	{
		Step:    2,
		Key:     "budget",
		Title:   "Budget and arm configuration",
		Prompt:  "What is your budget, and do you want one arm or a teleoperation pair?",
		Choices: armTypeChoices,
		Budget:  &BudgetRange{Min: 200, Max: 2000, Currency: "USD"},
	},
	{
		Step:    3,
		Key:     "use_case",
		Title:   "Use case",
		Prompt:  "What will you use the arm for?",
		Choices: useCaseChoices,
	},
	{
		Step:    4,
		Key:     "compute_platform",
		Title:   "Compute platform",
		Prompt:  "What will run your training and inference?",
		Choices: computeChoices,
	},
	{
		Step:    5,
		Key:     "camera_preference",
		Title:   "Camera preference",
		Prompt:  "How do you want to capture the workspace?",
		Choices: cameraChoices,
	},
}

// Steps returns the wizard step metadata in order.
func Steps() []StepInfo {
	out := make([]StepInfo, len(steps))
	copy(out, steps)
	return out
}

// answerKeys lists the accepted payload keys per step.
var answerKeys = map[int][]string{
	1: {"experience"},
	2: {"budget", "arm_type"},
	3: {"use_case"},
	4: {"compute_platform"},
	5: {"camera_preference"},
}

// applyAnswer validates a step answer and, only if fully valid, writes it
// into the profile. Every failed field is reported in one error.
func applyAnswer(p *Profile, step int, answer map[string]any) error {
	var errs []string

	allowed := answerKeys[step]
	for key := range answer {
		if !contains(allowed, key) {
			errs = append(errs, "unknown field "+quote(key))
		}
	}

	switch step {
	case 1:
		value, fieldErrs := choiceField(answer, "experience", experienceChoices)
		errs = append(errs, fieldErrs...)
		if len(errs) == 0 {
			p.Experience = value
		}
	case 2:
		budget, budgetErrs := budgetField(answer)
		errs = append(errs, budgetErrs...)
		armType, armErrs := choiceField(answer, "arm_type", armTypeChoices)
		errs = append(errs, armErrs...)
		if len(errs) == 0 {
			p.BudgetUSD = &budget
			p.ArmType = armType
		}
	case 3:
		value, fieldErrs := choiceField(answer, "use_case", useCaseChoices)
		errs = append(errs, fieldErrs...)
		if len(errs) == 0 {
			p.UseCase = value
		}
	case 4:
		value, fieldErrs := choiceField(answer, "compute_platform", computeChoices)
		errs = append(errs, fieldErrs...)
		if len(errs) == 0 {
			p.ComputePlatform = value
		}
	case 5:
		value, fieldErrs := choiceField(answer, "camera_preference", cameraChoices)
		errs = append(errs, fieldErrs...)
		if len(errs) == 0 {
			p.CameraPreference = value
		}
	default:
		return apperr.Validation("step must be between 1 and %d, got %d", TotalSteps, step)
	}

	if len(errs) > 0 {
		return apperr.Validation("%s", strings.Join(errs, "; "))
	}
	return nil
}

// choiceField extracts a string field that must match one of the choices.
func choiceField(answer map[string]any, key string, choices []Choice) (string, []string) {
	raw, ok := answer[key]
	if !ok {
		return "", []string{key + " is required"}
	}
	value, ok := raw.(string)
	if !ok {
		return "", []string{key + " must be a string"}
	}
	for _, c := range choices {
		if c.Value == value {
			return value, nil
		}
	}
	return "", []string{key + " must be one of " + choiceValues(choices)}
}

// budgetField extracts the budget as a decimal within the accepted band.
func budgetField(answer map[string]any) (decimal.Decimal, []string) {
	raw, ok := answer["budget"]
	if !ok {
		return decimal.Zero, []string{"budget is required"}
	}

	var (
		budget decimal.Decimal
		err    error
	)
	switch v := raw.(type) {
	case json.Number:
		budget, err = decimal.NewFromString(v.String())
	case float64:
		budget = decimal.NewFromFloat(v)
	case int:
		budget = decimal.NewFromInt(int64(v))
	default:
		return decimal.Zero, []string{"budget must be a number"}
	}
	if err != nil {
		return decimal.Zero, []string{"budget must be a number"}
	}

	if budget.LessThan(BudgetMin) || budget.GreaterThan(BudgetMax) {
		return decimal.Zero, []string{
			"budget must be between " + BudgetMin.String() + " and " + BudgetMax.String() + " USD"}
	}
	return budget, nil
}

func choiceValues(choices []Choice) string {
	values := make([]string, len(choices))
	for i, c := range choices {
		values[i] = c.Value
	}
	return strings.Join(values, ", ")
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

func quote(s string) string {
	return `"` + s + `"`
}
