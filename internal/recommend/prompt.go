package recommend

import (
	"fmt"
	"sort"
	"strings"

	"so101-builder/internal/catalog"
	"so101-builder/internal/wizard"
)

const recommendationSystemPrompt = `You are an expert robotics assistant specializing in the SO-101 robot arm from LeRobot/Hugging Face.

## SO-101 Technical Knowledge

### Motor Configuration
- SO-101 uses Feetech STS3215 serial bus servos
- Each arm has 6 joints requiring 6 motors

#### Follower Arm (so101_follower)
- All 6 joints use the same motor: Feetech STS3215 with 1/345 gear ratio

#### Leader Arm (so101_leader, for teleoperation)
- Joint 1: STS3215 with 1/191 gear ratio
- Joint 2: STS3215 with 1/345 gear ratio
- Joint 3: STS3215 with 1/191 gear ratio
- Joints 4-6: STS3215 with 1/147 gear ratio

### Essential Components
1. Motors: Feetech STS3215 servos (6 per arm)
2. Motor controller: Waveshare Serial Bus Servo Driver Board
3. Power supply: 12V 5A DC adapter
4. Cables: 3-pin TTL servo cables (5+ per arm) and a USB cable to the computer

### Camera Options
- OpenCV/UVC: any USB webcam compatible with OpenCV
- Intel RealSense: D435 or D415 for depth sensing
- Phone camera: via ZMQ wireless streaming
- Multiple cameras are supported for multi-view setups

### Compute Platforms
- CUDA: NVIDIA GPUs (recommended for training)
- MPS: Apple Silicon Macs
- XPU: Intel GPUs
- CPU: fallback, slower

### Important Notes
- SO-101 (not SO-100): motor connectors are accessible without disassembly
- 3D printed parts are required for the arm structure

When recommending components:
1. Prioritize compatibility with the LeRobot software stack
2. Match complexity to the user's experience level
3. Stay within the stated budget
4. Only recommend components from the provided catalog, referenced by their numeric id
5. Offer alternatives with trade-offs where the catalog has them

Respond with JSON only, exactly matching the structure given in the prompt.`

// buildRecommendationPrompt renders the user profile and the component
// catalog into the generation prompt. Only catalog ids listed here are
// accepted in the response.
func buildRecommendationPrompt(profile wizard.Profile, components []catalog.ComponentWithPricing) string {
	var sb strings.Builder

	sb.WriteString("Recommend components for an SO-101 robot arm build based on this user profile:\n\n")
	sb.WriteString("## User Profile\n")
	fmt.Fprintf(&sb, "- Experience level: %s\n", orUnspecified(profile.Experience))
	if profile.BudgetUSD != nil {
		fmt.Fprintf(&sb, "- Budget: $%s USD\n", profile.BudgetUSD.StringFixed(0))
	} else {
		sb.WriteString("- Budget: not specified\n")
	}
	fmt.Fprintf(&sb, "- Use case: %s\n", orUnspecified(profile.UseCase))
	fmt.Fprintf(&sb, "- Compute platform: %s\n", orUnspecified(profile.ComputePlatform))
	fmt.Fprintf(&sb, "- Camera preference: %s\n", orUnspecified(profile.CameraPreference))
	armType := profile.ArmType
	if armType == "" {
		armType = "single"
	}
	fmt.Fprintf(&sb, "- Arm configuration: %s (single = follower only, dual = leader + follower)\n", armType)

	sb.WriteString("\n## Available Catalog\n")
	sb.WriteString("Only these components may be recommended, referenced by id:\n")
	for _, c := range sortedByCategory(components) {
		fmt.Fprintf(&sb, "- id=%d [%s] %s", c.ID, c.CategorySlug, c.Name)
		if c.LowestPrice != nil {
			fmt.Fprintf(&sb, " (from $%s)", c.LowestPrice.StringFixed(2))
		}
		if spec := compactSpecs(c.Specifications); spec != "" {
			fmt.Fprintf(&sb, " {%s}", spec)
		}
		sb.WriteString("\n")
	}

	sb.WriteString(`
## Required Output
Respond with a single JSON object:
{
  "components": [
    {
      "component_id": <catalog id, integer>,
      "component_name": "<name>",
      "category": "<category slug>",
      "reason": "<why this component>",
      "priority": "required|recommended|optional",
      "quantity": <integer, at least 1>,
      "alternatives": [<catalog ids>]
    }
  ],
  "summary": "<build summary>",
  "estimated_total": <number or null>,
  "notes": ["<note>"],
  "experience_notes": "<advice for this experience level>",
  "budget_notes": "<how the budget is allocated>",
  "use_case_notes": "<notes specific to the use case>"
}
`)
	return sb.String()
}

func orUnspecified(s string) string {
	if s == "" {
		return "not specified"
	}
	return s
}

// sortedByCategory orders catalog lines for a stable prompt.
func sortedByCategory(components []catalog.ComponentWithPricing) []catalog.ComponentWithPricing {
	out := make([]catalog.ComponentWithPricing, len(components))
	copy(out, components)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CategorySlug != out[j].CategorySlug {
			return out[i].CategorySlug < out[j].CategorySlug
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// compactSpecs renders specifications as "k=v, k=v" with stable key order.
func compactSpecs(specs map[string]any) string {
	if len(specs) == 0 {
		return ""
	}
	keys := make([]string, 0, len(specs))
	for k := range specs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, specs[k]))
	}
	return strings.Join(parts, ", ")
}
