package validation

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"

	"promptpaint/core"
	"promptpaint/llm"
)

// ValidationStep represents a single validation step with its status.
type ValidationStep struct {
	Name    string
	Status  StepStatus
	Message string
	Error   error
	Latency time.Duration
}

// StepStatus represents the status of a validation step.
type StepStatus int

const (
	StepPending StepStatus = iota
	StepRunning
	StepPassed
	StepFailed
	StepWarning
	StepSkipped
)

// String returns the string representation of a step status.
func (s StepStatus) String() string {
	switch s {
	case StepPending:
		return "pending"
	case StepRunning:
		return "running"
	case StepPassed:
		return "passed"
	case StepFailed:
		return "failed"
	case StepWarning:
		return "warning"
	case StepSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// CheckFunc runs one startup check and returns a short status message.
type CheckFunc func(ctx context.Context) (string, error)

// Check is an extra step appended after the built-in ones. A failing
// Optional check is reported as a warning and does not fail the suite.
type Check struct {
	Name     string
	Optional bool
	Run      CheckFunc
}

// SuiteResult represents the complete result of validation suite execution.
type SuiteResult struct {
	Steps       []ValidationStep
	TotalSteps  int
	PassedSteps int
	FailedSteps int
	Warnings    int
	Duration    time.Duration
	Success     bool
}

// ValidationSuite is the startup validation organism. It checks the loaded
// configuration, the samples directory and the text model endpoint, then any
// checks added with AddCheck, printing colored progress as it goes.
type ValidationSuite struct {
	cfg          *core.Config
	output       io.Writer
	checker      *ConnectivityChecker
	timeout      time.Duration
	showProgress bool
	failFast     bool
	extra        []Check
}

// NewValidationSuite creates a suite for cfg with default settings.
func NewValidationSuite(cfg *core.Config) *ValidationSuite {
	return &ValidationSuite{
		cfg:          cfg,
		output:       os.Stdout,
		checker:      NewConnectivityChecker(core.GetHTTPClient(cfg, 10*time.Second)),
		timeout:      30 * time.Second,
		showProgress: true,
	}
}

// WithOutput sets the output writer for progress messages.
func (s *ValidationSuite) WithOutput(w io.Writer) *ValidationSuite {
	s.output = w
	return s
}

// WithTimeout bounds the whole suite.
func (s *ValidationSuite) WithTimeout(timeout time.Duration) *ValidationSuite {
	s.timeout = timeout
	return s
}

// WithShowProgress enables or disables progress output.
func (s *ValidationSuite) WithShowProgress(show bool) *ValidationSuite {
	s.showProgress = show
	return s
}

// WithFailFast stops validation on first failure if enabled.
func (s *ValidationSuite) WithFailFast(failFast bool) *ValidationSuite {
	s.failFast = failFast
	return s
}

// AddCheck appends an extra step.
func (s *ValidationSuite) AddCheck(check Check) *ValidationSuite {
	s.extra = append(s.extra, check)
	return s
}

// Validate runs all checks in order.
func (s *ValidationSuite) Validate(ctx context.Context) SuiteResult {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	startTime := time.Now()
	checks := append([]Check{
		{Name: "Configuration", Run: s.checkConfig},
		{Name: "Samples Directory", Run: s.checkSamplesDir},
		{Name: "Text Model Endpoint", Optional: true, Run: s.checkTextEndpoint},
	}, s.extra...)
	steps := make([]ValidationStep, 0, len(checks))

	if s.showProgress {
		s.printHeader("promptpaint Startup Validation")
	}

	for i, check := range checks {
		step := s.runStep(ctx, check)
		steps = append(steps, step)
		if s.failFast && step.Status == StepFailed {
			for _, rest := range checks[i+1:] {
				skipped := ValidationStep{
					Name:    rest.Name,
					Status:  StepSkipped,
					Message: "Skipped due to earlier failure",
				}
				if s.showProgress {
					s.printStep(skipped)
				}
				steps = append(steps, skipped)
			}
			break
		}
	}

	result := s.buildResult(steps, startTime)
	if s.showProgress {
		s.printSummary(result)
	}
	return result
}

func (s *ValidationSuite) checkConfig(context.Context) (string, error) {
	if err := s.cfg.Validate(); err != nil {
		return "Invalid configuration", err
	}
	return fmt.Sprintf("listening on %s, backend %s", s.cfg.Addr(), s.cfg.ImageBackend), nil
}

func (s *ValidationSuite) checkSamplesDir(context.Context) (string, error) {
	if err := CheckWritableDir(s.cfg.SamplesDir); err != nil {
		return "Not writable", err
	}
	return s.cfg.SamplesDir, nil
}

// checkTextEndpoint lists models on the refinement server. Only the
// enhance option depends on it, so a failure is a warning. A remote
// endpoint without an API key is reported without a request.
func (s *ValidationSuite) checkTextEndpoint(ctx context.Context) (string, error) {
	endpoint := strings.TrimRight(strings.TrimSpace(s.cfg.TextLLMURL), "/")
	if s.cfg.OpenAIAPIKey == "" && !llm.IsLocalEndpoint(endpoint) {
		return "OPENAI_API_KEY is not set for a remote endpoint", core.ErrMissingAuth("text model")
	}
	result := s.checker.Check(ctx, "TEXT_LLM_URL", endpoint+"/models")
	if result.Error != nil {
		return result.Message, result.Error
	}
	msg := fmt.Sprintf("%s (latency: %v)", result.Message, result.Latency.Round(time.Millisecond))
	return msg, nil
}

// runStep executes a validation step with timing and progress output.
func (s *ValidationSuite) runStep(ctx context.Context, check Check) ValidationStep {
	step := ValidationStep{Name: check.Name, Status: StepRunning}

	if s.showProgress {
		s.printStepStart(check.Name)
	}

	startTime := time.Now()
	message, err := check.Run(ctx)
	step.Latency = time.Since(startTime)
	step.Message = message
	step.Error = err

	switch {
	case err == nil:
		step.Status = StepPassed
	case check.Optional:
		step.Status = StepWarning
	default:
		step.Status = StepFailed
	}

	if s.showProgress {
		s.printStep(step)
	}

	return step
}

// buildResult creates a SuiteResult from completed steps.
func (s *ValidationSuite) buildResult(steps []ValidationStep, startTime time.Time) SuiteResult {
	result := SuiteResult{
		Steps:      steps,
		TotalSteps: len(steps),
		Duration:   time.Since(startTime),
		Success:    true,
	}

	for _, step := range steps {
		switch step.Status {
		case StepPassed:
			result.PassedSteps++
		case StepFailed:
			result.FailedSteps++
			result.Success = false
		case StepWarning:
			result.Warnings++
		}
	}

	return result
}

func (s *ValidationSuite) printHeader(title string) {
	fmt.Fprintln(s.output)
	headerColor := color.New(color.FgCyan, color.Bold)
	headerColor.Fprintf(s.output, "━━━ %s ━━━\n", title)
	fmt.Fprintln(s.output)
}

func (s *ValidationSuite) printStepStart(name string) {
	fmt.Fprintf(s.output, "  ◌ %s...", name)
}

// printStep prints a completed validation step with status indicator.
func (s *ValidationSuite) printStep(step ValidationStep) {
	var icon string
	var clr *color.Color

	switch step.Status {
	case StepPassed:
		icon = "✓"
		clr = color.New(color.FgGreen)
	case StepFailed:
		icon = "✗"
		clr = color.New(color.FgRed)
	case StepWarning:
		icon = "!"
		clr = color.New(color.FgYellow)
	case StepSkipped:
		icon = "○"
		clr = color.New(color.FgHiBlack)
	default:
		icon = "?"
		clr = color.New(color.FgWhite)
	}

	fmt.Fprintf(s.output, "\r")
	clr.Fprintf(s.output, "  %s %s", icon, step.Name)

	if step.Message != "" {
		dim := color.New(color.FgHiBlack)
		dim.Fprintf(s.output, " - %s", step.Message)
	}

	fmt.Fprintln(s.output)

	if (step.Status == StepFailed || step.Status == StepWarning) && step.Error != nil {
		detail := color.New(color.FgRed)
		if step.Status == StepWarning {
			detail = color.New(color.FgYellow)
		}
		detail.Fprintf(s.output, "    └─ %s\n", step.Error.Error())
	}
}

func (s *ValidationSuite) printSummary(result SuiteResult) {
	fmt.Fprintln(s.output)

	if result.Success {
		successColor := color.New(color.FgGreen, color.Bold)
		successColor.Fprintf(s.output, "━━━ Validation Passed ")
		color.New(color.FgHiBlack).Fprintf(s.output, "(%d/%d checks passed, %d warnings, in %v)",
			result.PassedSteps, result.TotalSteps, result.Warnings, result.Duration.Round(time.Millisecond))
		successColor.Fprintln(s.output, " ━━━")
	} else {
		failColor := color.New(color.FgRed, color.Bold)
		failColor.Fprintf(s.output, "━━━ Validation Failed ")
		color.New(color.FgHiBlack).Fprintf(s.output, "(%d passed, %d failed)",
			result.PassedSteps, result.FailedSteps)
		failColor.Fprintln(s.output, " ━━━")
	}

	fmt.Fprintln(s.output)
}

// GetFirstError returns the error of the first failed step, ignoring warnings.
func (r SuiteResult) GetFirstError() error {
	for _, step := range r.Steps {
		if step.Status == StepFailed && step.Error != nil {
			return step.Error
		}
	}
	return nil
}

// Summary returns a human-readable summary string.
func (r SuiteResult) Summary() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Validation %s: ", map[bool]string{true: "Passed", false: "Failed"}[r.Success]))
	sb.WriteString(fmt.Sprintf("%d/%d checks passed", r.PassedSteps, r.TotalSteps))
	if r.FailedSteps > 0 {
		sb.WriteString(fmt.Sprintf(", %d failed", r.FailedSteps))
	}
	if r.Warnings > 0 {
		sb.WriteString(fmt.Sprintf(", %d warnings", r.Warnings))
	}
	sb.WriteString(fmt.Sprintf(" (took %v)", r.Duration.Round(time.Millisecond)))
	return sb.String()
}
