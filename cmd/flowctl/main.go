// Command flowctl validates and runs flow documents from the command
// line.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/flowlattice/engine/ratelimit"
	"github.com/flowlattice/engine/runtime"
	"github.com/flowlattice/engine/runtime/hostservices"
	"github.com/flowlattice/engine/sandbox"
	"github.com/flowlattice/engine/schema"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "flowctl",
		Short: "flowctl validates and runs flow documents",
	}
	root.AddCommand(validateCmd())
	root.AddCommand(runCmd())
	return root
}

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <document>",
		Short: "Parse and structurally validate a flow document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			flow, err := loadFlow(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("flow %q is valid: %d component(s)\n", flow.ID, len(flow.Components))
			return nil
		},
	}
}

func runCmd() *cobra.Command {
	var preset string
	var maxIterations int
	var resumeFrom string
	var checkpoint string
	var singleStep bool

	cmd := &cobra.Command{
		Use:   "run <document>",
		Short: "Run a flow document to completion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			flow, err := loadFlow(args[0])
			if err != nil {
				return err
			}

			limitConfig, err := limitPreset(preset)
			if err != nil {
				return err
			}
			limiter := runtime.NewResourceLimiter(limitConfig)

			policy, err := sandbox.DefaultSecurityPolicy()
			if err != nil {
				return err
			}

			registry := runtime.NewHostServiceRegistry()
			bucket := ratelimit.New(ratelimit.DefaultConfig())
			hostservices.NewHTTPHandler(policy, bucket).Register(registry)
			hostservices.NewInMemoryStorageHandler().Register(registry)

			sanitizer := runtime.NewExpressionSanitizer()
			evaluator := runtime.NewExpressionEvaluator(sanitizer)
			dispatcher := runtime.NewDispatcher(evaluator, registry)
			observer := runtime.NewCompositeExecutionObserver(runtime.NewSlogObserver(nil))
			executor := runtime.NewExecutor(flow, dispatcher, limiter, observer, maxIterations)

			mode := runtime.ModeRunToCompletion
			if singleStep {
				mode = runtime.ModeSingleStep
			}

			var finalCtx runtime.ExecutionContext
			var result runtime.ExecutionResult
			if resumeFrom != "" {
				execCtx, err := loadContext(resumeFrom)
				if err != nil {
					return err
				}
				finalCtx, result = executor.Resume(cmd.Context(), execCtx, mode)
			} else {
				execCtx := runtime.NewExecutionContext(flow.ID, uuid.NewString())
				finalCtx, result = executor.Run(cmd.Context(), execCtx, mode)
			}

			if checkpoint != "" && result.Status == runtime.ResultPartial {
				if err := saveContext(checkpoint, finalCtx); err != nil {
					return err
				}
				fmt.Printf("paused at %q, context written to %s\n", finalCtx.CurrentComponentID, checkpoint)
			}
			return printResult(result)
		},
	}
	cmd.Flags().StringVar(&preset, "limits", "default", "resource limit preset: default|permissive|restrictive")
	cmd.Flags().IntVar(&maxIterations, "max-iterations", 0, "cycle breaker override (0 = engine default)")
	cmd.Flags().StringVar(&resumeFrom, "resume-from", "", "path to a persisted execution context JSON to resume")
	cmd.Flags().StringVar(&checkpoint, "checkpoint", "", "with --single-step, where to write the paused context")
	cmd.Flags().BoolVar(&singleStep, "single-step", false, "advance one component, then pause")
	return cmd
}

func loadContext(path string) (runtime.ExecutionContext, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return runtime.ExecutionContext{}, fmt.Errorf("flowctl: failed to read context %s: %w", path, err)
	}
	var execCtx runtime.ExecutionContext
	if err := json.Unmarshal(data, &execCtx); err != nil {
		return runtime.ExecutionContext{}, fmt.Errorf("flowctl: failed to decode context %s: %w", path, err)
	}
	return execCtx, nil
}

func saveContext(path string, execCtx runtime.ExecutionContext) error {
	data, err := json.MarshalIndent(execCtx, "", "  ")
	if err != nil {
		return fmt.Errorf("flowctl: failed to encode context: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("flowctl: failed to write context %s: %w", path, err)
	}
	return nil
}

func loadFlow(path string) (*runtime.Flow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("flowctl: failed to read %s: %w", path, err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return schema.LoadYAML(data)
	default:
		return schema.LoadJSON(data)
	}
}

func limitPreset(name string) (runtime.LimitConfig, error) {
	switch name {
	case "", "default":
		return runtime.DefaultLimitConfig(), nil
	case "permissive":
		return runtime.PermissiveLimitConfig(), nil
	case "restrictive":
		return runtime.RestrictiveLimitConfig(), nil
	default:
		return runtime.LimitConfig{}, fmt.Errorf("flowctl: unknown limit preset %q", name)
	}
}

func printResult(result runtime.ExecutionResult) error {
	encoded, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("flowctl: failed to encode result: %w", err)
	}
	fmt.Println(string(encoded))
	if result.Status == runtime.ResultFailure {
		return fmt.Errorf("execution failed: %s", result.Error.Error())
	}
	return nil
}
